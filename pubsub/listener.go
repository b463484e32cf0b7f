package pubsub

import (
	"context"
	"time"

	"shorturl-analytics/logging"
	"shorturl-analytics/models"
	"shorturl-analytics/writer"
)

const publishTimeout = 2 * time.Second

// Publisher is a bulk listener announcing every bulk request on the bus.
type Publisher struct {
	ps *PubSub
}

func NewPublisher(ps *PubSub) *Publisher {
	return &Publisher{ps: ps}
}

func (p *Publisher) BeforeBulk(string, []models.OutputDocument) {}

func (p *Publisher) AfterBulk(id string, docs []models.OutputDocument, resp *writer.BulkResponse) {
	p.publish(EventBulkExecuted, map[string]interface{}{
		"execution_id": id,
		"documents":    len(docs),
		"failed":       len(resp.Failed()),
		"took_ms":      resp.Took.Milliseconds(),
	})
}

func (p *Publisher) AfterBulkError(id string, docs []models.OutputDocument, err error) {
	p.publish(EventBulkFailed, map[string]interface{}{
		"execution_id": id,
		"documents":    len(docs),
		"error":        err.Error(),
	})
}

func (p *Publisher) publish(event string, data map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.ps.Publish(ctx, event, data); err != nil {
		logging.ErrorLogger.Printf("publishing %s: %v", event, err)
	}
}
