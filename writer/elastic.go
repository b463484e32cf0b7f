package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shorturl-analytics/config"
	"shorturl-analytics/models"

	"github.com/elastic/go-elasticsearch/v7"
)

// NewElasticClient builds the Elasticsearch client shared by the index source
// and the ElasticWriter.
func NewElasticClient(cfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
}

// ElasticWriter indexes documents through the bulk API. Ids are assigned by
// Elasticsearch so every scan adds a new snapshot; documents are routed by
// their short URL id.
type ElasticWriter struct {
	es      *elasticsearch.Client
	index   string
	docType string
}

func NewElasticWriter(es *elasticsearch.Client, index, docType string) *ElasticWriter {
	return &ElasticWriter{es: es, index: index, docType: docType}
}

type bulkMeta struct {
	Index   string `json:"_index"`
	Type    string `json:"_type,omitempty"`
	Routing string `json:"routing,omitempty"`
}

func (w *ElasticWriter) body(docs []models.OutputDocument) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]bulkMeta{"index": {Index: w.index, Type: w.docType, Routing: doc.ID}}
		if err := enc.Encode(meta); err != nil {
			return nil, err
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encoding document %s: %w", doc.ID, err)
		}
	}
	return &buf, nil
}

func (w *ElasticWriter) Bulk(ctx context.Context, docs []models.OutputDocument) (*BulkResponse, error) {
	body, err := w.body(docs)
	if err != nil {
		return nil, err
	}
	res, err := w.es.Bulk(body,
		w.es.Bulk.WithContext(ctx),
		w.es.Bulk.WithIndex(w.index),
	)
	if err != nil {
		return nil, fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("bulk request: %s", res.String())
	}

	var parsed struct {
		Took   int64 `json:"took"`
		Errors bool  `json:"errors"`
		Items  []map[string]struct {
			Index  string `json:"_index"`
			Type   string `json:"_type"`
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding bulk response: %w", err)
	}

	out := &BulkResponse{Took: time.Duration(parsed.Took) * time.Millisecond}
	for _, entry := range parsed.Items {
		for op, r := range entry {
			item := BulkItem{Index: r.Index, Type: r.Type, ID: r.ID, Op: op, Status: r.Status}
			if r.Error != nil {
				item.Error = r.Error.Type + ": " + r.Error.Reason
			}
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (w *ElasticWriter) Close() error { return nil }
