// Package writer holds the bulk destinations click snapshots are written to.
package writer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shorturl-analytics/models"
)

// BulkWriter submits a batch of documents as one request. A returned error
// means the request as a whole could not be executed; per-document outcomes
// are reported in the response.
type BulkWriter interface {
	Bulk(ctx context.Context, docs []models.OutputDocument) (*BulkResponse, error)
	Close() error
}

// BulkItem is the outcome of one document in a bulk request.
type BulkItem struct {
	Index  string
	Type   string
	ID     string
	Op     string
	Status int
	Error  string
}

func (i BulkItem) Failed() bool { return i.Error != "" }

// BulkResponse collects the item outcomes of a bulk request, in request order.
type BulkResponse struct {
	Took  time.Duration
	Items []BulkItem
}

func (r *BulkResponse) HasFailures() bool {
	if r == nil {
		return false
	}
	for _, it := range r.Items {
		if it.Failed() {
			return true
		}
	}
	return false
}

// Failed returns the failed items.
func (r *BulkResponse) Failed() []BulkItem {
	if r == nil {
		return nil
	}
	var out []BulkItem
	for _, it := range r.Items {
		if it.Failed() {
			out = append(out, it)
		}
	}
	return out
}

// FailureMessage summarizes the failed items in one line.
func (r *BulkResponse) FailureMessage() string {
	var b strings.Builder
	b.WriteString("failure in bulk execution:")
	if r == nil {
		return b.String()
	}
	for i, it := range r.Items {
		if !it.Failed() {
			continue
		}
		fmt.Fprintf(&b, "\n[%d]: index [%s], type [%s], id [%s], message [%s]", i, it.Index, it.Type, it.ID, it.Error)
	}
	return b.String()
}
