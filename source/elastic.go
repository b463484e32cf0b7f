package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
)

// ElasticScroller runs scroll queries against Elasticsearch.
type ElasticScroller struct {
	es *elasticsearch.Client
}

func NewElasticScroller(es *elasticsearch.Client) *ElasticScroller {
	return &ElasticScroller{es: es}
}

func (s *ElasticScroller) Search(ctx context.Context, q IndexQuery) (Page, error) {
	opts := []func(*esapi.SearchRequest){
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(q.Index),
		s.es.Search.WithScroll(q.KeepAlive),
		s.es.Search.WithSize(q.PageSize),
		s.es.Search.WithSort("_doc"),
		s.es.Search.WithSourceIncludes(q.Field),
	}
	if q.Type != "" {
		opts = append(opts, s.es.Search.WithDocumentType(q.Type))
	}
	res, err := s.es.Search(opts...)
	if err != nil {
		return Page{}, fmt.Errorf("search %s: %w", q.Index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return Page{}, fmt.Errorf("search %s: %s", q.Index, res.String())
	}
	return parsePage(res.Body)
}

func (s *ElasticScroller) Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (Page, error) {
	res, err := s.es.Scroll(
		s.es.Scroll.WithContext(ctx),
		s.es.Scroll.WithScrollID(scrollID),
		s.es.Scroll.WithScroll(keepAlive),
	)
	if err != nil {
		return Page{}, fmt.Errorf("scroll: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return Page{}, fmt.Errorf("scroll: %s", res.String())
	}
	return parsePage(res.Body)
}

func (s *ElasticScroller) ClearScroll(ctx context.Context, scrollID string) error {
	res, err := s.es.ClearScroll(
		s.es.ClearScroll.WithContext(ctx),
		s.es.ClearScroll.WithScrollID(scrollID),
	)
	if err != nil {
		return fmt.Errorf("clear scroll: %w", err)
	}
	defer res.Body.Close()
	// 404 means the scroll already expired
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("clear scroll: %s", res.String())
	}
	return nil
}

type scrollResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			Source map[string]interface{} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func parsePage(r io.Reader) (Page, error) {
	var resp scrollResponse
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return Page{}, fmt.Errorf("decoding scroll page: %w", err)
	}
	page := Page{ScrollID: strings.TrimSpace(resp.ScrollID)}
	page.Hits = make([]map[string]interface{}, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		if h.Source == nil {
			h.Source = map[string]interface{}{}
		}
		page.Hits = append(page.Hits, h.Source)
	}
	return page, nil
}
