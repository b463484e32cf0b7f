package source

import (
	"context"
	"io"
	"strings"
	"time"

	"shorturl-analytics/logging"
)

// Page is one page of a scroll query.
type Page struct {
	ScrollID string
	Hits     []map[string]interface{}
}

// Scroller is the part of a search client an IndexSource needs.
type Scroller interface {
	Search(ctx context.Context, q IndexQuery) (Page, error)
	Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (Page, error)
	ClearScroll(ctx context.Context, scrollID string) error
}

// IndexQuery describes a full scan of one index projecting one field.
type IndexQuery struct {
	Index     string
	Type      string
	Field     string
	PageSize  int
	KeepAlive time.Duration
}

// IndexSource scrolls over every document of an index and yields the URL
// stored in the configured field.
type IndexSource struct {
	scroller Scroller
	query    IndexQuery
}

func NewIndexSource(s Scroller, q IndexQuery) *IndexSource {
	if q.PageSize <= 0 {
		q.PageSize = 100
	}
	q.KeepAlive = keepAliveOrDefault(q.KeepAlive)
	return &IndexSource{scroller: s, query: q}
}

func (s *IndexSource) Name() string {
	return "index:" + s.query.Index + "/" + s.query.Type
}

// Open returns a cursor; the first search runs on the first Next.
func (s *IndexSource) Open(ctx context.Context) (Cursor, error) {
	return &indexCursor{src: s}, nil
}

type indexCursor struct {
	src      *IndexSource
	started  bool
	done     bool
	scrollID string
	hits     []map[string]interface{}
}

func (c *indexCursor) Next(ctx context.Context) (string, error) {
	for {
		for len(c.hits) > 0 {
			hit := c.hits[0]
			c.hits = c.hits[1:]
			url, ok := fieldString(hit, c.src.query.Field)
			if !ok {
				logging.DebugLogger.Printf("field %q can't be found in hit of %s, skipping document", c.src.query.Field, c.src.Name())
				continue
			}
			return NormalizeURL(url), nil
		}
		if c.done {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := c.fetch(ctx); err != nil {
			return "", &SourceError{Source: c.src.Name(), Err: err}
		}
	}
}

func (c *indexCursor) fetch(ctx context.Context) error {
	var (
		page Page
		err  error
	)
	if !c.started {
		page, err = c.src.scroller.Search(ctx, c.src.query)
		c.started = true
	} else {
		page, err = c.src.scroller.Scroll(ctx, c.scrollID, c.src.query.KeepAlive)
	}
	if err != nil {
		c.done = true
		return err
	}
	if page.ScrollID != "" {
		c.scrollID = page.ScrollID
	}
	if len(page.Hits) == 0 || c.scrollID == "" {
		c.done = true
	}
	c.hits = page.Hits
	return nil
}

// Close releases the server side scroll context.
func (c *indexCursor) Close() error {
	if c.scrollID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id := c.scrollID
	c.scrollID = ""
	return c.src.scroller.ClearScroll(ctx, id)
}

// fieldString reads a string field, following dots into nested objects.
func fieldString(doc map[string]interface{}, field string) (string, bool) {
	if v, ok := doc[field]; ok {
		s, isString := v.(string)
		return s, isString && s != ""
	}
	parts := strings.Split(field, ".")
	var cur interface{} = doc
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		if cur, ok = m[p]; !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok && s != ""
}
