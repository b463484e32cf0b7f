package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"shorturl-analytics/config"
)

func drain(t *testing.T, r Reader) []string {
	t.Helper()
	cur, err := r.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cur.Close()
	var out []string
	for {
		u, err := cur.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, u)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := map[string]string{
		"bit.ly/abc":          "http://bit.ly/abc",
		"goo.gl/fbsS":         "http://goo.gl/fbsS",
		"http://bit.ly/def":   "http://bit.ly/def",
		"https://goo.gl/fbsS": "https://goo.gl/fbsS",
		"HTTP://goo.gl/X":     "HTTP://goo.gl/X",
	}
	for in, want := range tests {
		if got := NormalizeURL(in); got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	body := "bit.ly/abc\n\n  http://bit.ly/def  \n\t\ngoo.gl/xyz\r\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}

	want := []string{"http://bit.ly/abc", "http://bit.ly/def", "http://goo.gl/xyz"}
	if got := drain(t, src); !reflect.DeepEqual(got, want) {
		t.Errorf("first pass = %v, want %v", got, want)
	}
	// every Open is a fresh pass
	if got := drain(t, src); !reflect.DeepEqual(got, want) {
		t.Errorf("second pass = %v, want %v", got, want)
	}
}

func TestNewFileSourceRejectsBadPaths(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFileSource(dir); err == nil {
		t.Error("expected an error for a directory")
	}
	if _, err := NewFileSource(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestNewFromConfig(t *testing.T) {
	_, err := New(config.SourceConfig{Type: config.SourceFile, FilePath: "/does/not/exist"}, nil)
	var cfgErr *config.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.ConfigError, got %v", err)
	}

	_, err = New(config.SourceConfig{Type: config.SourceIndex, IndexName: "links", IndexType: "link", URLField: "url"}, nil)
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.ConfigError without scroller, got %v", err)
	}

	r, err := New(config.SourceConfig{Type: config.SourceIndex, IndexName: "links", IndexType: "link", URLField: "url"}, &fakeScroller{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.Name() != "index:links/link" {
		t.Errorf("Name() = %q", r.Name())
	}
}

type fakeScroller struct {
	searchPage  Page
	scrollPages []Page
	searches    int
	scrolls     int
	cleared     []string
	scrollErr   error
}

func (f *fakeScroller) Search(ctx context.Context, q IndexQuery) (Page, error) {
	f.searches++
	return f.searchPage, nil
}

func (f *fakeScroller) Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (Page, error) {
	f.scrolls++
	if f.scrollErr != nil {
		return Page{}, f.scrollErr
	}
	if len(f.scrollPages) == 0 {
		return Page{ScrollID: scrollID}, nil
	}
	p := f.scrollPages[0]
	f.scrollPages = f.scrollPages[1:]
	return p, nil
}

func (f *fakeScroller) ClearScroll(ctx context.Context, scrollID string) error {
	f.cleared = append(f.cleared, scrollID)
	return nil
}

func TestIndexSourceStopsOnEmptyPage(t *testing.T) {
	fs := &fakeScroller{
		searchPage: Page{ScrollID: "s1", Hits: []map[string]interface{}{
			{"short": "goo.gl/a"},
			{"short": "http://goo.gl/b"},
		}},
		scrollPages: []Page{{ScrollID: "s1"}},
	}
	src := NewIndexSource(fs, IndexQuery{Index: "links", Type: "link", Field: "short"})

	got := drain(t, src)
	want := []string{"http://goo.gl/a", "http://goo.gl/b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("urls = %v, want %v", got, want)
	}
	if fs.searches != 1 || fs.scrolls != 1 {
		t.Errorf("searches=%d scrolls=%d, want 1 and 1", fs.searches, fs.scrolls)
	}
	if !reflect.DeepEqual(fs.cleared, []string{"s1"}) {
		t.Errorf("cleared = %v", fs.cleared)
	}
}

func TestIndexSourceSkipsHitsWithoutField(t *testing.T) {
	fs := &fakeScroller{
		searchPage: Page{ScrollID: "s1", Hits: []map[string]interface{}{
			{"other": "x"},
			{"link": map[string]interface{}{"short": "goo.gl/nested"}},
			{"short": 42},
		}},
		scrollPages: []Page{
			{ScrollID: "s2", Hits: []map[string]interface{}{{"short": "goo.gl/c"}}},
			{ScrollID: "s2"},
		},
	}
	src := NewIndexSource(fs, IndexQuery{Index: "links", Field: "short"})
	if got := drain(t, src); !reflect.DeepEqual(got, []string{"http://goo.gl/c"}) {
		t.Errorf("urls = %v", got)
	}
	if fs.scrolls != 2 {
		t.Errorf("scrolls = %d, want 2", fs.scrolls)
	}

	nested := NewIndexSource(&fakeScroller{searchPage: fs.searchPage}, IndexQuery{Index: "links", Field: "link.short"})
	if got := drain(t, nested); !reflect.DeepEqual(got, []string{"http://goo.gl/nested"}) {
		t.Errorf("nested urls = %v", got)
	}
}

func TestIndexSourceScrollError(t *testing.T) {
	fs := &fakeScroller{
		searchPage: Page{ScrollID: "s1", Hits: []map[string]interface{}{{"short": "goo.gl/a"}}},
		scrollErr:  errors.New("cluster unavailable"),
	}
	cur, _ := NewIndexSource(fs, IndexQuery{Index: "links", Field: "short"}).Open(context.Background())
	defer cur.Close()

	if u, err := cur.Next(context.Background()); err != nil || u != "http://goo.gl/a" {
		t.Fatalf("first Next = %q, %v", u, err)
	}
	_, err := cur.Next(context.Background())
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("expected *SourceError, got %v", err)
	}
	if _, err := cur.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("cursor should be exhausted after an error, got %v", err)
	}
}

func TestParsePage(t *testing.T) {
	body := `{"_scroll_id":"DXF1ZXJ5","took":3,"hits":{"total":{"value":2},"hits":[
		{"_index":"links","_id":"1","_source":{"short":"goo.gl/a"}},
		{"_index":"links","_id":"2"}
	]}}`
	page, err := parsePage(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parsePage: %v", err)
	}
	if page.ScrollID != "DXF1ZXJ5" {
		t.Errorf("scroll id = %q", page.ScrollID)
	}
	if len(page.Hits) != 2 || page.Hits[0]["short"] != "goo.gl/a" || page.Hits[1] == nil {
		t.Errorf("hits = %v", page.Hits)
	}
}
