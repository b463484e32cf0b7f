package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shorturl-analytics/config"
	"shorturl-analytics/models"
)

var (
	// ErrMalformedResponse means the body was not the expected JSON.
	ErrMalformedResponse = errors.New("malformed analytics response")
	// ErrMissingField means a required field was absent from the response.
	ErrMissingField = errors.New("missing required field")
)

// Fetcher retrieves the analytics of one short URL.
type Fetcher interface {
	Fetch(ctx context.Context, shortURL string) (models.AnalyticsRecord, error)
}

// FetchError wraps every failure of a single fetch. StatusCode is zero when
// no HTTP response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client queries the URL shortener analytics API.
type Client struct {
	endpoint  string
	client    *http.Client
	userAgent string
}

// NewClient validates the endpoint and builds a client with the configured
// timeout.
func NewClient(cfg config.AnalyticsConfig) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("analytics endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid analytics endpoint: %w", err)
	}
	timeout := cfg.Timeout.D()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "shorturl-analytics/1.0"
	}
	return &Client{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		userAgent: ua,
	}, nil
}

// Fetch performs GET <endpoint>?projection=FULL&shortUrl=<shortURL>.
func (c *Client) Fetch(ctx context.Context, shortURL string) (models.AnalyticsRecord, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return models.AnalyticsRecord{}, &FetchError{URL: shortURL, Err: err}
	}
	q := u.Query()
	q.Set("projection", "FULL")
	q.Set("shortUrl", shortURL)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.AnalyticsRecord{}, &FetchError{URL: shortURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return models.AnalyticsRecord{}, &FetchError{URL: shortURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.AnalyticsRecord{}, &FetchError{URL: shortURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.AnalyticsRecord{}, &FetchError{URL: shortURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected http status %d", resp.StatusCode)}
	}

	rec, err := Parse(body)
	if err != nil {
		return models.AnalyticsRecord{}, &FetchError{URL: shortURL, StatusCode: resp.StatusCode, Err: err}
	}
	return rec, nil
}

// response mirrors the API payload. Pointers tell absent fields apart from
// zero values.
type response struct {
	ID        *string `json:"id"`
	Status    *string `json:"status"`
	Created   *string `json:"created"`
	Analytics *struct {
		TwoHours *struct {
			ShortURLClicks *count      `json:"shortUrlClicks"`
			Countries      []breakdown `json:"countries"`
			Referrers      []breakdown `json:"referrers"`
			Browsers       []breakdown `json:"browsers"`
			Platforms      []breakdown `json:"platforms"`
		} `json:"twoHours"`
	} `json:"analytics"`
}

type breakdown struct {
	Count count  `json:"count"`
	ID    string `json:"id"`
}

// count accepts both 5 and "5"; the API reports counters as strings.
type count int64

func (c *count) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid count %s: %w", string(b), err)
	}
	*c = count(n)
	return nil
}

// Parse decodes an analytics response body into a record.
func Parse(body []byte) (models.AnalyticsRecord, error) {
	var raw response
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.AnalyticsRecord{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	switch {
	case raw.ID == nil:
		return models.AnalyticsRecord{}, fmt.Errorf("%w: id", ErrMissingField)
	case raw.Status == nil:
		return models.AnalyticsRecord{}, fmt.Errorf("%w: status", ErrMissingField)
	case raw.Created == nil:
		return models.AnalyticsRecord{}, fmt.Errorf("%w: created", ErrMissingField)
	case raw.Analytics == nil || raw.Analytics.TwoHours == nil || raw.Analytics.TwoHours.ShortURLClicks == nil:
		return models.AnalyticsRecord{}, fmt.Errorf("%w: analytics.twoHours.shortUrlClicks", ErrMissingField)
	}

	two := raw.Analytics.TwoHours
	clicks := int64(*two.ShortURLClicks)
	if clicks < 0 {
		return models.AnalyticsRecord{}, fmt.Errorf("%w: negative click count %d", ErrMalformedResponse, clicks)
	}
	return models.AnalyticsRecord{
		ID:                *raw.ID,
		Status:            *raw.Status,
		Created:           *raw.Created,
		TotalClicksLast2h: clicks,
		Countries:         convert(two.Countries),
		Referrers:         convert(two.Referrers),
		Browsers:          convert(two.Browsers),
		Platforms:         convert(two.Platforms),
	}, nil
}

func convert(in []breakdown) []models.Breakdown {
	out := make([]models.Breakdown, 0, len(in))
	for _, b := range in {
		out = append(out, models.Breakdown{Count: int64(b.Count), ID: b.ID})
	}
	return out
}
