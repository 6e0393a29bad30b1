package market

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
)

// HTTPJSONAdapter talks to a JSON search API under a base URL:
//
//	GET {base}/api/search?q=...&max_price=...&location=...
//	  -> {"listings":[...]} or a bare array
type HTTPJSONAdapter struct {
	name      string
	baseURL   string
	client    *http.Client
	userAgent string
}

type HTTPJSONOptions struct {
	Name      string
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

func NewHTTPJSONAdapter(opts HTTPJSONOptions) (*HTTPJSONAdapter, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("BaseURL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	to := opts.Timeout
	if to <= 0 {
		to = 20 * time.Second
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "http-json"
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "gosnaggit/1.0"
	}
	return &HTTPJSONAdapter{
		name:      name,
		baseURL:   strings.TrimRight(base, "/"),
		client:    &http.Client{Timeout: to},
		userAgent: ua,
	}, nil
}

func (a *HTTPJSONAdapter) Name() string { return a.name }

func (a *HTTPJSONAdapter) Search(ctx context.Context, q Query) ([]Listing, error) {
	u, err := url.Parse(a.baseURL + "/api/search")
	if err != nil {
		return nil, err
	}
	qs := u.Query()
	qs.Set("q", strings.TrimSpace(q.Text))
	if q.MaxPrice != nil && *q.MaxPrice > 0 {
		qs.Set("max_price", strconv.FormatInt(*q.MaxPrice, 10))
	}
	if q.Location != "" {
		qs.Set("location", q.Location)
	}
	u.RawQuery = qs.Encode()

	body, err := a.doGET(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return ParseSearchPayload(body)
}

func (a *HTTPJSONAdapter) doGET(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed: status %d", resp.StatusCode)
	}
	return body, nil
}

// ParseSearchPayload accepts both object-wrapped and bare-array payloads.
// An object payload with no listings is a valid empty result, not an error.
func ParseSearchPayload(raw []byte) ([]Listing, error) {
	var wrapped struct {
		Listings []Listing `json:"listings"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return normalize(wrapped.Listings), nil
	}
	var arr []Listing
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, fmt.Errorf("search payload parse: %w", err)
	}
	return normalize(arr), nil
}

func normalize(in []Listing) []Listing {
	out := make([]Listing, 0, len(in))
	for _, l := range in {
		l.ExternalID = strings.TrimSpace(l.ExternalID)
		l.Title = strings.TrimSpace(l.Title)
		l.ListingURL = strings.TrimSpace(l.ListingURL)
		out = append(out, l)
	}
	return out
}
