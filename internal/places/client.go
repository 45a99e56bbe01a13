// Package places fetches live and baseline busyness for a venue from the
// Google Maps popular-times payload. The payload is an undocumented nested
// JSON array; every extraction is defensive and a missing field yields an
// absent value, never an error for the whole batch.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rewired-gh/pizzaindex/internal/models"
)

// Client queries the popularity provider.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// Popularity is one venue's busyness at a point in time. Current is nil
// when the venue is closed or the provider has no live reading; Usual is
// nil when no baseline exists for the current weekday/hour.
type Popularity struct {
	Current *int
	Usual   *int
	Hourly  []int
}

// NewClient creates a popularity client against baseURL.
func NewClient(baseURL string, timeout time.Duration, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// Resolve looks a venue up by free-text address query and returns its
// identity so the host can cache it and skip rediscovery on restart.
func (c *Client) Resolve(ctx context.Context, sensorID, query string) (*models.Place, error) {
	venue, err := c.fetchVenue(ctx, query)
	if err != nil {
		return nil, err
	}
	name, _ := asString(dig(venue, 11))
	if name == "" {
		return nil, fmt.Errorf("no venue found for query %q", query)
	}
	address, _ := asString(dig(venue, 39))
	placeID, _ := asString(dig(venue, 78))
	rating, _ := asFloat(dig(venue, 4, 7))
	return &models.Place{
		SensorID:   sensorID,
		PlaceID:    placeID,
		Name:       name,
		Address:    address,
		Rating:     rating,
		ResolvedAt: time.Now(),
	}, nil
}

// FetchPopularity returns the venue's live busyness and the baseline for
// the weekday/hour of now.
func (c *Client) FetchPopularity(ctx context.Context, query string, now time.Time) (Popularity, error) {
	venue, err := c.fetchVenue(ctx, query)
	if err != nil {
		return Popularity{}, err
	}

	var pop Popularity
	if v, ok := asInt(dig(venue, 84, 7, 1)); ok {
		pop.Current = models.IntPtr(v)
	}

	hourly, present := hourlyForDay(dig(venue, 84, 0), weekdayIndex(now))
	pop.Hourly = hourly
	if hourly != nil && present[now.Hour()] {
		pop.Usual = models.IntPtr(hourly[now.Hour()])
	}
	return pop, nil
}

// weekdayIndex maps time.Weekday to the provider's Monday-first day order.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// hourlyForDay extracts one day's 24-slot baseline from the popular-times
// block. The block is a list of day entries, positionally Monday-first;
// each day entry holds a list of [hour, busyness, ...] tuples. The present
// array marks which hour slots the payload actually carried.
func hourlyForDay(popularTimes any, day int) ([]int, [24]bool) {
	var present [24]bool
	days, ok := popularTimes.([]any)
	if !ok || day < 0 || day >= len(days) {
		return nil, present
	}
	slots, ok := dig(days[day], 1).([]any)
	if !ok {
		return nil, present
	}
	hourly := make([]int, 24)
	for _, s := range slots {
		hour, hok := asInt(dig(s, 0))
		value, vok := asInt(dig(s, 1))
		if !hok || !vok || hour < 0 || hour > 23 {
			continue
		}
		hourly[hour] = value
		present[hour] = true
	}
	return hourly, present
}

// fetchVenue performs the maps search and returns the first venue record.
func (c *Client) fetchVenue(ctx context.Context, query string) (any, error) {
	u := fmt.Sprintf("%s/search?tbm=map&hl=en&q=%s", c.baseURL, url.QueryEscape(query))
	body, err := c.doRequest(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch venue data: %w", err)
	}
	doc, err := parsePayload(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse venue payload: %w", err)
	}
	// Single exact match puts the record at [0][1][0][14]; result lists
	// start one entry later.
	if venue := dig(doc, 0, 1, 0, 14); venue != nil {
		return venue, nil
	}
	if venue := dig(doc, 0, 1, 1, 14); venue != nil {
		return venue, nil
	}
	return nil, fmt.Errorf("no venue record in payload for query %q", query)
}

const payloadMarker = `/*""*/`

// parsePayload unwraps the search response: an HTML page whose trailing
// script carries a JSON envelope after the /*""*/ marker, whose "d" field
// is itself JSON behind an XSSI guard prefix.
func parsePayload(body []byte) (any, error) {
	idx := bytes.LastIndex(body, []byte(payloadMarker))
	if idx < 0 {
		return nil, fmt.Errorf("payload marker not found")
	}
	var envelope struct {
		D string `json:"d"`
	}
	if err := json.Unmarshal(body[idx+len(payloadMarker):], &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode payload envelope: %w", err)
	}
	blob := strings.TrimPrefix(envelope.D, ")]}'")
	var doc any
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode payload document: %w", err)
	}
	return doc, nil
}

// dig walks nested []any by index, returning nil as soon as the path
// doesn't exist.
func dig(v any, path ...int) any {
	for _, i := range path {
		arr, ok := v.([]any)
		if !ok || i < 0 || i >= len(arr) {
			return nil
		}
		v = arr[i]
	}
	return v
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// doRequest performs an HTTP GET with linear-backoff retry on transport
// errors and 5xx responses.
func (c *Client) doRequest(ctx context.Context, urlStr string) ([]byte, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if !sleepCtx(ctx, c.retryDelayBase*time.Duration(i+1)) {
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			if !sleepCtx(ctx, c.retryDelayBase*time.Duration(i+1)) {
				return nil, ctx.Err()
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
