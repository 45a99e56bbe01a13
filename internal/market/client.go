// Package market fetches instrument quotes from the Yahoo Finance chart
// API. Quotes are display-only context for the dashboard; they never feed
// the composite index.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rewired-gh/pizzaindex/internal/models"
)

// Client provides access to the market data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a market data client against baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// chartResponse mirrors the subset of the v8 chart payload we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open  []*float64 `json:"open"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchQuote returns the latest close, day change, and one month of daily
// closes for symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=1mo&interval=1d", c.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pizzaindex/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote request for %s returned status %d", symbol, resp.StatusCode)
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode quote for %s: %w", symbol, err)
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("quote API error for %s: %s", symbol, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("empty chart result for %s", symbol)
	}

	result := payload.Chart.Result[0]
	bars := result.Indicators.Quote[0]

	quote := &models.Quote{Symbol: symbol, FetchedAt: time.Now()}
	for i, ts := range result.Timestamp {
		if i >= len(bars.Close) || bars.Close[i] == nil {
			continue
		}
		quote.History = append(quote.History, models.QuotePoint{
			Date:  time.Unix(ts, 0).UTC(),
			Value: *bars.Close[i],
		})
	}
	if len(quote.History) == 0 {
		return nil, fmt.Errorf("no usable closes for %s", symbol)
	}

	quote.Last = quote.History[len(quote.History)-1].Value
	last := len(result.Timestamp) - 1
	if last < len(bars.Open) && last < len(bars.Close) &&
		bars.Open[last] != nil && bars.Close[last] != nil && *bars.Open[last] != 0 {
		quote.ChangePct = (*bars.Close[last] - *bars.Open[last]) / *bars.Open[last] * 100
	}
	return quote, nil
}
