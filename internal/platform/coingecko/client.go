// Package coingecko fetches the BCH/USD spot rate from the CoinGecko simple
// price API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scorechain/bchbet/internal/domain"
)

// Client queries the CoinGecko API for exchange-rate snapshots.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a CoinGecko client. baseURL is typically
// "https://api.coingecko.com/api/v3".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchRate returns the current BCH/USD rate as a snapshot captured now.
// The response value is decoded as a JSON number string to avoid a lossy
// float64 round trip.
func (c *Client) FetchRate(ctx context.Context) (domain.ExchangeRate, error) {
	reqURL := c.baseURL + "/simple/price?ids=bitcoin-cash&vs_currencies=usd"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("coingecko: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("coingecko: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("coingecko: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.ExchangeRate{}, fmt.Errorf("coingecko: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed map[string]map[string]json.Number
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("coingecko: decode response: %w", err)
	}

	usd, ok := parsed["bitcoin-cash"]["usd"]
	if !ok {
		return domain.ExchangeRate{}, fmt.Errorf("coingecko: bitcoin-cash/usd missing from response")
	}

	rate, err := decimal.NewFromString(usd.String())
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("coingecko: parse rate %q: %w", usd, err)
	}

	return domain.ExchangeRate{
		Rate:       rate,
		CapturedAt: time.Now().UTC(),
	}, nil
}
