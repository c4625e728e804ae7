// Package blockchair is an indexer adapter for the Blockchair Bitcoin Cash
// REST API. It normalizes Blockchair's address dashboard and per-transaction
// detail responses into domain.CandidateTransaction values.
package blockchair

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/scorechain/bchbet/internal/domain"
)

// blockchairTimeLayout is the timestamp format used by the Blockchair API,
// e.g. "2024-07-12 18:00:00" (UTC).
const blockchairTimeLayout = "2006-01-02 15:04:05"

// defaultTxLimit caps how many recent transactions the address dashboard
// request asks for.
const defaultTxLimit = 100

// Client queries the Blockchair BCH API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Blockchair client. baseURL is typically
// "https://api.blockchair.com/bitcoin-cash". The Blockchair API key is passed
// as a query parameter on every request.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// addressDashboard is the subset of the dashboards/address response we use.
type addressDashboard struct {
	Data map[string]struct {
		Transactions []txSummary `json:"transactions"`
	} `json:"data"`
}

// txSummary is one entry of an address dashboard's transaction list.
type txSummary struct {
	Hash string `json:"hash"`
}

// txDashboard is the subset of the dashboards/transaction response we use.
type txDashboard struct {
	Data map[string]struct {
		Transaction struct {
			BlockID int64  `json:"block_id"`
			Time    string `json:"time"`
		} `json:"transaction"`
		Inputs  []txIO `json:"inputs"`
		Outputs []txIO `json:"outputs"`
	} `json:"data"`
}

// txIO is a single input or output of a Blockchair transaction.
type txIO struct {
	Recipient string `json:"recipient"`
	Value     int64  `json:"value"`
}

// ListCandidates returns recent transactions paying the given address, newest
// first as delivered by Blockchair. The address dashboard only carries hashes,
// so each one costs a per-transaction detail request; the cursor hint bounds
// that cost -- once the hint is reached the hash is returned bare (the engine
// stops there anyway) and older entries are not expanded.
func (c *Client) ListCandidates(ctx context.Context, address, cursorHint string) ([]domain.CandidateTransaction, error) {
	summaries, err := c.fetchAddressTransactions(ctx, address)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.CandidateTransaction, 0, len(summaries))
	for _, s := range summaries {
		if s.Hash == cursorHint {
			candidates = append(candidates, domain.CandidateTransaction{Hash: s.Hash})
			break
		}

		cand, err := c.fetchTransaction(ctx, s.Hash, address)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}

	return candidates, nil
}

func (c *Client) fetchAddressTransactions(ctx context.Context, address string) ([]txSummary, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(defaultTxLimit))

	var dash addressDashboard
	if err := c.get(ctx, "/dashboards/address/"+address, params, &dash); err != nil {
		return nil, fmt.Errorf("blockchair: address dashboard %s: %w", address, err)
	}

	entry, ok := dash.Data[address]
	if !ok {
		return nil, nil
	}
	return entry.Transactions, nil
}

func (c *Client) fetchTransaction(ctx context.Context, hash, address string) (domain.CandidateTransaction, error) {
	var dash txDashboard
	if err := c.get(ctx, "/dashboards/transaction/"+hash, nil, &dash); err != nil {
		return domain.CandidateTransaction{}, fmt.Errorf("blockchair: transaction dashboard %s: %w", hash, err)
	}

	entry, ok := dash.Data[hash]
	if !ok {
		return domain.CandidateTransaction{}, fmt.Errorf("blockchair: transaction %s missing from response", hash)
	}

	cand := domain.CandidateTransaction{
		Hash:        hash,
		BlockHeight: entry.Transaction.BlockID,
	}

	// Blockchair reports unconfirmed transactions with block_id -1.
	if cand.BlockHeight < 0 {
		cand.BlockHeight = 0
	}

	for _, out := range entry.Outputs {
		if out.Recipient == address {
			cand.AddressSatoshi += out.Value
		}
	}
	if len(entry.Inputs) > 0 {
		cand.OriginAddress = entry.Inputs[0].Recipient
	}

	if entry.Transaction.Time != "" {
		ts, err := time.ParseInLocation(blockchairTimeLayout, entry.Transaction.Time, time.UTC)
		if err != nil {
			return domain.CandidateTransaction{}, fmt.Errorf("blockchair: parse time %q for %s: %w", entry.Transaction.Time, hash, err)
		}
		cand.Timestamp = ts
	} else {
		cand.Timestamp = time.Now().UTC()
	}

	return cand, nil
}

// get performs a GET request against the Blockchair API and decodes the JSON
// response into v.
func (c *Client) get(ctx context.Context, path string, params url.Values, v any) error {
	if params == nil {
		params = url.Values{}
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	reqURL := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
