// Package chaingraph is an indexer adapter for a Chaingraph GraphQL node. It
// queries transactions whose outputs pay a monitored address and normalizes
// them into domain.CandidateTransaction values.
package chaingraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/scorechain/bchbet/internal/domain"
)

// queryLimit caps how many transactions a single candidate query returns.
const queryLimit = 100

// Client is a GraphQL client for a Chaingraph instance.
type Client struct {
	graphqlURL string
	httpClient *http.Client
}

// NewClient creates a Chaingraph client. graphqlURL is the GraphQL endpoint,
// e.g. "http://localhost:1337/v1/graphql".
func NewClient(graphqlURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		graphqlURL: graphqlURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ListCandidates returns recent transactions paying the given address, newest
// first by block height and transaction index. The cursor hint is not pushed
// into the query: Chaingraph pagination by hash would require a second lookup
// for the hash's position, and the engine de-duplicates against the ledger
// regardless of how much this adapter re-delivers.
//
// TODO: resolve origin addresses by joining transaction inputs to their
// source outputs once the monitored Chaingraph instance indexes them.
func (c *Client) ListCandidates(ctx context.Context, address, _ string) ([]domain.CandidateTransaction, error) {
	query := `
		query AddressTransactions($address: String!, $limit: Int!) {
			transaction(
				where: { transaction_outputs: { output_address: { _eq: $address } } }
				order_by: { block_height: desc, transaction_index: desc }
				limit: $limit
			) {
				transaction_hash
				block_height
				block_time
				transaction_outputs {
					output_address
					output_value
				}
			}
		}
	`

	variables := map[string]any{
		"address": address,
		"limit":   queryLimit,
	}

	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("chaingraph: list candidates for %s: %w", address, err)
	}

	var result struct {
		Transaction []struct {
			TransactionHash string      `json:"transaction_hash"`
			BlockHeight     *int64      `json:"block_height"`
			BlockTime       json.Number `json:"block_time"`
			Outputs         []struct {
				OutputAddress string `json:"output_address"`
				OutputValue   int64  `json:"output_value"`
			} `json:"transaction_outputs"`
		} `json:"transaction"`
	}

	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("chaingraph: decode candidates: %w", err)
	}

	candidates := make([]domain.CandidateTransaction, 0, len(result.Transaction))
	for _, tx := range result.Transaction {
		cand := domain.CandidateTransaction{
			Hash: tx.TransactionHash,
		}

		// A null block height means the transaction is still in the mempool.
		if tx.BlockHeight != nil {
			cand.BlockHeight = *tx.BlockHeight
		}

		for _, out := range tx.Outputs {
			if out.OutputAddress == address {
				cand.AddressSatoshi += out.OutputValue
			}
		}

		if unix, err := strconv.ParseInt(tx.BlockTime.String(), 10, 64); err == nil && unix > 0 {
			cand.Timestamp = time.Unix(unix, 0).UTC()
		} else {
			cand.Timestamp = time.Now().UTC()
		}

		candidates = append(candidates, cand)
	}

	return candidates, nil
}

// doQuery executes a GraphQL query and returns the raw "data" field.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
