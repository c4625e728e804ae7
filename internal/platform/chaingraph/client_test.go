package chaingraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testAddress = "bitcoincash:qtestdeposit"

func TestListCandidatesNormalizesTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Variables["address"] != testAddress {
			t.Errorf("address variable = %v, want %s", req.Variables["address"], testAddress)
		}

		fmt.Fprint(w, `{"data":{"transaction":[
			{
				"transaction_hash":"tx-mempool",
				"block_height":null,
				"block_time":0,
				"transaction_outputs":[
					{"output_address":"bitcoincash:qtestdeposit","output_value":700000}
				]
			},
			{
				"transaction_hash":"tx-confirmed",
				"block_height":850000,
				"block_time":1720807200,
				"transaction_outputs":[
					{"output_address":"bitcoincash:qtestdeposit","output_value":1200000},
					{"output_address":"bitcoincash:qchange","output_value":900000}
				]
			}
		]}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)

	candidates, err := client.ListCandidates(context.Background(), testAddress, "")
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}

	mempool := candidates[0]
	if mempool.Hash != "tx-mempool" {
		t.Errorf("first hash = %s, want tx-mempool", mempool.Hash)
	}
	if mempool.Confirmed() {
		t.Error("null block height should mean unconfirmed")
	}
	if mempool.AddressSatoshi != 700_000 {
		t.Errorf("mempool satoshi = %d, want 700000", mempool.AddressSatoshi)
	}
	if mempool.Timestamp.IsZero() {
		t.Error("zero block_time should fall back to now, got zero timestamp")
	}

	confirmed := candidates[1]
	if !confirmed.Confirmed() || confirmed.BlockHeight != 850000 {
		t.Errorf("confirmed candidate = %+v, want block height 850000", confirmed)
	}
	if confirmed.AddressSatoshi != 1_200_000 {
		t.Errorf("confirmed satoshi = %d, want 1200000 (change output must not count)", confirmed.AddressSatoshi)
	}
	want := time.Unix(1720807200, 0).UTC()
	if !confirmed.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", confirmed.Timestamp, want)
	}
}

func TestListCandidatesGraphQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"message":"field \"transaction\" not found"}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)

	if _, err := client.ListCandidates(context.Background(), testAddress, ""); err == nil {
		t.Fatal("expected error when response carries graphql errors")
	}
}

func TestListCandidatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)

	if _, err := client.ListCandidates(context.Background(), testAddress, ""); err == nil {
		t.Fatal("expected error on HTTP 502")
	}
}
