package blockchair

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const testAddress = "bitcoincash:qtestdeposit"

func dashboardJSON(address string, hashes ...string) string {
	txs := ""
	for i, h := range hashes {
		if i > 0 {
			txs += ","
		}
		txs += fmt.Sprintf(`{"hash":%q}`, h)
	}
	return fmt.Sprintf(`{"data":{%q:{"transactions":[%s]}}}`, address, txs)
}

func txJSON(hash string, blockID int64, ts, origin string, outputs map[string]int64) string {
	outs := ""
	for addr, val := range outputs {
		if outs != "" {
			outs += ","
		}
		outs += fmt.Sprintf(`{"recipient":%q,"value":%d}`, addr, val)
	}
	return fmt.Sprintf(
		`{"data":{%q:{"transaction":{"block_id":%d,"time":%q},"inputs":[{"recipient":%q,"value":1}],"outputs":[%s]}}}`,
		hash, blockID, ts, origin, outs,
	)
}

func TestListCandidatesNormalizesTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dashboards/address/" + testAddress:
			fmt.Fprint(w, dashboardJSON(testAddress, "tx-new", "tx-old"))
		case "/dashboards/transaction/tx-new":
			fmt.Fprint(w, txJSON("tx-new", 850000, "2024-07-12 18:00:00", "bitcoincash:qsender", map[string]int64{
				testAddress:           1_200_000,
				"bitcoincash:qchange": 3_000_000,
			}))
		case "/dashboards/transaction/tx-old":
			fmt.Fprint(w, txJSON("tx-old", -1, "", "bitcoincash:qother", map[string]int64{
				testAddress: 500_000,
			}))
		default:
			t.Errorf("unexpected request path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)

	candidates, err := client.ListCandidates(context.Background(), testAddress, "")
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}

	first := candidates[0]
	if first.Hash != "tx-new" {
		t.Errorf("first hash = %s, want tx-new", first.Hash)
	}
	if first.BlockHeight != 850000 {
		t.Errorf("block height = %d, want 850000", first.BlockHeight)
	}
	if !first.Confirmed() {
		t.Error("tx-new should be confirmed")
	}
	if first.AddressSatoshi != 1_200_000 {
		t.Errorf("address satoshi = %d, want 1200000 (change output must not count)", first.AddressSatoshi)
	}
	if first.OriginAddress != "bitcoincash:qsender" {
		t.Errorf("origin = %s, want bitcoincash:qsender", first.OriginAddress)
	}
	want := time.Date(2024, 7, 12, 18, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, want)
	}

	second := candidates[1]
	if second.Confirmed() {
		t.Error("tx-old has block_id -1 and should be unconfirmed")
	}
	if second.Timestamp.IsZero() {
		t.Error("missing time should fall back to now, got zero")
	}
}

func TestListCandidatesStopsAtCursorHint(t *testing.T) {
	var detailFetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dashboards/address/" + testAddress:
			fmt.Fprint(w, dashboardJSON(testAddress, "tx-c", "tx-b", "tx-cursor", "tx-a"))
		case "/dashboards/transaction/tx-c", "/dashboards/transaction/tx-b":
			detailFetches.Add(1)
			hash := r.URL.Path[len("/dashboards/transaction/"):]
			fmt.Fprint(w, txJSON(hash, 850001, "2024-07-12 19:00:00", "bitcoincash:qsender", map[string]int64{
				testAddress: 600_000,
			}))
		default:
			t.Errorf("detail fetched past cursor: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)

	candidates, err := client.ListCandidates(context.Background(), testAddress, "tx-cursor")
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3 (two expanded plus cursor sentinel)", len(candidates))
	}
	if got := detailFetches.Load(); got != 2 {
		t.Errorf("detail fetches = %d, want 2", got)
	}
	last := candidates[2]
	if last.Hash != "tx-cursor" || last.AddressSatoshi != 0 {
		t.Errorf("cursor entry should be a bare hash, got %+v", last)
	}
}

func TestListCandidatesSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "secret" {
			t.Errorf("key query param = %q, want secret", got)
		}
		fmt.Fprint(w, dashboardJSON(testAddress))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", 5*time.Second)

	if _, err := client.ListCandidates(context.Background(), testAddress, ""); err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
}

func TestListCandidatesUnknownAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)

	candidates, err := client.ListCandidates(context.Background(), testAddress, "")
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("got %d candidates for unknown address, want 0", len(candidates))
	}
}

func TestListCandidatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)

	if _, err := client.ListCandidates(context.Background(), testAddress, ""); err == nil {
		t.Fatal("expected error on HTTP 429")
	}
}
