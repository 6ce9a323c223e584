package ledgersync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testClient(baseURL string) *httpLedgerClient {
	return &httpLedgerClient{
		baseURL:   baseURL,
		apiKey:    "test-key",
		apiKeyHdr: "X-API-Key",
		http:      &http.Client{Timeout: 5 * time.Second},
		limiter:   time.Tick(time.Millisecond),
	}
}

func TestLedgerError_Permanent(t *testing.T) {
	if !(&LedgerError{StatusCode: 400}).Permanent() {
		t.Fatal("400 is permanent")
	}
	if !(&LedgerError{StatusCode: 422}).Permanent() {
		t.Fatal("422 is permanent")
	}
	if (&LedgerError{StatusCode: 500}).Permanent() {
		t.Fatal("500 is transient")
	}
	if (&LedgerError{StatusCode: 503}).Permanent() {
		t.Fatal("503 is transient")
	}
}

func TestCreateJournal_SendsIdempotencyKey(t *testing.T) {
	var gotKey, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotAPIKey = r.Header.Get("X-API-Key")
		var req JournalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(JournalResponse{JournalId: "JRN-42"})
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).CreateJournal(context.Background(), JournalRequest{
		Reference:  "ST-000001",
		BusinessId: "biz-1",
		Lines: []JournalLine{
			{LocationId: 1, ProductId: 2, SystemQty: decimal.NewFromInt(100), CountedQty: decimal.NewFromInt(95), VarianceQty: decimal.NewFromInt(-5)},
		},
	})
	if err != nil {
		t.Fatalf("CreateJournal: %v", err)
	}
	if resp.JournalId != "JRN-42" {
		t.Fatalf("journal id: got %q", resp.JournalId)
	}
	if gotKey != "ST-000001" {
		t.Fatalf("idempotency key: got %q want count number", gotKey)
	}
	if gotAPIKey != "test-key" {
		t.Fatalf("api key header: got %q", gotAPIKey)
	}
}

func TestCreateJournal_Non2xxBecomesLedgerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"journal_date is invalid"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateJournal(context.Background(), JournalRequest{Reference: "ST-000002"})
	var lerr *LedgerError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LedgerError, got %v", err)
	}
	if lerr.StatusCode != http.StatusUnprocessableEntity || !lerr.Permanent() {
		t.Fatalf("unexpected error: %+v", lerr)
	}
}

func TestCreateJournal_MissingJournalIdIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(JournalResponse{})
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).CreateJournal(context.Background(), JournalRequest{Reference: "ST-000003"}); err == nil {
		t.Fatal("empty journal id must be rejected")
	}
}
