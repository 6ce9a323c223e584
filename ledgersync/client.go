package ledgersync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// LedgerClient posts journal-creation requests to the external ERP ledger.
// The single implementation is HTTP; reconciliation tests substitute a fake.
type LedgerClient interface {
	CreateJournal(ctx context.Context, req JournalRequest) (*JournalResponse, error)
}

// LedgerError is a structured non-2xx response. The retry engine treats all
// ledger errors the same way at the protocol level; Permanent only informs
// the operator-review flag once the attempt ceiling is reached.
type LedgerError struct {
	StatusCode int
	Body       string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger api error %d: %s", e.StatusCode, e.Body)
}

// Permanent reports whether the status indicates a malformed request that a
// retry cannot fix.
func (e *LedgerError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

type httpLedgerClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

func NewClient() (LedgerClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("LEDGER_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("LEDGER_API_BASE_URL is required")
	}
	apiKey := strings.TrimSpace(os.Getenv("LEDGER_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("LEDGER_API_KEY is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("LEDGER_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("LEDGER_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &httpLedgerClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

func (c *httpLedgerClient) CreateJournal(ctx context.Context, journalReq JournalRequest) (*JournalResponse, error) {
	<-c.limiter
	body, err := json.Marshal(journalReq)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/v1/journals"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// The reference doubles as an idempotency key so a retried request after
	// an ambiguous timeout cannot create a second journal.
	req.Header.Set("Idempotency-Key", journalReq.Reference)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &LedgerError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var parsed JournalResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, err
	}
	if parsed.JournalId == "" {
		return nil, errors.New("ledger api returned no journal id")
	}
	return &parsed, nil
}
