package anchoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Record is the body posted to the anchoring endpoint.
type Record struct {
	LotID         string    `json:"lot_id"`
	TransactionID string    `json:"transaction_id"`
	Kind          string    `json:"kind"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// HTTPAnchor mirrors lot events to an external ledger over HTTP. Server
// errors and network failures are retried with exponential backoff; 4xx
// responses are final.
type HTTPAnchor struct {
	url        string
	client     *http.Client
	maxElapsed time.Duration
	now        func() time.Time
}

// Option configures an HTTPAnchor.
type Option func(*HTTPAnchor)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *HTTPAnchor) { a.client = client }
}

// WithMaxElapsed bounds the total time spent retrying one record.
func WithMaxElapsed(d time.Duration) Option {
	return func(a *HTTPAnchor) { a.maxElapsed = d }
}

// NewHTTPAnchor creates an anchor that posts to url.
func NewHTTPAnchor(url string, timeout time.Duration, opts ...Option) *HTTPAnchor {
	a := &HTTPAnchor{
		url:        url,
		client:     &http.Client{Timeout: timeout},
		maxElapsed: timeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RecordExternalEvent implements usecase.Anchor.
func (a *HTTPAnchor) RecordExternalEvent(ctx context.Context, lotID, transactionID, kind string) error {
	body, err := json.Marshal(Record{
		LotID:         lotID,
		TransactionID: transactionID,
		Kind:          kind,
		RecordedAt:    a.now().UTC(),
	})
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = a.maxElapsed

	return backoff.Retry(func() error {
		return a.post(ctx, body)
	}, backoff.WithContext(b, ctx))
}

func (a *HTTPAnchor) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("anchor returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return backoff.Permanent(fmt.Errorf("anchor rejected record: %d", resp.StatusCode))
	}
	return nil
}

// LogAnchor records anchors in the log only. Used when no anchoring endpoint is configured.
type LogAnchor struct {
	logger zerolog.Logger
}

// NewLogAnchor creates a new LogAnchor.
func NewLogAnchor(logger zerolog.Logger) *LogAnchor {
	return &LogAnchor{logger: logger}
}

// RecordExternalEvent implements usecase.Anchor.
func (a *LogAnchor) RecordExternalEvent(ctx context.Context, lotID, transactionID, kind string) error {
	a.logger.Info().
		Str("lot_id", lotID).
		Str("transaction_id", transactionID).
		Str("kind", kind).
		Msg("anchored")
	return nil
}
