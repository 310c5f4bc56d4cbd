// Package webhooks notifies configured endpoints after a merge commits.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/merge"
)

const (
	defaultTimeout     = 500 * time.Millisecond
	defaultConcurrency = 4
)

// MergedEvent is the event name carried by every payload.
const MergedEvent = "party.merged"

// Payload is the body posted to each webhook.
type Payload struct {
	Event      string             `json:"event"`
	RunID      string             `json:"run_id"`
	Target     int64              `json:"target"`
	Duplicates []int64            `json:"duplicates"`
	Policy     domain.MergePolicy `json:"policy"`
	Rows       int64              `json:"rows"`
	Actor      string             `json:"actor,omitempty"`
}

// NewPayload summarizes a merge report.
func NewPayload(report *merge.Report, actor string) Payload {
	p := Payload{
		Event:      MergedEvent,
		RunID:      report.RunID,
		Target:     report.Target,
		Duplicates: make([]int64, 0, len(report.Duplicates)),
		Policy:     report.Policy,
		Rows:       report.Rows(),
		Actor:      actor,
	}
	for _, d := range report.Duplicates {
		p.Duplicates = append(p.Duplicates, d.Duplicate)
	}
	return p
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger for delivery failures.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithClient replaces the HTTP client.
func WithClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.client = client }
}

// WithConcurrency caps the number of requests in flight.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// Dispatcher posts merge payloads to a fixed set of URL templates.
// Delivery is best effort: failures are logged, never returned.
type Dispatcher struct {
	urls        []string
	client      *http.Client
	logger      *zap.Logger
	concurrency int
}

// New returns a dispatcher for the given URL templates. Templates may
// contain {target_id} and {run_id}.
func New(urls []string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		urls:        urls,
		client:      &http.Client{Timeout: defaultTimeout},
		logger:      zap.NewNop(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enabled reports whether any URL is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.urls) > 0
}

// Dispatch notifies every target about a committed merge. Dry runs and
// a nil dispatcher are no-ops.
func (d *Dispatcher) Dispatch(ctx context.Context, report *merge.Report, actor string) {
	if !d.Enabled() || report == nil || report.DryRun {
		return
	}
	payload := NewPayload(report, actor)
	d.dispatchURLs(ctx, d.Targets(payload), payload)
}

// Targets templates, normalizes and de-dupes the configured URLs.
func (d *Dispatcher) Targets(payload Payload) []string {
	if len(d.urls) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(d.urls))
	var normalized []string

	for _, raw := range d.urls {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		templated := strings.TrimRight(strings.TrimSpace(applyTemplate(trimmed, payload)), "/")
		if templated == "" {
			continue
		}
		if !isValidWebhookURL(templated) {
			d.logger.Warn("skipping invalid webhook url", zap.String("url", templated))
			continue
		}
		if _, ok := seen[templated]; ok {
			continue
		}
		seen[templated] = struct{}{}
		normalized = append(normalized, templated)
	}

	return normalized
}

func applyTemplate(raw string, payload Payload) string {
	result := strings.ReplaceAll(raw, "{target_id}", strconv.FormatInt(payload.Target, 10))
	result = strings.ReplaceAll(result, "{run_id}", payload.RunID)
	return result
}

func isValidWebhookURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

func (d *Dispatcher) dispatchURLs(ctx context.Context, urls []string, payload Payload) {
	if len(urls) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("failed to encode webhook payload", zap.Error(err))
		return
	}

	workers := min(d.concurrency, len(urls))

	jobs := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for endpoint := range jobs {
				d.send(ctx, endpoint, body)
			}
		}()
	}

	for _, endpoint := range urls {
		jobs <- endpoint
	}
	close(jobs)
	wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, endpoint string, body []byte) {
	log := d.logger.With(zap.String("url", endpoint))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		log.Warn("failed to build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		log.Warn("webhook request failed", zap.Error(err))
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		log.Warn("webhook rejected", zap.Int("status", resp.StatusCode))
		return
	}
	log.Debug("webhook delivered", zap.Int("status", resp.StatusCode))
}
