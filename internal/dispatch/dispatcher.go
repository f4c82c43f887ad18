package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/kon-rad/bloop-go/internal/metrics"
	"github.com/kon-rad/bloop-go/internal/signing"
)

const (
	ErrorsPath = "/v1/ingest/batch"
	TracesPath = "/v1/traces/batch"

	DefaultMaxInFlight = 4
	DefaultMaxPending  = 1024
	DefaultHTTPTimeout = 30 * time.Second
)

// ErrQueueFull is reported when a threshold batch arrives while
// MaxPending background sends are already outstanding. The batch is dropped.
var ErrQueueFull = errors.New("dispatch queue full")

// Error describes a failed dispatch attempt. The records it covered are
// gone; nothing retries them.
type Error struct {
	Category string
	Path     string
	Items    int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch %s batch (%d items) to %s: %v", e.Category, e.Items, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Options struct {
	Endpoint   string
	ProjectKey string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Client
	// MaxInFlight caps concurrent background sends. Zero means
	// DefaultMaxInFlight.
	MaxInFlight int64
	// MaxPending caps background sends that are running or waiting for a
	// slot. Zero means DefaultMaxPending.
	MaxPending int
	// Limiter paces background sends. Nil means unpaced.
	Limiter *rate.Limiter
	// OnError receives every dispatch failure. It may be called from
	// background goroutines.
	OnError func(error)
}

// Dispatcher signs and posts batches. Background sends run on their own
// goroutines; Send runs inline.
type Dispatcher struct {
	endpoint   string
	projectKey string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Client
	sem        *semaphore.Weighted
	limiter    *rate.Limiter
	onError    func(error)
	maxPending int

	mu      sync.Mutex
	pending int
	// idle is closed whenever pending drops to zero.
	idle chan struct{}
}

func New(opts Options) *Dispatcher {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewClient(nil)
	}
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	maxPending := opts.MaxPending
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	idle := make(chan struct{})
	close(idle)
	return &Dispatcher{
		endpoint:   opts.Endpoint,
		projectKey: opts.ProjectKey,
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
		sem:        semaphore.NewWeighted(maxInFlight),
		limiter:    opts.Limiter,
		onError:    opts.OnError,
		maxPending: maxPending,
		idle:       idle,
	}
}

// Go schedules a detached send of payload. It never blocks the caller.
// When MaxPending sends are already outstanding the batch is dropped and
// reported with ErrQueueFull.
func (d *Dispatcher) Go(category, path string, payload any, items int) {
	if !d.begin() {
		d.metrics.ObserveBatch(category, items, ErrQueueFull)
		d.report(category, path, items, ErrQueueFull)
		return
	}
	go func() {
		defer d.end()
		ctx := context.Background()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.report(category, path, items, err)
			return
		}
		defer d.sem.Release(1)
		d.metrics.InFlight.Inc()
		defer d.metrics.InFlight.Dec()

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				d.report(category, path, items, err)
				return
			}
		}
		_ = d.Send(ctx, category, path, payload, items)
	}()
}

// Send serializes, signs and posts payload, waiting for the response.
// Failures are reported to the error hook and returned.
func (d *Dispatcher) Send(ctx context.Context, category, path string, payload any, items int) error {
	err := d.post(ctx, path, payload)
	d.metrics.ObserveBatch(category, items, err)
	if err != nil {
		return d.report(category, path, items, err)
	}
	d.logger.Debug("batch dispatched", "category", category, "items", items)
	return nil
}

// Wait blocks until no background send is outstanding or ctx is done. Sends
// started while Wait is blocked are waited for too. Wait may be called
// concurrently with Go and any number of times.
func (d *Dispatcher) Wait(ctx context.Context) error {
	for {
		d.mu.Lock()
		if d.pending == 0 {
			d.mu.Unlock()
			return nil
		}
		idle := d.idle
		d.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending returns the number of background sends running or queued.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Dispatcher) begin() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending >= d.maxPending {
		return false
	}
	if d.pending == 0 {
		d.idle = make(chan struct{})
	}
	d.pending++
	return true
}

func (d *Dispatcher) end() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending--
	if d.pending == 0 {
		close(d.idle)
	}
}

func (d *Dispatcher) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signing.Sign(d.projectKey, body))
	req.Header.Set("X-Project-Key", d.projectKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ingest status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) report(category, path string, items int, err error) error {
	dErr := &Error{Category: category, Path: path, Items: items, Err: err}
	d.logger.Warn("dispatch failed", "category", category, "items", items, "error", err)
	if d.onError != nil {
		d.onError(dErr)
	}
	return dErr
}
