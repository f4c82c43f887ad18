package bloop

import (
	"context"
	"log/slog"
	"maps"

	"golang.org/x/time/rate"

	"github.com/kon-rad/bloop-go/internal/buffer"
	"github.com/kon-rad/bloop-go/internal/dispatch"
	"github.com/kon-rad/bloop-go/internal/metrics"
)

const (
	categoryErrors = "errors"
	categoryTraces = "traces"
)

// DispatchError is what WithErrorHandler receives.
type DispatchError = dispatch.Error

// Client buffers events and traces and ships them in signed batches. It is
// safe for concurrent use.
type Client struct {
	cfg        Config
	errors     *buffer.Buffer[ingestEvent]
	traces     traceSink
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Client
}

// New validates cfg and builds a client. It fails only when Endpoint or
// ProjectKey is missing.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := metrics.NewClient(o.registerer)
	var limiter *rate.Limiter
	if cfg.DispatchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.DispatchRate), 1)
	}
	d := dispatch.New(dispatch.Options{
		Endpoint:    cfg.Endpoint,
		ProjectKey:  cfg.ProjectKey,
		HTTPClient:  o.httpClient,
		Logger:      logger,
		Metrics:     m,
		MaxInFlight: int64(cfg.MaxInFlight),
		MaxPending:  cfg.MaxPendingBatches,
		Limiter:     limiter,
		OnError:     o.onError,
	})

	c := &Client{
		cfg:        cfg,
		errors:     buffer.New[ingestEvent](cfg.MaxBufferSize),
		dispatcher: d,
		metrics:    m,
	}
	if cfg.DisableTracing {
		c.traces = noopTraceSink{dropped: m}
	} else {
		c.traces = &bufferedTraceSink{
			buf:        buffer.New[*Trace](cfg.MaxBufferSize),
			dispatcher: d,
		}
	}
	return c, nil
}

// Endpoint returns the normalized ingestion base URL.
func (c *Client) Endpoint() string {
	return c.cfg.Endpoint
}

// Capture stamps event and buffers it. When the buffer fills, the batch is
// sent in the background; Capture itself never blocks on the network.
// The top level of event.Metadata is copied, so the caller may reuse the
// map; nested maps and slices are still shared.
func (c *Client) Capture(event Event) {
	source := event.Source
	if source == "" {
		source = c.cfg.Source
	}
	rec := ingestEvent{
		Timestamp:        now().UnixMilli(),
		Source:           source,
		Environment:      c.cfg.Environment,
		Release:          c.cfg.Release,
		ErrorType:        event.ErrorType,
		Message:          event.Message,
		RouteOrProcedure: event.RouteOrProcedure,
		Screen:           event.Screen,
		Stack:            event.Stack,
		HTTPStatus:       event.HTTPStatus,
		RequestID:        event.RequestID,
		UserIDHash:       event.UserIDHash,
		Metadata:         maps.Clone(event.Metadata),
	}
	if batch, ok := c.errors.Push(rec); ok {
		c.dispatcher.Go(categoryErrors, dispatch.ErrorsPath, errorBatch{Events: batch}, len(batch))
	}
}

func (c *Client) CaptureError(errorType, message string) {
	c.Capture(Event{ErrorType: errorType, Message: message})
}

func (c *Client) StartTrace(name string) *Trace {
	return NewTrace(name)
}

// SendTrace buffers a copy of trace and its spans, so later changes by the
// caller do not reach the batch. Metadata values nested below the top level
// are shared. The trace is dropped when tracing is disabled.
func (c *Client) SendTrace(trace *Trace) {
	if trace == nil {
		return
	}
	c.traces.send(trace.snapshot())
}

// TracingEnabled reports whether SendTrace buffers traces.
func (c *Client) TracingEnabled() bool {
	_, noop := c.traces.(noopTraceSink)
	return !noop
}

// Flush sends whatever is buffered, errors first, and waits for each send
// to finish. Failures go to the error handler, never to the caller. Empty
// buffers cause no requests.
func (c *Client) Flush(ctx context.Context) {
	if events := c.errors.Drain(); len(events) > 0 {
		_ = c.dispatcher.Send(ctx, categoryErrors, dispatch.ErrorsPath, errorBatch{Events: events}, len(events))
	}
	c.traces.flush(ctx)
}

// Shutdown flushes and then waits, until ctx is done, for background sends
// started by earlier threshold crossings.
func (c *Client) Shutdown(ctx context.Context) {
	c.Flush(ctx)
	_ = c.dispatcher.Wait(ctx)
}

// traceSink is the tracing capability chosen at construction.
type traceSink interface {
	send(trace *Trace)
	flush(ctx context.Context)
}

type bufferedTraceSink struct {
	buf        *buffer.Buffer[*Trace]
	dispatcher *dispatch.Dispatcher
}

func (s *bufferedTraceSink) send(trace *Trace) {
	if batch, ok := s.buf.Push(trace); ok {
		s.dispatcher.Go(categoryTraces, dispatch.TracesPath, traceBatch{Traces: batch}, len(batch))
	}
}

func (s *bufferedTraceSink) flush(ctx context.Context) {
	if traces := s.buf.Drain(); len(traces) > 0 {
		_ = s.dispatcher.Send(ctx, categoryTraces, dispatch.TracesPath, traceBatch{Traces: traces}, len(traces))
	}
}

type noopTraceSink struct {
	dropped *metrics.Client
}

func (s noopTraceSink) send(*Trace) {
	s.dropped.TracesDropped.Inc()
}

func (noopTraceSink) flush(context.Context) {}
