package bloop

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
	onError    func(error)
	registerer prometheus.Registerer
}

// WithHTTPClient sets the client used for every dispatch. It is shared by
// all background sends.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger routes dispatch diagnostics to logger. The default discards
// them.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithErrorHandler is called with a *DispatchError for every batch that
// fails to reach the endpoint. It may run on a background goroutine and
// must not block.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

// WithRegisterer registers the client's dispatch metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}
