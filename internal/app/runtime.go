package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kon-rad/bloop-go/internal/config"
	"github.com/kon-rad/bloop-go/internal/db"
	"github.com/kon-rad/bloop-go/internal/ingest"
	"github.com/kon-rad/bloop-go/internal/metrics"
	"github.com/kon-rad/bloop-go/internal/server"
)

// Runtime wires the development receiver: store, ingest worker, HTTP
// server and maintenance loops.
type Runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	version    string
	startedAt  time.Time
	dbm        *db.Manager
	httpServer *http.Server
	ingestCh   chan ingest.Event
	workerDone chan error
	bgCancel   context.CancelFunc
	bgWG       sync.WaitGroup

	mu             sync.RWMutex
	eventsReceived atomic.Int64
	eventsDropped  atomic.Int64
}

func New(cfg *config.Config, logger *slog.Logger, version string) *Runtime {
	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		version:   version,
		startedAt: time.Now(),
	}
}

// Run serves until ctx is cancelled, then shuts down. If ready is not nil it
// receives the bound listener address once the server accepts connections.
func (r *Runtime) Run(ctx context.Context, ready chan<- string) error {
	dbm, err := db.Open(r.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	r.dbm = dbm

	journalMode, err := r.dbm.JournalMode(ctx)
	if err != nil {
		return fmt.Errorf("query sqlite journal mode: %w", err)
	}
	r.logger.Info("SQLite opened", "path", r.cfg.DBPath, "journal_mode", journalMode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	receiverMetrics := metrics.NewReceiver(reg)

	r.mu.Lock()
	r.ingestCh = make(chan ingest.Event, ingest.QueueCapacity)
	r.mu.Unlock()
	r.workerDone = make(chan error, 1)

	worker := ingest.NewWorker(r.logger, r.dbm, r.cfg.MaxTextBytes)
	ingestCh := r.ingestCh
	go func() {
		r.workerDone <- worker.Run(ingestCh)
	}()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	r.bgCancel = bgCancel
	r.startBackgroundLoops(bgCtx)

	healthHandler := server.NewHealthHandler(r.dbm, r.startedAt, r.version, r)
	ingestHandlers := server.NewIngestHandlers(r, r.cfg.ProjectKeys, r.cfg.MaxBodyBytes, receiverMetrics)
	r.httpServer = server.New(r.cfg.Addr, healthHandler.ServeHTTP, ingestHandlers, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", r.cfg.Addr)
	if err != nil {
		return errors.Join(fmt.Errorf("listen: %w", err), r.shutdown(context.Background()))
	}

	serverErr := make(chan error, 1)
	go func() {
		r.logger.Info("Listening", "addr", ln.Addr().String(), "project_keys", len(r.cfg.ProjectKeys))
		if err := r.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-serverErr:
		if err != nil {
			return errors.Join(fmt.Errorf("http server failed: %w", err), r.shutdown(context.Background()))
		}
		return nil
	case <-ctx.Done():
		r.logger.Info("Shutdown signal received")
		return r.shutdown(context.Background())
	}
}

func (r *Runtime) Snapshot() server.RuntimeSnapshot {
	r.mu.RLock()
	depth := int64(len(r.ingestCh))
	r.mu.RUnlock()
	return server.RuntimeSnapshot{
		QueueDepth:     depth,
		EventsReceived: r.eventsReceived.Load(),
		EventsDropped:  r.eventsDropped.Load(),
	}
}

func (r *Runtime) Enqueue(event ingest.Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ingestCh == nil {
		r.eventsDropped.Add(1)
		return false
	}
	if ingest.TryEnqueue(r.ingestCh, event) {
		r.eventsReceived.Add(1)
		return true
	}
	r.eventsDropped.Add(1)
	return false
}

func (r *Runtime) shutdown(ctx context.Context) error {
	var joined error

	if r.httpServer != nil {
		httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := r.httpServer.Shutdown(httpCtx); err != nil {
			joined = errors.Join(joined, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if r.bgCancel != nil {
		r.bgCancel()
		done := make(chan struct{})
		go func() {
			r.bgWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			joined = errors.Join(joined, errors.New("background loop shutdown timeout"))
		}
	}

	r.mu.Lock()
	if r.ingestCh != nil {
		r.logger.Info("Draining ingest channel", "remaining", len(r.ingestCh))
		close(r.ingestCh)
		r.ingestCh = nil
	}
	r.mu.Unlock()
	if r.workerDone != nil {
		select {
		case err := <-r.workerDone:
			if err != nil {
				joined = errors.Join(joined, fmt.Errorf("worker shutdown: %w", err))
			}
		case <-time.After(5 * time.Second):
			joined = errors.Join(joined, errors.New("worker drain timeout"))
		}
	}

	if r.dbm != nil {
		cpCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := r.dbm.Checkpoint(cpCtx); err != nil {
			r.logger.Warn("WAL checkpoint failed", "error", err)
			joined = errors.Join(joined, fmt.Errorf("wal checkpoint: %w", err))
		}
		if err := r.dbm.Close(); err != nil {
			joined = errors.Join(joined, fmt.Errorf("db close: %w", err))
		}
	}

	r.logger.Info("Shutdown complete",
		"total_events", r.eventsReceived.Load(),
		"dropped_events", r.eventsDropped.Load(),
		"uptime", time.Since(r.startedAt).String(),
	)
	return joined
}

func (r *Runtime) startBackgroundLoops(ctx context.Context) {
	r.bgWG.Add(1)
	go func() {
		defer r.bgWG.Done()
		ticker := time.NewTicker(r.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cleanupCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				deleted, err := r.dbm.CleanupOlderThan(cleanupCtx, r.cfg.RetentionDays)
				cancel()
				if err != nil {
					r.logger.Warn("cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					r.logger.Info("cleanup completed", "deleted", deleted)
				}
			}
		}
	}()

	r.bgWG.Add(1)
	go func() {
		defer r.bgWG.Done()
		ticker := time.NewTicker(r.cfg.WALCheckpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cpCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				_, err := r.dbm.CheckpointIfWALExceeds(cpCtx, r.cfg.WALRestartThresholdB)
				cancel()
				if err != nil {
					r.logger.Warn("wal checkpoint loop failed", "error", err)
				}
			}
		}
	}()
}
