package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kon-rad/bloop-go/internal/db"
)

type RuntimeSnapshot struct {
	QueueDepth     int64
	EventsReceived int64
	EventsDropped  int64
}

type SnapshotProvider interface {
	Snapshot() RuntimeSnapshot
}

type HealthResponse struct {
	Status         string   `json:"status"`
	UptimeSeconds  int64    `json:"uptime_seconds"`
	Version        string   `json:"version"`
	DBStatus       string   `json:"db_status"`
	DBSizeBytes    int64    `json:"db_size_bytes"`
	WALSizeBytes   int64    `json:"wal_size_bytes"`
	QueueDepth     int64    `json:"queue_depth"`
	EventsReceived int64    `json:"events_received"`
	EventsDropped  int64    `json:"events_dropped"`
	ErrorCount     int64    `json:"error_count"`
	TraceCount     int64    `json:"trace_count"`
	GeneratedAt    string   `json:"generated_at"`
	Warnings       []string `json:"warnings,omitempty"`
}

type HealthHandler struct {
	dbm         *db.Manager
	startTime   time.Time
	version     string
	snapshotter SnapshotProvider
}

func NewHealthHandler(dbm *db.Manager, start time.Time, version string, snapshotter SnapshotProvider) *HealthHandler {
	return &HealthHandler{
		dbm:         dbm,
		startTime:   start,
		version:     version,
		snapshotter: snapshotter,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	snapshot := h.snapshotter.Snapshot()
	dbStats := h.dbm.Stats(ctx)

	resp := HealthResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
		Version:        h.version,
		DBStatus:       dbStats.DBStatus,
		DBSizeBytes:    dbStats.DBSizeBytes,
		WALSizeBytes:   dbStats.WALSize,
		QueueDepth:     snapshot.QueueDepth,
		EventsReceived: snapshot.EventsReceived,
		EventsDropped:  snapshot.EventsDropped,
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	var err error
	if resp.ErrorCount, err = h.dbm.ErrorCount(ctx); err != nil {
		resp.Status = "degraded"
		resp.Warnings = append(resp.Warnings, "error_count_unavailable")
	}
	if resp.TraceCount, err = h.dbm.TraceCount(ctx); err != nil {
		resp.Status = "degraded"
		resp.Warnings = append(resp.Warnings, "trace_count_unavailable")
	}
	if resp.DBStatus != "ok" {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
