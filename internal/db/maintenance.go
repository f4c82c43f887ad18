package db

import (
	"context"
	"fmt"
	"os"
	"time"
)

func (m *Manager) WALSizeBytes() int64 {
	fi, err := os.Stat(m.path + "-wal")
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (m *Manager) DBSizeBytes() int64 {
	fi, err := os.Stat(m.path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (m *Manager) CheckpointIfWALExceeds(ctx context.Context, thresholdBytes int64) (bool, error) {
	if m.WALSizeBytes() <= thresholdBytes {
		return false, nil
	}
	if _, err := m.writer.ExecContext(ctx, "PRAGMA wal_checkpoint(RESTART)"); err != nil {
		return false, fmt.Errorf("wal restart checkpoint: %w", err)
	}
	return true, nil
}

// CleanupOlderThan deletes records received more than retentionDays ago.
// Spans go with their traces through the foreign key cascade.
func (m *Manager) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour).UnixMilli()
	var deleted int64
	for _, table := range []string{"error_events", "traces"} {
		res, err := m.writer.ExecContext(ctx, "DELETE FROM "+table+" WHERE received_at < ?", cutoff)
		if err != nil {
			return deleted, fmt.Errorf("cleanup %s: %w", table, err)
		}
		affected, _ := res.RowsAffected()
		deleted += affected
	}
	return deleted, nil
}
