package db

import (
	"context"
	"database/sql"
	"fmt"
)

type ErrorInsert struct {
	ProjectKey       string
	ReceivedAt       int64
	Timestamp        int64
	Source           string
	Environment      string
	Release          string
	ErrorType        string
	Message          string
	RouteOrProcedure string
	Screen           string
	Stack            string
	HTTPStatus       *int64
	RequestID        string
	UserIDHash       string
	Metadata         string
}

type TraceInsert struct {
	TraceID       string
	ProjectKey    string
	ReceivedAt    int64
	Name          string
	SessionID     string
	UserID        string
	Status        string
	Input         string
	Output        string
	Metadata      string
	PromptName    string
	PromptVersion string
	StartedAt     int64
	EndedAt       *int64
	Spans         []SpanInsert
}

type SpanInsert struct {
	SpanID             string
	ParentSpanID       string
	SpanType           string
	Name               string
	Model              string
	Provider           string
	StartedAt          int64
	InputTokens        *int64
	OutputTokens       *int64
	Cost               *float64
	LatencyMS          *int64
	TimeToFirstTokenMS *int64
	Status             string
	ErrorMessage       string
	Input              string
	Output             string
	Metadata           string
}

type ErrorRow struct {
	ProjectKey  string
	Timestamp   int64
	Source      string
	Environment string
	Release     string
	ErrorType   string
	Message     string
	Stack       string
	HTTPStatus  int64
	Metadata    string
}

type SpanRow struct {
	SpanID       string
	ParentSpanID string
	SpanType     string
	Name         string
	Status       string
	LatencyMS    int64
	InputTokens  int64
	OutputTokens int64
}

// InsertBatch writes errors, traces and their spans in one transaction.
// A trace whose id is already stored is skipped along with its spans.
func (m *Manager) InsertBatch(ctx context.Context, errs []ErrorInsert, traces []TraceInsert) error {
	tx, err := m.writer.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if len(errs) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO error_events (
  project_key, received_at, timestamp, source, environment, release, error_type, message,
  route_or_procedure, screen, stack, http_status, request_id, user_id_hash, metadata
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''))
`)
		if err != nil {
			return fmt.Errorf("prepare error insert: %w", err)
		}
		defer stmt.Close()

		for _, row := range errs {
			if _, err := stmt.ExecContext(
				ctx,
				row.ProjectKey,
				row.ReceivedAt,
				row.Timestamp,
				row.Source,
				row.Environment,
				row.Release,
				row.ErrorType,
				row.Message,
				row.RouteOrProcedure,
				row.Screen,
				row.Stack,
				row.HTTPStatus,
				row.RequestID,
				row.UserIDHash,
				row.Metadata,
			); err != nil {
				return fmt.Errorf("insert error row: %w", err)
			}
		}
	}

	if len(traces) > 0 {
		traceStmt, err := tx.PrepareContext(ctx, `
INSERT INTO traces (
  trace_id, project_key, received_at, name, session_id, user_id, status, input, output,
  metadata, prompt_name, prompt_version, started_at, ended_at
) VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?)
ON CONFLICT (trace_id) DO NOTHING
`)
		if err != nil {
			return fmt.Errorf("prepare trace insert: %w", err)
		}
		defer traceStmt.Close()

		spanStmt, err := tx.PrepareContext(ctx, `
INSERT INTO spans (
  span_id, trace_id, seq, parent_span_id, span_type, name, model, provider, started_at,
  input_tokens, output_tokens, cost, latency_ms, time_to_first_token_ms, status,
  error_message, input, output, metadata
) VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''))
`)
		if err != nil {
			return fmt.Errorf("prepare span insert: %w", err)
		}
		defer spanStmt.Close()

		for _, row := range traces {
			res, err := traceStmt.ExecContext(
				ctx,
				row.TraceID,
				row.ProjectKey,
				row.ReceivedAt,
				row.Name,
				row.SessionID,
				row.UserID,
				row.Status,
				row.Input,
				row.Output,
				row.Metadata,
				row.PromptName,
				row.PromptVersion,
				row.StartedAt,
				row.EndedAt,
			)
			if err != nil {
				return fmt.Errorf("insert trace row: %w", err)
			}
			if affected, _ := res.RowsAffected(); affected == 0 {
				continue
			}
			for seq, span := range row.Spans {
				if _, err := spanStmt.ExecContext(
					ctx,
					span.SpanID,
					row.TraceID,
					seq,
					span.ParentSpanID,
					span.SpanType,
					span.Name,
					span.Model,
					span.Provider,
					span.StartedAt,
					span.InputTokens,
					span.OutputTokens,
					span.Cost,
					span.LatencyMS,
					span.TimeToFirstTokenMS,
					span.Status,
					span.ErrorMessage,
					span.Input,
					span.Output,
					span.Metadata,
				); err != nil {
					return fmt.Errorf("insert span row: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (m *Manager) ErrorCount(ctx context.Context) (int64, error) {
	var out int64
	if err := m.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM error_events").Scan(&out); err != nil {
		return 0, err
	}
	return out, nil
}

func (m *Manager) TraceCount(ctx context.Context) (int64, error) {
	var out int64
	if err := m.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM traces").Scan(&out); err != nil {
		return 0, err
	}
	return out, nil
}

func (m *Manager) ErrorCountByType(ctx context.Context, errorType string) (int64, error) {
	var out int64
	if err := m.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM error_events WHERE error_type = ?", errorType).Scan(&out); err != nil {
		return 0, err
	}
	return out, nil
}

func (m *Manager) LatestError(ctx context.Context) (ErrorRow, error) {
	var row ErrorRow
	err := m.reader.QueryRowContext(ctx, `
SELECT project_key, timestamp, source, environment, release, error_type, message,
  COALESCE(stack,''), COALESCE(http_status,0), COALESCE(metadata,'')
FROM error_events
ORDER BY id DESC LIMIT 1
`).Scan(
		&row.ProjectKey,
		&row.Timestamp,
		&row.Source,
		&row.Environment,
		&row.Release,
		&row.ErrorType,
		&row.Message,
		&row.Stack,
		&row.HTTPStatus,
		&row.Metadata,
	)
	return row, err
}

// SpansForTrace returns a trace's spans in creation order.
func (m *Manager) SpansForTrace(ctx context.Context, traceID string) ([]SpanRow, error) {
	rows, err := m.reader.QueryContext(ctx, `
SELECT span_id, COALESCE(parent_span_id,''), span_type, name, COALESCE(status,''),
  COALESCE(latency_ms,0), COALESCE(input_tokens,0), COALESCE(output_tokens,0)
FROM spans
WHERE trace_id = ?
ORDER BY seq ASC
`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SpanRow
	for rows.Next() {
		var row SpanRow
		if err := rows.Scan(
			&row.SpanID,
			&row.ParentSpanID,
			&row.SpanType,
			&row.Name,
			&row.Status,
			&row.LatencyMS,
			&row.InputTokens,
			&row.OutputTokens,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
