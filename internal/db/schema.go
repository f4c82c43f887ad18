package db

const schemaDDL = `
CREATE TABLE IF NOT EXISTS error_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  project_key TEXT NOT NULL,
  received_at INTEGER NOT NULL,
  timestamp INTEGER NOT NULL,
  source TEXT NOT NULL,
  environment TEXT NOT NULL,
  release TEXT NOT NULL DEFAULT '',
  error_type TEXT NOT NULL,
  message TEXT NOT NULL,
  route_or_procedure TEXT,
  screen TEXT,
  stack TEXT,
  http_status INTEGER,
  request_id TEXT,
  user_id_hash TEXT,
  metadata TEXT
);

CREATE TABLE IF NOT EXISTS traces (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  trace_id TEXT NOT NULL UNIQUE,
  project_key TEXT NOT NULL,
  received_at INTEGER NOT NULL,
  name TEXT NOT NULL,
  session_id TEXT,
  user_id TEXT,
  status TEXT NOT NULL,
  input TEXT,
  output TEXT,
  metadata TEXT,
  prompt_name TEXT,
  prompt_version TEXT,
  started_at INTEGER NOT NULL,
  ended_at INTEGER
);

CREATE TABLE IF NOT EXISTS spans (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  span_id TEXT NOT NULL,
  trace_id TEXT NOT NULL REFERENCES traces (trace_id) ON DELETE CASCADE,
  seq INTEGER NOT NULL,
  parent_span_id TEXT,
  span_type TEXT NOT NULL,
  name TEXT NOT NULL,
  model TEXT,
  provider TEXT,
  started_at INTEGER NOT NULL,
  input_tokens INTEGER,
  output_tokens INTEGER,
  cost REAL,
  latency_ms INTEGER,
  time_to_first_token_ms INTEGER,
  status TEXT,
  error_message TEXT,
  input TEXT,
  output TEXT,
  metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_error_received ON error_events (received_at);
CREATE INDEX IF NOT EXISTS idx_error_type ON error_events (error_type);
CREATE INDEX IF NOT EXISTS idx_traces_received ON traces (received_at);
CREATE INDEX IF NOT EXISTS idx_spans_trace ON spans (trace_id, seq);
`
