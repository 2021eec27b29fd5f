package storage

import (
	"context"
	"fmt"
)

// EnsureSchema creates the tables on startup so a fresh database works
// without a separate migration step.
func EnsureSchema(ctx context.Context, db *DB) error {
	ddl := `
CREATE TABLE IF NOT EXISTS project_dictionaries (
  project_id UUID PRIMARY KEY,
  body JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS reports (
  report_id TEXT PRIMARY KEY,
  project_id UUID NOT NULL,
  title TEXT NOT NULL,
  target_levels JSONB NOT NULL DEFAULT '{}'::jsonb,
  specific_context TEXT,
  status TEXT NOT NULL CHECK (status IN ('QUEUED','RUNNING','PHASE_FAILED','COMPLETE','CANCELLED')),
  current_phase TEXT,
  completed_phases JSONB NOT NULL DEFAULT '[]'::jsonb,
  failed_phase TEXT,
  fail_reason TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status, created_at);

CREATE TABLE IF NOT EXISTS report_dictionaries (
  report_id TEXT PRIMARY KEY REFERENCES reports(report_id) ON DELETE CASCADE,
  body JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS source_documents (
  document_id TEXT PRIMARY KEY,
  report_id TEXT REFERENCES reports(report_id) ON DELETE SET NULL,
  project_id UUID NOT NULL,
  filename TEXT NOT NULL,
  file_ref TEXT NOT NULL,
  method TEXT,
  extraction_status TEXT NOT NULL CHECK (extraction_status IN ('PENDING','EXTRACTED','FAILED')),
  extracted_text TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_documents_report ON source_documents(report_id);
CREATE INDEX IF NOT EXISTS idx_documents_project ON source_documents(project_id) WHERE report_id IS NULL;

CREATE TABLE IF NOT EXISTS evidence (
  evidence_id TEXT PRIMARY KEY,
  report_id TEXT NOT NULL REFERENCES reports(report_id) ON DELETE CASCADE,
  document_id TEXT NOT NULL,
  competency_id TEXT NOT NULL,
  level INT NOT NULL,
  key_behavior_id TEXT NOT NULL,
  quote TEXT NOT NULL,
  polarity TEXT NOT NULL CHECK (polarity IN ('SUPPORTING','CONTRA')),
  reasoning TEXT,
  is_ai_generated BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_evidence_report ON evidence(report_id, competency_id, level);

CREATE TABLE IF NOT EXISTS kb_analyses (
  analysis_id TEXT PRIMARY KEY,
  report_id TEXT NOT NULL REFERENCES reports(report_id) ON DELETE CASCADE,
  competency_id TEXT NOT NULL,
  level INT NOT NULL,
  key_behavior_id TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('FULFILLED','NOT_OBSERVED','CONTRA_INDICATOR')),
  reasoning TEXT,
  evidence_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  UNIQUE (report_id, key_behavior_id)
);

CREATE TABLE IF NOT EXISTS competency_analyses (
  report_id TEXT NOT NULL REFERENCES reports(report_id) ON DELETE CASCADE,
  competency_id TEXT NOT NULL,
  achieved_level INT NOT NULL,
  target_level INT NOT NULL,
  explanation TEXT,
  recommendations JSONB NOT NULL DEFAULT '[]'::jsonb,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (report_id, competency_id)
);

CREATE TABLE IF NOT EXISTS executive_summaries (
  report_id TEXT PRIMARY KEY REFERENCES reports(report_id) ON DELETE CASCADE,
  draft TEXT,
  critique_notes TEXT,
  final_text TEXT,
  finalized BOOLEAN NOT NULL DEFAULT FALSE,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS usage_log (
  entry_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  report_id TEXT NOT NULL,
  project_id UUID NOT NULL,
  action TEXT NOT NULL,
  role TEXT NOT NULL,
  model_id TEXT NOT NULL,
  attempt INT NOT NULL,
  input_tokens INT NOT NULL DEFAULT 0,
  output_tokens INT NOT NULL DEFAULT 0,
  cost_micro_usd BIGINT NOT NULL DEFAULT 0,
  duration_ms BIGINT NOT NULL DEFAULT 0,
  outcome TEXT NOT NULL CHECK (outcome IN ('SUCCESS','FAILED')),
  error_type TEXT,
  prompt_hash TEXT,
  response_hash TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_usage_report ON usage_log(report_id, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_project ON usage_log(project_id, created_at);

CREATE TABLE IF NOT EXISTS ai_models (
  model_id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  context_window INT NOT NULL DEFAULT 0,
  input_cost_per_mtok BIGINT NOT NULL DEFAULT 0,
  output_cost_per_mtok BIGINT NOT NULL DEFAULT 0,
  supports_temperature BOOLEAN NOT NULL DEFAULT TRUE
);
`
	if _, err := db.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
