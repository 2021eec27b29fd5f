package models

import "time"

type ReportStatus string

const (
	ReportQueued      ReportStatus = "QUEUED"
	ReportRunning     ReportStatus = "RUNNING"
	ReportPhaseFailed ReportStatus = "PHASE_FAILED"
	ReportComplete    ReportStatus = "COMPLETE"
	ReportCancelled   ReportStatus = "CANCELLED"
)

type KeyBehaviorStatus string

const (
	KBFulfilled       KeyBehaviorStatus = "FULFILLED"
	KBNotObserved     KeyBehaviorStatus = "NOT_OBSERVED"
	KBContraIndicator KeyBehaviorStatus = "CONTRA_INDICATOR"
)

type EvidencePolarity string

const (
	PolaritySupporting EvidencePolarity = "SUPPORTING"
	PolarityContra     EvidencePolarity = "CONTRA"
)

type ExtractionStatus string

const (
	ExtractionPending ExtractionStatus = "PENDING"
	ExtractionDone    ExtractionStatus = "EXTRACTED"
	ExtractionFailed  ExtractionStatus = "FAILED"
)

type Report struct {
	ReportID        string         `json:"report_id"`
	ProjectID       string         `json:"project_id"`
	Title           string         `json:"title"`
	TargetLevels    map[string]int `json:"target_levels"`
	SpecificContext string         `json:"specific_context,omitempty"`
	Status          ReportStatus   `json:"status"`
	CurrentPhase    string         `json:"current_phase,omitempty"`
	CompletedPhases []string       `json:"completed_phases"`
	FailedPhase     string         `json:"failed_phase,omitempty"`
	FailReason      string         `json:"fail_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type SourceDocument struct {
	DocumentID       string           `json:"document_id"`
	ReportID         string           `json:"report_id,omitempty"`
	ProjectID        string           `json:"project_id"`
	Filename         string           `json:"filename"`
	FileRef          string           `json:"file_ref"`
	Method           string           `json:"method,omitempty"`
	ExtractionStatus ExtractionStatus `json:"extraction_status"`
	CreatedAt        time.Time        `json:"created_at"`
}

type CompetencyDictionary struct {
	Name         string       `json:"name"`
	Competencies []Competency `json:"competencies"`
}

type Competency struct {
	CompetencyID string  `json:"competency_id"`
	Name         string  `json:"name"`
	Definition   string  `json:"definition"`
	Levels       []Level `json:"levels"`
}

type Level struct {
	Number       int           `json:"number"`
	Description  string        `json:"description"`
	KeyBehaviors []KeyBehavior `json:"key_behaviors"`
}

type KeyBehavior struct {
	KeyBehaviorID string `json:"key_behavior_id"`
	Statement     string `json:"statement"`
}

type Evidence struct {
	EvidenceID    string           `json:"evidence_id"`
	ReportID      string           `json:"report_id"`
	DocumentID    string           `json:"document_id"`
	CompetencyID  string           `json:"competency_id"`
	Level         int              `json:"level"`
	KeyBehaviorID string           `json:"key_behavior_id"`
	Quote         string           `json:"quote"`
	Polarity      EvidencePolarity `json:"polarity"`
	Reasoning     string           `json:"reasoning"`
	IsAIGenerated bool             `json:"is_ai_generated"`
	CreatedAt     time.Time        `json:"created_at"`
}

type KeyBehaviorAnalysis struct {
	AnalysisID    string            `json:"analysis_id"`
	ReportID      string            `json:"report_id"`
	CompetencyID  string            `json:"competency_id"`
	Level         int               `json:"level"`
	KeyBehaviorID string            `json:"key_behavior_id"`
	Status        KeyBehaviorStatus `json:"status"`
	Reasoning     string            `json:"reasoning"`
	EvidenceIDs   []string          `json:"evidence_ids"`
	CreatedAt     time.Time         `json:"created_at"`
}

type CompetencyAnalysis struct {
	ReportID        string    `json:"report_id"`
	CompetencyID    string    `json:"competency_id"`
	AchievedLevel   int       `json:"achieved_level"`
	TargetLevel     int       `json:"target_level"`
	Explanation     string    `json:"explanation,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ExecutiveSummary struct {
	ReportID      string    `json:"report_id"`
	Draft         string    `json:"draft,omitempty"`
	CritiqueNotes string    `json:"critique_notes,omitempty"`
	FinalText     string    `json:"final_text,omitempty"`
	Finalized     bool      `json:"finalized"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UsageLogEntry is one row of the append-only AI call ledger. Cost is stored
// in integer micro-USD so aggregation in SQL is exact.
type UsageLogEntry struct {
	EntryID      string    `json:"entry_id"`
	ReportID     string    `json:"report_id"`
	ProjectID    string    `json:"project_id"`
	Action       string    `json:"action"`
	Role         string    `json:"role"`
	ModelID      string    `json:"model_id"`
	Attempt      int       `json:"attempt"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostMicroUSD int64     `json:"cost_micro_usd"`
	DurationMS   int64     `json:"duration_ms"`
	Outcome      string    `json:"outcome"`
	ErrorType    string    `json:"error_type,omitempty"`
	PromptHash   string    `json:"prompt_hash,omitempty"`
	ResponseHash string    `json:"response_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailed  = "FAILED"
)

// AIModelConfig is read-only catalog data; rates are micro-USD per million
// tokens. A model absent from the catalog cannot be bound to a role.
type AIModelConfig struct {
	ModelID             string `json:"model_id"`
	Provider            string `json:"provider"`
	ContextWindow       int    `json:"context_window"`
	InputCostPerMTok    int64  `json:"input_cost_per_mtok_micro_usd"`
	OutputCostPerMTok   int64  `json:"output_cost_per_mtok_micro_usd"`
	SupportsTemperature bool   `json:"supports_temperature"`
}
