package activities

import (
	"assessflow/internal/models"
	"assessflow/internal/routing"
)

type LoadPipelineStateInput struct {
	ReportID string `json:"report_id"`
}

type LoadPipelineStateOutput struct {
	Report     models.Report               `json:"report"`
	Dictionary models.CompetencyDictionary `json:"dictionary"`
	Documents  []models.SourceDocument     `json:"documents"`
}

type ResolveRoutingPlanInput struct {
	ReportID string `json:"report_id"`
}

type ResolveRoutingPlanOutput struct {
	Plan routing.Plan `json:"plan"`
}

type EnsureDocumentTextInput struct {
	DocumentID string `json:"document_id"`
}

type EnsureDocumentTextOutput struct {
	Text   string `json:"text"`
	Method string `json:"method"`
}

type ModelCallInput struct {
	ReportID     string  `json:"report_id"`
	Action       string  `json:"action"`
	ModelID      string  `json:"model_id"`
	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt"`
	Temperature  float32 `json:"temperature"`
	// OmitTemperature is set for models that reject the parameter.
	OmitTemperature bool `json:"omit_temperature"`
	TimeoutSecs     int  `json:"timeout_secs"`
}

type ModelCallOutput struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	DurationMS   int64  `json:"duration_ms"`
}

type RecordUsageInput struct {
	ReportID          string `json:"report_id"`
	ProjectID         string `json:"project_id"`
	Action            string `json:"action"`
	Role              string `json:"role"`
	ModelID           string `json:"model_id"`
	Attempt           int    `json:"attempt"`
	InputTokens       int    `json:"input_tokens"`
	OutputTokens      int    `json:"output_tokens"`
	InputCostPerMTok  int64  `json:"input_cost_per_mtok_micro_usd"`
	OutputCostPerMTok int64  `json:"output_cost_per_mtok_micro_usd"`
	DurationMS        int64  `json:"duration_ms"`
	Outcome           string `json:"outcome"`
	ErrorType         string `json:"error_type,omitempty"`
	PromptHash        string `json:"prompt_hash,omitempty"`
	ResponseHash      string `json:"response_hash,omitempty"`
}

type SaveEvidenceInput struct {
	Items []models.Evidence `json:"items"`
}

type LoadEvidenceInput struct {
	ReportID string `json:"report_id"`
}

type LoadEvidenceOutput struct {
	Items []models.Evidence `json:"items"`
}

type SaveKBAnalysesInput struct {
	Items []models.KeyBehaviorAnalysis `json:"items"`
}

type LoadKBAnalysesInput struct {
	ReportID string `json:"report_id"`
}

type LoadKBAnalysesOutput struct {
	Items []models.KeyBehaviorAnalysis `json:"items"`
}

type SaveCompetencyAnalysisInput struct {
	Analysis models.CompetencyAnalysis `json:"analysis"`
}

type LoadCompetencyAnalysesInput struct {
	ReportID string `json:"report_id"`
}

type LoadCompetencyAnalysesOutput struct {
	Items []models.CompetencyAnalysis `json:"items"`
}

type SaveSummaryInput struct {
	Summary models.ExecutiveSummary `json:"summary"`
}

type GetSummaryInput struct {
	ReportID string `json:"report_id"`
}

type GetSummaryOutput struct {
	Summary models.ExecutiveSummary `json:"summary"`
}

type UpdateReportStatusInput struct {
	ReportID    string `json:"report_id"`
	Status      string `json:"status"`
	FailedPhase string `json:"failed_phase,omitempty"`
	FailReason  string `json:"fail_reason,omitempty"`
}

type SetCurrentPhaseInput struct {
	ReportID string `json:"report_id"`
	Phase    string `json:"phase"`
}

type MarkPhaseCompleteInput struct {
	ReportID    string  `json:"report_id"`
	Phase       string  `json:"phase"`
	DurationSec float64 `json:"duration_sec"`
}

type WriteReportArtifactInput struct {
	ReportID string `json:"report_id"`
	Name     string `json:"name"`
	Payload  any    `json:"payload"`
}
