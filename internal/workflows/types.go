package workflows

const (
	QueryGetReportProgress = "GetReportProgress"

	SignalCancelReport = "cancel-report"
)

type ReportPipelineInput struct {
	ReportID string `json:"report_id"`
}

type AskAIRefineInput struct {
	ReportID    string `json:"report_id"`
	TextBlock   string `json:"text_block"`
	Instruction string `json:"instruction"`
}

type AskAIRefineOutput struct {
	RefinedText string `json:"refined_text"`
}

type ReportProgress struct {
	ReportID        string   `json:"report_id"`
	Status          string   `json:"status"`
	CurrentPhase    string   `json:"current_phase,omitempty"`
	CompletedPhases []string `json:"completed_phases"`
	FailedPhase     string   `json:"failed_phase,omitempty"`
	FailReason      string   `json:"fail_reason,omitempty"`
}
