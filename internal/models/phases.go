package models

const (
	PhaseExtraction        = "EXTRACTION"
	PhaseKBFulfillment     = "KB_FULFILLMENT"
	PhaseLevelAndNarrative = "LEVEL_AND_NARRATIVE"
	PhaseRecommendations   = "RECOMMENDATIONS"
	PhaseSummaryDraft      = "SUMMARY_DRAFT"
	PhaseSummaryCritique   = "SUMMARY_CRITIQUE"

	// PhaseAskAIRefine runs outside the main sequence, against COMPLETE reports.
	PhaseAskAIRefine = "ASK_AI_REFINE"
)

// PhaseSequence is the fixed execution order of the report pipeline.
func PhaseSequence() []string {
	return []string{
		PhaseExtraction,
		PhaseKBFulfillment,
		PhaseLevelAndNarrative,
		PhaseRecommendations,
		PhaseSummaryDraft,
		PhaseSummaryCritique,
	}
}

const (
	ReasonModelUnavailable   = "MODEL_UNAVAILABLE"
	ReasonSchemaViolation    = "SCHEMA_VIOLATION"
	ReasonDictionaryMismatch = "DICTIONARY_MISMATCH"
	ReasonInvalidState       = "INVALID_STATE"
	ReasonPipelineError      = "PIPELINE_ERROR"
)
