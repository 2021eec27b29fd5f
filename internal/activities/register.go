package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.LoadPipelineStateActivity)
	w.RegisterActivity(a.ResolveRoutingPlanActivity)
	w.RegisterActivity(a.EnsureDocumentTextActivity)
	w.RegisterActivity(a.ModelCallActivity)
	w.RegisterActivity(a.RecordUsageActivity)
	w.RegisterActivity(a.SaveEvidenceActivity)
	w.RegisterActivity(a.LoadEvidenceActivity)
	w.RegisterActivity(a.SaveKBAnalysesActivity)
	w.RegisterActivity(a.LoadKBAnalysesActivity)
	w.RegisterActivity(a.SaveCompetencyAnalysisActivity)
	w.RegisterActivity(a.LoadCompetencyAnalysesActivity)
	w.RegisterActivity(a.SaveSummaryActivity)
	w.RegisterActivity(a.GetSummaryActivity)
	w.RegisterActivity(a.UpdateReportStatusActivity)
	w.RegisterActivity(a.SetCurrentPhaseActivity)
	w.RegisterActivity(a.MarkPhaseCompleteActivity)
	w.RegisterActivity(a.WriteReportArtifactActivity)
}
