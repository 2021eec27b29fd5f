package workflows

import (
	"errors"
	"time"

	"assessflow/internal/activities"
	"assessflow/internal/models"
	"assessflow/internal/routing"
	"assessflow/internal/util"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// pipeline carries the run-scoped state every phase works from: the report
// row, the frozen dictionary snapshot, the bound documents, and the routing
// plan resolved at start.
type pipeline struct {
	report models.Report
	dict   models.CompetencyDictionary
	docs   []models.SourceDocument
	plan   routing.Plan
}

// ReportPipelineWorkflow runs the phase sequence for one report. Business
// failures end the run with a terminal status string rather than a workflow
// error, so Temporal never retries a failed pipeline on its own; resuming is
// an explicit operator action that starts a fresh run skipping the phases
// already recorded as complete.
func ReportPipelineWorkflow(ctx workflow.Context, input ReportPipelineInput) (string, error) {
	progress := ReportProgress{ReportID: input.ReportID, CompletedPhases: []string{}}
	if err := workflow.SetQueryHandler(ctx, QueryGetReportProgress, func() (ReportProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	cancelCh := workflow.GetSignalChannel(ctx, SignalCancelReport)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var state activities.LoadPipelineStateOutput
	if err := workflow.ExecuteActivity(ctx, "LoadPipelineStateActivity", activities.LoadPipelineStateInput{ReportID: input.ReportID}).Get(ctx, &state); err != nil {
		return "", err
	}
	switch state.Report.Status {
	case models.ReportComplete, models.ReportCancelled:
		return string(state.Report.Status), nil
	}

	var planOut activities.ResolveRoutingPlanOutput
	if err := workflow.ExecuteActivity(ctx, "ResolveRoutingPlanActivity", activities.ResolveRoutingPlanInput{ReportID: input.ReportID}).Get(ctx, &planOut); err != nil {
		return "", err
	}

	setStatus(ctx, input.ReportID, models.ReportRunning, "", "")
	progress.Status = string(models.ReportRunning)
	progress.CompletedPhases = append(progress.CompletedPhases, state.Report.CompletedPhases...)

	p := &pipeline{
		report: state.Report,
		dict:   state.Dictionary,
		docs:   state.Documents,
		plan:   planOut.Plan,
	}

	completed := map[string]bool{}
	for _, phase := range state.Report.CompletedPhases {
		completed[phase] = true
	}

	failPhase := func(phase string, err error) string {
		reason := failReasonFor(err)
		setStatus(ctx, input.ReportID, models.ReportPhaseFailed, phase, reason+": "+err.Error())
		progress.Status = string(models.ReportPhaseFailed)
		progress.FailedPhase = phase
		progress.FailReason = reason
		progress.CurrentPhase = ""
		return string(models.ReportPhaseFailed)
	}

	for _, phase := range models.PhaseSequence() {
		if completed[phase] {
			continue
		}
		// Cancellation is honored at phase boundaries only; a phase in flight
		// finishes and its ledger entries stand.
		if drainCancel(cancelCh) {
			setStatus(ctx, input.ReportID, models.ReportCancelled, "", "")
			progress.Status = string(models.ReportCancelled)
			progress.CurrentPhase = ""
			return string(models.ReportCancelled), nil
		}

		// Phase bookkeeping is durable pipeline state: losing it means a later
		// resume would re-run (and re-bill) finished phases, so a failed write
		// ends the run like any other phase failure.
		progress.CurrentPhase = phase
		if err := workflow.ExecuteActivity(ctx, "SetCurrentPhaseActivity", activities.SetCurrentPhaseInput{ReportID: input.ReportID, Phase: phase}).Get(ctx, nil); err != nil {
			return failPhase(phase, err), nil
		}

		started := workflow.Now(ctx)
		if err := p.runPhase(ctx, phase); err != nil {
			return failPhase(phase, err), nil
		}
		elapsed := workflow.Now(ctx).Sub(started)
		if err := workflow.ExecuteActivity(ctx, "MarkPhaseCompleteActivity", activities.MarkPhaseCompleteInput{
			ReportID:    input.ReportID,
			Phase:       phase,
			DurationSec: elapsed.Seconds(),
		}).Get(ctx, nil); err != nil {
			return failPhase(phase, err), nil
		}
		progress.CompletedPhases = append(progress.CompletedPhases, phase)
		progress.CurrentPhase = ""
	}

	if err := p.writeFinalArtifact(ctx); err != nil {
		workflow.GetLogger(ctx).Warn("final artifact write failed", "report_id", input.ReportID, "error", err)
	}
	setStatus(ctx, input.ReportID, models.ReportComplete, "", "")
	progress.Status = string(models.ReportComplete)
	return string(models.ReportComplete), nil
}

func setStatus(ctx workflow.Context, reportID string, status models.ReportStatus, failedPhase, failReason string) {
	err := workflow.ExecuteActivity(ctx, "UpdateReportStatusActivity", activities.UpdateReportStatusInput{
		ReportID:    reportID,
		Status:      string(status),
		FailedPhase: failedPhase,
		FailReason:  failReason,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Error("status update failed", "report_id", reportID, "status", string(status), "error", err)
	}
}

func drainCancel(ch workflow.ReceiveChannel) bool {
	got := false
	for {
		var sig any
		if !ch.ReceiveAsync(&sig) {
			return got
		}
		got = true
	}
}

func failReasonFor(err error) string {
	switch {
	case errors.Is(err, util.ErrModelUnavailable):
		return models.ReasonModelUnavailable
	case errors.Is(err, util.ErrSchemaViolation):
		return models.ReasonSchemaViolation
	default:
		return models.ReasonPipelineError
	}
}

func (p *pipeline) writeFinalArtifact(ctx workflow.Context) error {
	var analyses activities.LoadCompetencyAnalysesOutput
	if err := workflow.ExecuteActivity(ctx, "LoadCompetencyAnalysesActivity", activities.LoadCompetencyAnalysesInput{ReportID: p.report.ReportID}).Get(ctx, &analyses); err != nil {
		return err
	}
	var summary activities.GetSummaryOutput
	if err := workflow.ExecuteActivity(ctx, "GetSummaryActivity", activities.GetSummaryInput{ReportID: p.report.ReportID}).Get(ctx, &summary); err != nil {
		return err
	}
	return workflow.ExecuteActivity(ctx, "WriteReportArtifactActivity", activities.WriteReportArtifactInput{
		ReportID: p.report.ReportID,
		Name:     "report.json",
		Payload: map[string]any{
			"report_id":         p.report.ReportID,
			"project_id":        p.report.ProjectID,
			"title":             p.report.Title,
			"competencies":      analyses.Items,
			"executive_summary": summary.Summary.FinalText,
			"generated_at":      workflow.Now(ctx),
		},
	}).Get(ctx, nil)
}
