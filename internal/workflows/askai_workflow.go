package workflows

import (
	"time"

	"assessflow/internal/activities"
	"assessflow/internal/analysis"
	"assessflow/internal/models"
	"assessflow/internal/prompts"
	"assessflow/internal/routing"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// AskAIRefineWorkflow rewrites one text block of a finished report on request.
// The result is returned to the caller, never written back; only COMPLETE
// reports qualify, and the guard fires before any model call so a rejected
// request bills nothing.
func AskAIRefineWorkflow(ctx workflow.Context, input AskAIRefineInput) (AskAIRefineOutput, error) {
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
		return AskAIRefineOutput{}, err
	}
	if state.Report.Status != models.ReportComplete {
		return AskAIRefineOutput{}, temporal.NewNonRetryableApplicationError(
			"report is not COMPLETE", models.ReasonInvalidState, nil)
	}

	var planOut activities.ResolveRoutingPlanOutput
	if err := workflow.ExecuteActivity(ctx, "ResolveRoutingPlanActivity", activities.ResolveRoutingPlanInput{ReportID: input.ReportID}).Get(ctx, &planOut); err != nil {
		return AskAIRefineOutput{}, err
	}
	primary, err := planOut.Plan.ForRole(routing.RoleAskAI)
	if err != nil {
		return AskAIRefineOutput{}, err
	}
	var backup *routing.ModelBinding
	if b, berr := planOut.Plan.ForRole(routing.RoleBackup); berr == nil {
		backup = &b
	}

	system, user := prompts.BuildRefinePrompts(input.TextBlock, input.Instruction)
	out, err := invokeModel(ctx, modelCall{
		ReportID:     input.ReportID,
		ProjectID:    state.Report.ProjectID,
		Action:       models.PhaseAskAIRefine,
		Role:         routing.RoleAskAI,
		Primary:      primary,
		Backup:       backup,
		TimeoutSecs:  planOut.Plan.CallTimeoutSecs,
		SystemPrompt: system,
		UserPrompt:   user,
		Validate: func(text string) error {
			_, perr := analysis.ParseRefinement(text)
			return perr
		},
	})
	if err != nil {
		return AskAIRefineOutput{}, err
	}
	refined, err := analysis.ParseRefinement(out.Text)
	if err != nil {
		return AskAIRefineOutput{}, err
	}
	return AskAIRefineOutput{RefinedText: refined.RefinedText}, nil
}
