package workflows

import (
	"fmt"
	"time"

	"assessflow/internal/activities"
	"assessflow/internal/models"
	"assessflow/internal/prompts"
	"assessflow/internal/providers"
	"assessflow/internal/routing"
	"assessflow/internal/util"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const maxRetriesPerModel = 2

// modelCall is one routed invocation: a role binding, the prompts, and a
// validator for the reply payload.
type modelCall struct {
	ReportID     string
	ProjectID    string
	Action       string
	Role         string
	Primary      routing.ModelBinding
	Backup       *routing.ModelBinding
	TimeoutSecs  int
	SystemPrompt string
	UserPrompt   string
	// Validate is the strict payload check; a failure is a schema violation,
	// answered with one corrective re-prompt before giving up.
	Validate func(text string) error
}

// invokeModel drives the retry/fallback state machine for one model call.
// Temporal retries are disabled on the call activity so every attempt is
// visible here and lands in the usage ledger exactly once. Transient failures
// back off and retry on the same model; when the primary is exhausted the
// backup gets the same treatment. Schema violations burn real tokens, so they
// are billed as failed attempts and retried once with a corrective prompt.
func invokeModel(ctx workflow.Context, call modelCall) (activities.ModelCallOutput, error) {
	logger := workflow.GetLogger(ctx)
	callCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Duration(call.TimeoutSecs+30) * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	bindings := []routing.ModelBinding{call.Primary}
	if call.Backup != nil && call.Backup.ModelID != call.Primary.ModelID {
		bindings = append(bindings, *call.Backup)
	}

	attempt := 0
	correctiveUsed := false
	userPrompt := call.UserPrompt
	var lastErr error

	for _, binding := range bindings {
		retries := 0
		for {
			attempt++
			in := activities.ModelCallInput{
				ReportID:        call.ReportID,
				Action:          call.Action,
				ModelID:         binding.ModelID,
				SystemPrompt:    call.SystemPrompt,
				UserPrompt:      userPrompt,
				Temperature:     binding.Temperature,
				OmitTemperature: !binding.SupportsTemperature,
				TimeoutSecs:     call.TimeoutSecs,
			}
			promptHash := util.SHA256Hex([]byte(call.SystemPrompt + "\n" + userPrompt))

			var out activities.ModelCallOutput
			err := workflow.ExecuteActivity(callCtx, "ModelCallActivity", in).Get(callCtx, &out)
			if err != nil {
				lastErr = err
				errType := providers.ClassifyError(err)
				if rerr := recordUsage(ctx, call, binding, attempt, activities.ModelCallOutput{}, models.OutcomeFailed, string(errType), promptHash, ""); rerr != nil {
					return activities.ModelCallOutput{}, rerr
				}
				logger.Warn("model attempt failed",
					"action", call.Action, "model", binding.ModelID, "attempt", attempt, "error_type", string(errType))
				if providers.Retryable(errType) && retries < maxRetriesPerModel {
					retries++
					if serr := workflow.Sleep(ctx, time.Duration(retries)*time.Second); serr != nil {
						return activities.ModelCallOutput{}, serr
					}
					continue
				}
				break
			}

			if call.Validate != nil {
				if verr := call.Validate(out.Text); verr != nil {
					lastErr = verr
					if rerr := recordUsage(ctx, call, binding, attempt, out, models.OutcomeFailed, string(providers.ErrorSchema), promptHash, util.SHA256Hex([]byte(out.Text))); rerr != nil {
						return activities.ModelCallOutput{}, rerr
					}
					if !correctiveUsed {
						correctiveUsed = true
						userPrompt = call.UserPrompt + prompts.CorrectiveSuffix
						continue
					}
					return activities.ModelCallOutput{}, fmt.Errorf("%w: %s: %s", util.ErrSchemaViolation, binding.ModelID, verr.Error())
				}
			}

			if rerr := recordUsage(ctx, call, binding, attempt, out, models.OutcomeSuccess, "", promptHash, util.SHA256Hex([]byte(out.Text))); rerr != nil {
				return activities.ModelCallOutput{}, rerr
			}
			return out, nil
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no model bindings available")
	}
	return activities.ModelCallOutput{}, fmt.Errorf("%w: %s", util.ErrModelUnavailable, lastErr.Error())
}

// recordUsage appends one ledger row for the attempt. A failed append is
// fatal to the call: the ledger holds exactly one row per attempt, and a run
// that cannot meter its spend must not keep spending.
func recordUsage(ctx workflow.Context, call modelCall, binding routing.ModelBinding, attempt int, out activities.ModelCallOutput, outcome, errType, promptHash, responseHash string) error {
	err := workflow.ExecuteActivity(ctx, "RecordUsageActivity", activities.RecordUsageInput{
		ReportID:          call.ReportID,
		ProjectID:         call.ProjectID,
		Action:            call.Action,
		Role:              call.Role,
		ModelID:           binding.ModelID,
		Attempt:           attempt,
		InputTokens:       out.InputTokens,
		OutputTokens:      out.OutputTokens,
		InputCostPerMTok:  binding.InputCostPerMTok,
		OutputCostPerMTok: binding.OutputCostPerMTok,
		DurationMS:        out.DurationMS,
		Outcome:           outcome,
		ErrorType:         errType,
		PromptHash:        promptHash,
		ResponseHash:      responseHash,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Error("usage ledger append failed",
			"report_id", call.ReportID, "action", call.Action, "attempt", attempt, "error", err)
		return fmt.Errorf("usage ledger append: %w", err)
	}
	return nil
}
