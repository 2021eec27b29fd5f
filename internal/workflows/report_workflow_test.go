package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"assessflow/internal/activities"
	"assessflow/internal/models"
	"assessflow/internal/routing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func testPlan() routing.Plan {
	b := func(role, id string) routing.ModelBinding {
		return routing.ModelBinding{
			Role:                role,
			ModelID:             id,
			Temperature:         0.1,
			SupportsTemperature: true,
			InputCostPerMTok:    1_000_000,
			OutputCostPerMTok:   2_000_000,
		}
	}
	return routing.Plan{
		Bindings: map[string]routing.ModelBinding{
			routing.RoleJudgment:  b(routing.RoleJudgment, "judge-1"),
			routing.RoleNarrative: b(routing.RoleNarrative, "writer-1"),
			routing.RoleBackup:    b(routing.RoleBackup, "backup-1"),
			routing.RoleAskAI:     b(routing.RoleAskAI, "writer-1"),
		},
		CallTimeoutSecs:      30,
		FulfillmentThreshold: 1.0,
	}
}

func pipelineDictionary() models.CompetencyDictionary {
	return models.CompetencyDictionary{
		Name: "leadership-v1",
		Competencies: []models.Competency{
			{
				CompetencyID: "c1",
				Name:         "Team Leadership",
				Definition:   "Leads and develops a team.",
				Levels: []models.Level{
					{Number: 1, Description: "Leads day to day", KeyBehaviors: []models.KeyBehavior{
						{KeyBehaviorID: "kb1", Statement: "Sets direction for the team"},
						{KeyBehaviorID: "kb2", Statement: "Gives actionable feedback"},
					}},
					{Number: 2, Description: "Leads strategically", KeyBehaviors: []models.KeyBehavior{
						{KeyBehaviorID: "kb3", Statement: "Plans beyond the current quarter"},
					}},
				},
			},
		},
	}
}

func modelReply(action string) string {
	switch action {
	case models.PhaseExtraction:
		return `{"evidence":[` +
			`{"competency_id":"c1","level":1,"key_behavior_id":"kb1","quote":"set the team direction","polarity":"SUPPORTING","reasoning":"direct statement"},` +
			`{"competency_id":"c1","level":1,"key_behavior_id":"kb2","quote":"gave feedback weekly","polarity":"SUPPORTING","reasoning":"direct statement"}]}`
	case models.PhaseKBFulfillment:
		return `{"verdicts":[` +
			`{"key_behavior_id":"kb1","status":"FULFILLED","reasoning":"supported","evidence_ids":[]},` +
			`{"key_behavior_id":"kb2","status":"FULFILLED","reasoning":"supported","evidence_ids":[]},` +
			`{"key_behavior_id":"kb3","status":"NOT_OBSERVED","reasoning":"nothing found","evidence_ids":[]}]}`
	case models.PhaseLevelAndNarrative:
		return `{"explanation":"Level 1 behaviors are fulfilled; level 2 was not observed."}`
	case models.PhaseRecommendations:
		return `{"recommendations":["Own a cross-quarter planning exercise."]}`
	case models.PhaseSummaryDraft:
		return `{"summary":"Draft executive summary."}`
	case models.PhaseSummaryCritique:
		return `{"critique":"Tighten the opening.","revised_summary":"Final executive summary."}`
	case models.PhaseAskAIRefine:
		return `{"refined_text":"Refined text."}`
	}
	return `{}`
}

// pipelineHarness fakes the persistence activities in memory so phases read
// back what earlier phases wrote.
type pipelineHarness struct {
	report       models.Report
	docs         []models.SourceDocument
	evidence     []models.Evidence
	kbAnalyses   []models.KeyBehaviorAnalysis
	compAnalyses map[string]models.CompetencyAnalysis
	summary      models.ExecutiveSummary
	usage        []activities.RecordUsageInput
	modelCalls   []activities.ModelCallInput
	statuses     []string
	modelFn      func(in activities.ModelCallInput) (activities.ModelCallOutput, error)
	usageErr     error
	setPhaseErr  error
	markPhaseErr error
}

func newPipelineHarness() *pipelineHarness {
	h := &pipelineHarness{
		report: models.Report{
			ReportID:     "r1",
			ProjectID:    "p1",
			Title:        "Assessment of A. Candidate",
			TargetLevels: map[string]int{"c1": 2},
			Status:       models.ReportQueued,
		},
		docs: []models.SourceDocument{
			{DocumentID: "d1", ReportID: "r1", ProjectID: "p1", Filename: "interview.txt", FileRef: "/tmp/interview.txt", ExtractionStatus: models.ExtractionPending},
		},
		compAnalyses: map[string]models.CompetencyAnalysis{},
	}
	h.modelFn = func(in activities.ModelCallInput) (activities.ModelCallOutput, error) {
		return activities.ModelCallOutput{Text: modelReply(in.Action), InputTokens: 100, OutputTokens: 50, DurationMS: 20}, nil
	}
	return h
}

func (h *pipelineHarness) register(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "LoadPipelineStateActivity", func(_ context.Context, in activities.LoadPipelineStateInput) (activities.LoadPipelineStateOutput, error) {
		return activities.LoadPipelineStateOutput{Report: h.report, Dictionary: pipelineDictionary(), Documents: h.docs}, nil
	})
	registerActivityName(env, "ResolveRoutingPlanActivity", func(_ context.Context, in activities.ResolveRoutingPlanInput) (activities.ResolveRoutingPlanOutput, error) {
		return activities.ResolveRoutingPlanOutput{Plan: testPlan()}, nil
	})
	registerActivityName(env, "EnsureDocumentTextActivity", func(_ context.Context, in activities.EnsureDocumentTextInput) (activities.EnsureDocumentTextOutput, error) {
		return activities.EnsureDocumentTextOutput{Text: "interview transcript text", Method: "plain"}, nil
	})
	registerActivityName(env, "ModelCallActivity", func(_ context.Context, in activities.ModelCallInput) (activities.ModelCallOutput, error) {
		h.modelCalls = append(h.modelCalls, in)
		return h.modelFn(in)
	})
	registerActivityName(env, "RecordUsageActivity", func(_ context.Context, in activities.RecordUsageInput) error {
		if h.usageErr != nil {
			return h.usageErr
		}
		h.usage = append(h.usage, in)
		return nil
	})
	registerActivityName(env, "SaveEvidenceActivity", func(_ context.Context, in activities.SaveEvidenceInput) error {
		h.evidence = append(h.evidence, in.Items...)
		return nil
	})
	registerActivityName(env, "LoadEvidenceActivity", func(_ context.Context, in activities.LoadEvidenceInput) (activities.LoadEvidenceOutput, error) {
		return activities.LoadEvidenceOutput{Items: h.evidence}, nil
	})
	registerActivityName(env, "SaveKBAnalysesActivity", func(_ context.Context, in activities.SaveKBAnalysesInput) error {
		h.kbAnalyses = append(h.kbAnalyses, in.Items...)
		return nil
	})
	registerActivityName(env, "LoadKBAnalysesActivity", func(_ context.Context, in activities.LoadKBAnalysesInput) (activities.LoadKBAnalysesOutput, error) {
		return activities.LoadKBAnalysesOutput{Items: h.kbAnalyses}, nil
	})
	registerActivityName(env, "SaveCompetencyAnalysisActivity", func(_ context.Context, in activities.SaveCompetencyAnalysisInput) error {
		h.compAnalyses[in.Analysis.CompetencyID] = in.Analysis
		return nil
	})
	registerActivityName(env, "LoadCompetencyAnalysesActivity", func(_ context.Context, in activities.LoadCompetencyAnalysesInput) (activities.LoadCompetencyAnalysesOutput, error) {
		items := make([]models.CompetencyAnalysis, 0, len(h.compAnalyses))
		for _, a := range h.compAnalyses {
			items = append(items, a)
		}
		return activities.LoadCompetencyAnalysesOutput{Items: items}, nil
	})
	registerActivityName(env, "SaveSummaryActivity", func(_ context.Context, in activities.SaveSummaryInput) error {
		h.summary = in.Summary
		return nil
	})
	registerActivityName(env, "GetSummaryActivity", func(_ context.Context, in activities.GetSummaryInput) (activities.GetSummaryOutput, error) {
		return activities.GetSummaryOutput{Summary: h.summary}, nil
	})
	registerActivityName(env, "UpdateReportStatusActivity", func(_ context.Context, in activities.UpdateReportStatusInput) error {
		h.statuses = append(h.statuses, in.Status)
		return nil
	})
	registerActivityName(env, "SetCurrentPhaseActivity", func(_ context.Context, in activities.SetCurrentPhaseInput) error { return h.setPhaseErr })
	registerActivityName(env, "MarkPhaseCompleteActivity", func(_ context.Context, in activities.MarkPhaseCompleteInput) error { return h.markPhaseErr })
	registerActivityName(env, "WriteReportArtifactActivity", func(_ context.Context, in activities.WriteReportArtifactInput) error { return nil })
}

func TestReportPipelineWorkflowCompletes(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ReportPipelineWorkflow)
	h := newPipelineHarness()
	h.register(env)

	env.ExecuteWorkflow(ReportPipelineWorkflow, ReportPipelineInput{ReportID: "r1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.ReportComplete), out)

	// achieved level stops at 1: kb3 at level 2 is NOT_OBSERVED
	a := h.compAnalyses["c1"]
	require.Equal(t, 1, a.AchievedLevel)
	require.Equal(t, 2, a.TargetLevel)
	require.NotEmpty(t, a.Explanation)
	require.NotEmpty(t, a.Recommendations)

	require.True(t, h.summary.Finalized)
	require.Equal(t, "Final executive summary.", h.summary.FinalText)

	require.Len(t, h.evidence, 2)
	require.Len(t, h.kbAnalyses, 3)

	// one SUCCESS ledger row per model call, no failures
	require.Len(t, h.usage, 6)
	for _, u := range h.usage {
		require.Equal(t, models.OutcomeSuccess, u.Outcome)
		require.Equal(t, 100, u.InputTokens)
	}
	require.Equal(t, []string{string(models.ReportRunning), string(models.ReportComplete)}, h.statuses)
}

func TestReportPipelineWorkflowFallsBackToBackup(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ReportPipelineWorkflow)
	h := newPipelineHarness()
	base := h.modelFn
	h.modelFn = func(in activities.ModelCallInput) (activities.ModelCallOutput, error) {
		if in.Action == models.PhaseExtraction && in.ModelID == "judge-1" {
			return activities.ModelCallOutput{}, errors.New("connection refused")
		}
		return base(in)
	}
	h.register(env)

	env.ExecuteWorkflow(ReportPipelineWorkflow, ReportPipelineInput{ReportID: "r1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.ReportComplete), out)

	// primary exhausted (initial try plus two retries), then backup succeeded
	var failed, succeeded int
	for _, u := range h.usage {
		if u.Action != models.PhaseExtraction {
			continue
		}
		switch u.Outcome {
		case models.OutcomeFailed:
			failed++
			require.Equal(t, "judge-1", u.ModelID)
			require.Equal(t, "transient", u.ErrorType)
		case models.OutcomeSuccess:
			succeeded++
			require.Equal(t, "backup-1", u.ModelID)
			require.Equal(t, 4, u.Attempt)
		}
	}
	require.Equal(t, 3, failed)
	require.Equal(t, 1, succeeded)
}

func TestReportPipelineWorkflowSchemaCorrectiveRetry(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ReportPipelineWorkflow)
	h := newPipelineHarness()
	base := h.modelFn
	extractionCalls := 0
	h.modelFn = func(in activities.ModelCallInput) (activities.ModelCallOutput, error) {
		if in.Action == models.PhaseExtraction {
			extractionCalls++
			if extractionCalls == 1 {
				return activities.ModelCallOutput{Text: "I cannot answer in JSON.", InputTokens: 80, OutputTokens: 10}, nil
			}
		}
		return base(in)
	}
	h.register(env)

	env.ExecuteWorkflow(ReportPipelineWorkflow, ReportPipelineInput{ReportID: "r1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.ReportComplete), out)
	require.Equal(t, 2, extractionCalls)

	// the malformed reply still consumed tokens, so it is billed as FAILED
	var schemaFailures int
	for _, u := range h.usage {
		if u.Action == models.PhaseExtraction && u.Outcome == models.OutcomeFailed {
			schemaFailures++
			require.Equal(t, "schema", u.ErrorType)
			require.Equal(t, 80, u.InputTokens)
		}
	}
	require.Equal(t, 1, schemaFailures)
}

func TestReportPipelineWorkflowSchemaViolationTerminal(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ReportPipelineWorkflow)
	h := newPipelineHarness()
	h.modelFn = func(in activities.ModelCallInput) (activities.ModelCallOutput, error) {
		return activities.ModelCallOutput{Text: "not json", InputTokens: 10, OutputTokens: 5}, nil
	}
	h.register(env)

	env.ExecuteWorkflow(ReportPipelineWorkflow, ReportPipelineInput{ReportID: "r1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.ReportPhaseFailed), out)
	require.Contains(t, h.statuses, string(models.ReportPhaseFailed))
}

func TestReportPipelineWorkflowFailsWhenLedgerUnavailable(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ReportPipelineWorkflow)
	h := newPipelineHarness()
	h.usageErr = errors.New("connection refused")
	h.register(env)

	env.ExecuteWorkflow(ReportPipelineWorkflow, ReportPipelineInput{ReportID: "r1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	// a run that cannot meter its spend must not keep spending
	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.ReportPhaseFailed), out)
	require.Empty(t, h.usage)
	require.Len(t, h.modelCalls, 1)
	require.Contains(t, h.statuses, string(models.ReportPhaseFailed))
	require.NotContains(t, h.statuses, string(models.ReportComplete))
}

func TestReportPipelineWorkflowFailsWhenPhaseMarkingUnavailable(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ReportPipelineWorkflow)
	h := newPipelineHarness()
	h.markPhaseErr = errors.New("connection refused")
	h.register(env)

	env.ExecuteWorkflow(ReportPipelineWorkflow, ReportPipelineInput{ReportID: "r1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	// EXTRACTION ran and was billed, but its completion never landed; the run
	// must stop rather than finish with a stale completed-phases row.
	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.ReportPhaseFailed), out)
	require.NotEmpty(t, h.usage)
	require.Contains(t, h.statuses, string(models.ReportPhaseFailed))
	require.NotContains(t, h.statuses, string(models.ReportComplete))
}

func TestReportPipelineWorkflowFailsWhenPhaseTrackingUnavailable(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ReportPipelineWorkflow)
	h := newPipelineHarness()
	h.setPhaseErr = errors.New("connection refused")
	h.register(env)

	env.ExecuteWorkflow(ReportPipelineWorkflow, ReportPipelineInput{ReportID: "r1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	// failing before the phase opens means nothing was invoked or billed
	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.ReportPhaseFailed), out)
	require.Empty(t, h.modelCalls)
	require.Empty(t, h.usage)
}

func TestReportPipelineWorkflowCancelAtPhaseBoundary(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ReportPipelineWorkflow)
	h := newPipelineHarness()
	base := h.modelFn
	firstCall := true
	h.modelFn = func(in activities.ModelCallInput) (activities.ModelCallOutput, error) {
		// force one retry sleep so the cancel signal lands mid-phase
		if firstCall {
			firstCall = false
			return activities.ModelCallOutput{}, errors.New("temporarily unavailable")
		}
		return base(in)
	}
	h.register(env)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalCancelReport, "requested")
	}, 500*time.Millisecond)

	env.ExecuteWorkflow(ReportPipelineWorkflow, ReportPipelineInput{ReportID: "r1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.ReportCancelled), out)
	require.Contains(t, h.statuses, string(models.ReportCancelled))
	// the in-flight phase finished; its ledger rows stand
	require.NotEmpty(t, h.usage)
}

func TestReportPipelineWorkflowResumeSkipsCompletedPhases(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ReportPipelineWorkflow)
	h := newPipelineHarness()
	h.report.Status = models.ReportPhaseFailed
	h.report.CompletedPhases = []string{
		models.PhaseExtraction,
		models.PhaseKBFulfillment,
		models.PhaseLevelAndNarrative,
		models.PhaseRecommendations,
		models.PhaseSummaryDraft,
	}
	h.summary = models.ExecutiveSummary{ReportID: "r1", Draft: "Draft executive summary."}
	h.compAnalyses["c1"] = models.CompetencyAnalysis{ReportID: "r1", CompetencyID: "c1", AchievedLevel: 1, TargetLevel: 2}
	h.register(env)

	env.ExecuteWorkflow(ReportPipelineWorkflow, ReportPipelineInput{ReportID: "r1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.ReportComplete), out)

	require.Len(t, h.modelCalls, 1)
	require.Equal(t, models.PhaseSummaryCritique, h.modelCalls[0].Action)
	require.True(t, h.summary.Finalized)
}

func TestAskAIRefineWorkflow(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(AskAIRefineWorkflow)
	h := newPipelineHarness()
	h.report.Status = models.ReportComplete
	h.register(env)

	env.ExecuteWorkflow(AskAIRefineWorkflow, AskAIRefineInput{ReportID: "r1", TextBlock: "Final executive summary.", Instruction: "shorter"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out AskAIRefineOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "Refined text.", out.RefinedText)

	require.Len(t, h.usage, 1)
	require.Equal(t, models.PhaseAskAIRefine, h.usage[0].Action)
	require.Equal(t, "writer-1", h.usage[0].ModelID)
}

func TestAskAIRefineWorkflowRejectsUnfinishedReport(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(AskAIRefineWorkflow)
	h := newPipelineHarness()
	h.report.Status = models.ReportRunning
	h.register(env)

	env.ExecuteWorkflow(AskAIRefineWorkflow, AskAIRefineInput{ReportID: "r1", TextBlock: "x", Instruction: "y"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	// rejected before any model call: nothing billed
	require.Empty(t, h.modelCalls)
	require.Empty(t, h.usage)
}
