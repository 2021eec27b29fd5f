package workflows

import (
	"fmt"
	"strconv"

	"assessflow/internal/activities"
	"assessflow/internal/analysis"
	"assessflow/internal/models"
	"assessflow/internal/prompts"
	"assessflow/internal/routing"
	"assessflow/internal/util"

	"go.temporal.io/sdk/workflow"
)

func (p *pipeline) runPhase(ctx workflow.Context, phase string) error {
	switch phase {
	case models.PhaseExtraction:
		return p.runExtractionPhase(ctx)
	case models.PhaseKBFulfillment:
		return p.runKBFulfillmentPhase(ctx)
	case models.PhaseLevelAndNarrative:
		return p.runLevelAndNarrativePhase(ctx)
	case models.PhaseRecommendations:
		return p.runRecommendationsPhase(ctx)
	case models.PhaseSummaryDraft:
		return p.runSummaryDraftPhase(ctx)
	case models.PhaseSummaryCritique:
		return p.runSummaryCritiquePhase(ctx)
	default:
		return fmt.Errorf("unknown phase %s", phase)
	}
}

// invoke routes one call through the plan: the role's binding first, the
// backup binding if the role's model cannot be reached.
func (p *pipeline) invoke(ctx workflow.Context, action, role, system, user string, validate func(string) error) (activities.ModelCallOutput, error) {
	primary, err := p.plan.ForRole(role)
	if err != nil {
		return activities.ModelCallOutput{}, err
	}
	var backup *routing.ModelBinding
	if role != routing.RoleBackup {
		if b, berr := p.plan.ForRole(routing.RoleBackup); berr == nil {
			backup = &b
		}
	}
	return invokeModel(ctx, modelCall{
		ReportID:     p.report.ReportID,
		ProjectID:    p.report.ProjectID,
		Action:       action,
		Role:         role,
		Primary:      primary,
		Backup:       backup,
		TimeoutSecs:  p.plan.CallTimeoutSecs,
		SystemPrompt: system,
		UserPrompt:   user,
		Validate:     validate,
	})
}

// runExtractionPhase extracts evidence quotes per document. Items tagged with
// dictionary entries that do not exist are dropped with a warning; they never
// fail the phase.
func (p *pipeline) runExtractionPhase(ctx workflow.Context) error {
	logger := workflow.GetLogger(ctx)
	idx := analysis.NewDictionaryIndex(p.dict)
	items := make([]models.Evidence, 0)

	for _, doc := range p.docs {
		var textOut activities.EnsureDocumentTextOutput
		if err := workflow.ExecuteActivity(ctx, "EnsureDocumentTextActivity", activities.EnsureDocumentTextInput{DocumentID: doc.DocumentID}).Get(ctx, &textOut); err != nil {
			logger.Warn("document skipped: text extraction failed",
				"document_id", doc.DocumentID, "filename", doc.Filename, "error", err)
			continue
		}

		system, user := prompts.BuildExtractionPrompts(p.dict, doc, p.report.SpecificContext, textOut.Text)
		out, err := p.invoke(ctx, models.PhaseExtraction, routing.RoleJudgment, system, user, func(text string) error {
			_, perr := analysis.ParseEvidencePayload(text)
			return perr
		})
		if err != nil {
			return err
		}
		raw, err := analysis.ParseEvidencePayload(out.Text)
		if err != nil {
			return err
		}

		kept, dropped := analysis.FilterEvidence(raw, idx)
		if len(dropped) > 0 {
			logger.Warn("dropped evidence with unknown dictionary tags",
				"document_id", doc.DocumentID, "count", len(dropped), "reason", models.ReasonDictionaryMismatch)
		}
		for _, ev := range kept {
			items = append(items, models.Evidence{
				EvidenceID:    evidenceID(p.report.ReportID, doc.DocumentID, ev),
				ReportID:      p.report.ReportID,
				DocumentID:    doc.DocumentID,
				CompetencyID:  ev.CompetencyID,
				Level:         ev.Level,
				KeyBehaviorID: ev.KeyBehaviorID,
				Quote:         ev.Quote,
				Polarity:      models.EvidencePolarity(ev.Polarity),
				Reasoning:     ev.Reasoning,
				IsAIGenerated: true,
			})
		}
	}

	if len(items) == 0 {
		logger.Info("extraction found no evidence", "report_id", p.report.ReportID)
		return nil
	}
	return workflow.ExecuteActivity(ctx, "SaveEvidenceActivity", activities.SaveEvidenceInput{Items: items}).Get(ctx, nil)
}

// evidenceID derives a stable id from the item's content so a resumed or
// repeated extraction upserts rather than duplicates.
func evidenceID(reportID, documentID string, ev analysis.RawEvidence) string {
	h := util.SHA256Hex([]byte(reportID + "|" + documentID + "|" + ev.CompetencyID + "|" + strconv.Itoa(ev.Level) + "|" + ev.KeyBehaviorID + "|" + ev.Quote))
	return "ev-" + h[:32]
}

// runKBFulfillmentPhase judges every key behavior of every competency. The
// model answers per competency; verdicts for unknown key behaviors are
// dropped, missing ones are filled in as NOT_OBSERVED, and contra evidence
// overrides a FULFILLED verdict.
func (p *pipeline) runKBFulfillmentPhase(ctx workflow.Context) error {
	logger := workflow.GetLogger(ctx)

	var evidenceOut activities.LoadEvidenceOutput
	if err := workflow.ExecuteActivity(ctx, "LoadEvidenceActivity", activities.LoadEvidenceInput{ReportID: p.report.ReportID}).Get(ctx, &evidenceOut); err != nil {
		return err
	}

	rows := make([]models.KeyBehaviorAnalysis, 0)
	for _, comp := range p.dict.Competencies {
		kbLevel := map[string]int{}
		for _, lvl := range comp.Levels {
			for _, kb := range lvl.KeyBehaviors {
				kbLevel[kb.KeyBehaviorID] = lvl.Number
			}
		}
		compEvidence := analysis.EvidenceForCompetency(evidenceOut.Items, comp.CompetencyID)
		evidenceIDs := map[string]bool{}
		for _, ev := range compEvidence {
			evidenceIDs[ev.EvidenceID] = true
		}

		system, user := prompts.BuildKBCheckPrompts(comp, compEvidence)
		out, err := p.invoke(ctx, models.PhaseKBFulfillment, routing.RoleJudgment, system, user, func(text string) error {
			_, perr := analysis.ParseKBVerdicts(text)
			return perr
		})
		if err != nil {
			return err
		}
		verdicts, err := analysis.ParseKBVerdicts(out.Text)
		if err != nil {
			return err
		}

		known := make([]analysis.RawKBVerdict, 0, len(verdicts))
		for _, v := range verdicts {
			if _, ok := kbLevel[v.KeyBehaviorID]; !ok {
				logger.Warn("dropped verdict for unknown key behavior",
					"competency_id", comp.CompetencyID, "key_behavior_id", v.KeyBehaviorID, "reason", models.ReasonDictionaryMismatch)
				continue
			}
			cited := make([]string, 0, len(v.EvidenceIDs))
			for _, id := range v.EvidenceIDs {
				if evidenceIDs[id] {
					cited = append(cited, id)
				}
			}
			v.EvidenceIDs = cited
			known = append(known, v)
		}
		known = analysis.ApplyContraPrecedence(known, analysis.GroupEvidenceByKeyBehavior(compEvidence))

		seen := map[string]bool{}
		for _, v := range known {
			seen[v.KeyBehaviorID] = true
			rows = append(rows, kbAnalysisRow(p.report.ReportID, comp.CompetencyID, kbLevel[v.KeyBehaviorID], v))
		}
		for _, lvl := range comp.Levels {
			for _, kb := range lvl.KeyBehaviors {
				if seen[kb.KeyBehaviorID] {
					continue
				}
				rows = append(rows, kbAnalysisRow(p.report.ReportID, comp.CompetencyID, lvl.Number, analysis.RawKBVerdict{
					KeyBehaviorID: kb.KeyBehaviorID,
					Status:        string(models.KBNotObserved),
					Reasoning:     "No verdict returned for this key behavior.",
				}))
			}
		}
	}

	return workflow.ExecuteActivity(ctx, "SaveKBAnalysesActivity", activities.SaveKBAnalysesInput{Items: rows}).Get(ctx, nil)
}

func kbAnalysisRow(reportID, competencyID string, level int, v analysis.RawKBVerdict) models.KeyBehaviorAnalysis {
	return models.KeyBehaviorAnalysis{
		AnalysisID:    "kba-" + util.SHA256Hex([]byte(reportID+"|"+v.KeyBehaviorID))[:32],
		ReportID:      reportID,
		CompetencyID:  competencyID,
		Level:         level,
		KeyBehaviorID: v.KeyBehaviorID,
		Status:        models.KeyBehaviorStatus(v.Status),
		Reasoning:     v.Reasoning,
		EvidenceIDs:   v.EvidenceIDs,
	}
}

// runLevelAndNarrativePhase computes the achieved level deterministically from
// the verdicts, then asks the narrative model to explain the result. The model
// never picks the level.
func (p *pipeline) runLevelAndNarrativePhase(ctx workflow.Context) error {
	var kbOut activities.LoadKBAnalysesOutput
	if err := workflow.ExecuteActivity(ctx, "LoadKBAnalysesActivity", activities.LoadKBAnalysesInput{ReportID: p.report.ReportID}).Get(ctx, &kbOut); err != nil {
		return err
	}
	byComp := map[string][]models.KeyBehaviorAnalysis{}
	for _, a := range kbOut.Items {
		byComp[a.CompetencyID] = append(byComp[a.CompetencyID], a)
	}

	for _, comp := range p.dict.Competencies {
		verdicts := byComp[comp.CompetencyID]
		achieved := analysis.AchievedLevel(comp, verdicts, p.plan.FulfillmentThreshold)
		target := p.report.TargetLevels[comp.CompetencyID]

		system, user := prompts.BuildNarrativePrompts(comp, achieved, target, verdicts)
		out, err := p.invoke(ctx, models.PhaseLevelAndNarrative, routing.RoleNarrative, system, user, func(text string) error {
			_, perr := analysis.ParseNarrative(text)
			return perr
		})
		if err != nil {
			return err
		}
		narrative, err := analysis.ParseNarrative(out.Text)
		if err != nil {
			return err
		}

		if err := workflow.ExecuteActivity(ctx, "SaveCompetencyAnalysisActivity", activities.SaveCompetencyAnalysisInput{
			Analysis: models.CompetencyAnalysis{
				ReportID:      p.report.ReportID,
				CompetencyID:  comp.CompetencyID,
				AchievedLevel: achieved,
				TargetLevel:   target,
				Explanation:   narrative.Explanation,
			},
		}).Get(ctx, nil); err != nil {
			return err
		}
	}
	return nil
}

// runRecommendationsPhase generates development recommendations for each
// competency below its target. Competencies at or above target get none.
func (p *pipeline) runRecommendationsPhase(ctx workflow.Context) error {
	var analysesOut activities.LoadCompetencyAnalysesOutput
	if err := workflow.ExecuteActivity(ctx, "LoadCompetencyAnalysesActivity", activities.LoadCompetencyAnalysesInput{ReportID: p.report.ReportID}).Get(ctx, &analysesOut); err != nil {
		return err
	}
	byComp := map[string]models.CompetencyAnalysis{}
	for _, a := range analysesOut.Items {
		byComp[a.CompetencyID] = a
	}

	for _, comp := range p.dict.Competencies {
		a, ok := byComp[comp.CompetencyID]
		if !ok || a.AchievedLevel >= a.TargetLevel {
			continue
		}
		system, user := prompts.BuildRecommendationsPrompts(comp, a.AchievedLevel, a.TargetLevel, a.Explanation)
		out, err := p.invoke(ctx, models.PhaseRecommendations, routing.RoleNarrative, system, user, func(text string) error {
			_, perr := analysis.ParseRecommendations(text)
			return perr
		})
		if err != nil {
			return err
		}
		recs, err := analysis.ParseRecommendations(out.Text)
		if err != nil {
			return err
		}
		a.Recommendations = recs.Recommendations
		if err := workflow.ExecuteActivity(ctx, "SaveCompetencyAnalysisActivity", activities.SaveCompetencyAnalysisInput{Analysis: a}).Get(ctx, nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) runSummaryDraftPhase(ctx workflow.Context) error {
	var analysesOut activities.LoadCompetencyAnalysesOutput
	if err := workflow.ExecuteActivity(ctx, "LoadCompetencyAnalysesActivity", activities.LoadCompetencyAnalysesInput{ReportID: p.report.ReportID}).Get(ctx, &analysesOut); err != nil {
		return err
	}

	system, user := prompts.BuildSummaryPrompts(p.report, analysesOut.Items)
	out, err := p.invoke(ctx, models.PhaseSummaryDraft, routing.RoleNarrative, system, user, func(text string) error {
		_, perr := analysis.ParseSummary(text)
		return perr
	})
	if err != nil {
		return err
	}
	summary, err := analysis.ParseSummary(out.Text)
	if err != nil {
		return err
	}

	return workflow.ExecuteActivity(ctx, "SaveSummaryActivity", activities.SaveSummaryInput{
		Summary: models.ExecutiveSummary{ReportID: p.report.ReportID, Draft: summary.Summary},
	}).Get(ctx, nil)
}

// runSummaryCritiquePhase has the model critique its own draft and produce
// the final text, which is the version the report ships with.
func (p *pipeline) runSummaryCritiquePhase(ctx workflow.Context) error {
	var summaryOut activities.GetSummaryOutput
	if err := workflow.ExecuteActivity(ctx, "GetSummaryActivity", activities.GetSummaryInput{ReportID: p.report.ReportID}).Get(ctx, &summaryOut); err != nil {
		return err
	}
	var analysesOut activities.LoadCompetencyAnalysesOutput
	if err := workflow.ExecuteActivity(ctx, "LoadCompetencyAnalysesActivity", activities.LoadCompetencyAnalysesInput{ReportID: p.report.ReportID}).Get(ctx, &analysesOut); err != nil {
		return err
	}

	system, user := prompts.BuildCritiquePrompts(summaryOut.Summary.Draft, analysesOut.Items)
	out, err := p.invoke(ctx, models.PhaseSummaryCritique, routing.RoleNarrative, system, user, func(text string) error {
		_, perr := analysis.ParseCritique(text)
		return perr
	})
	if err != nil {
		return err
	}
	critique, err := analysis.ParseCritique(out.Text)
	if err != nil {
		return err
	}

	return workflow.ExecuteActivity(ctx, "SaveSummaryActivity", activities.SaveSummaryInput{
		Summary: models.ExecutiveSummary{
			ReportID:      p.report.ReportID,
			Draft:         summaryOut.Summary.Draft,
			CritiqueNotes: critique.Critique,
			FinalText:     critique.RevisedSummary,
			Finalized:     true,
		},
	}).Get(ctx, nil)
}
