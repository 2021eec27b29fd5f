package activities

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"assessflow/internal/config"
	"assessflow/internal/cost"
	"assessflow/internal/metrics"
	"assessflow/internal/models"
	"assessflow/internal/providers"
	"assessflow/internal/routing"
	"assessflow/internal/storage"
	"assessflow/internal/util"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

type Activities struct {
	cfg          config.Config
	reportRepo   *storage.ReportRepo
	docRepo      *storage.DocumentRepo
	dictRepo     *storage.DictionaryRepo
	analysisRepo *storage.AnalysisRepo
	usageRepo    *storage.UsageRepo
	modelRepo    *storage.ModelRepo
	providers    *providers.Manager
	log          *zap.Logger
}

func New(cfg config.Config, db *storage.DB, log *zap.Logger) (*Activities, error) {
	modelRepo := storage.NewModelRepo(db)
	catalog, err := modelRepo.ListCatalog(context.Background())
	if err != nil {
		return nil, err
	}
	pm, err := providers.NewManager(catalog)
	if err != nil {
		return nil, err
	}
	return &Activities{
		cfg:          cfg,
		reportRepo:   storage.NewReportRepo(db),
		docRepo:      storage.NewDocumentRepo(db),
		dictRepo:     storage.NewDictionaryRepo(db),
		analysisRepo: storage.NewAnalysisRepo(db),
		usageRepo:    storage.NewUsageRepo(db),
		modelRepo:    modelRepo,
		providers:    pm,
		log:          log,
	}, nil
}

// LoadPipelineStateActivity gathers everything a run needs up front: the
// report row, its frozen dictionary, and the bound documents. The snapshot is
// taken here if the run is the first to touch the report.
func (a *Activities) LoadPipelineStateActivity(ctx context.Context, in LoadPipelineStateInput) (LoadPipelineStateOutput, error) {
	rep, err := a.reportRepo.Get(ctx, in.ReportID)
	if err != nil {
		return LoadPipelineStateOutput{}, err
	}
	if err := a.dictRepo.SnapshotForReport(ctx, rep.ProjectID, rep.ReportID); err != nil {
		return LoadPipelineStateOutput{}, err
	}
	dict, err := a.dictRepo.GetReportDictionary(ctx, rep.ReportID)
	if err != nil {
		return LoadPipelineStateOutput{}, err
	}
	docs, err := a.docRepo.ListByReport(ctx, rep.ReportID)
	if err != nil {
		return LoadPipelineStateOutput{}, err
	}
	return LoadPipelineStateOutput{Report: rep, Dictionary: dict, Documents: docs}, nil
}

// ResolveRoutingPlanActivity binds roles to catalog models once per run. The
// plan rides in workflow state afterwards, so mid-run config edits are inert.
func (a *Activities) ResolveRoutingPlanActivity(ctx context.Context, in ResolveRoutingPlanInput) (ResolveRoutingPlanOutput, error) {
	catalog, err := a.modelRepo.ListCatalog(ctx)
	if err != nil {
		return ResolveRoutingPlanOutput{}, err
	}
	plan, err := routing.BuildPlan(a.cfg, catalog)
	if err != nil {
		return ResolveRoutingPlanOutput{}, err
	}
	a.log.Info("routing plan resolved",
		zap.String("report_id", in.ReportID),
		zap.Int("roles", len(plan.Bindings)))
	return ResolveRoutingPlanOutput{Plan: plan}, nil
}

// EnsureDocumentTextActivity returns the document's sanitized text, extracting
// it on first use. Re-runs read the stored text instead of re-parsing.
func (a *Activities) EnsureDocumentTextActivity(ctx context.Context, in EnsureDocumentTextInput) (EnsureDocumentTextOutput, error) {
	doc, err := a.docRepo.Get(ctx, in.DocumentID)
	if err != nil {
		return EnsureDocumentTextOutput{}, err
	}
	if doc.ExtractionStatus == models.ExtractionDone {
		text, err := a.docRepo.GetExtractedText(ctx, in.DocumentID)
		if err != nil {
			return EnsureDocumentTextOutput{}, err
		}
		return EnsureDocumentTextOutput{Text: text, Method: doc.Method}, nil
	}

	text, method, err := extractFileText(doc.FileRef)
	if err != nil {
		if uerr := a.docRepo.UpdateExtraction(ctx, doc.DocumentID, models.ExtractionFailed, method, ""); uerr != nil {
			a.log.Warn("mark extraction failed", zap.String("document_id", doc.DocumentID), zap.Error(uerr))
		}
		return EnsureDocumentTextOutput{}, err
	}
	if err := a.docRepo.UpdateExtraction(ctx, doc.DocumentID, models.ExtractionDone, method, text); err != nil {
		return EnsureDocumentTextOutput{}, err
	}
	return EnsureDocumentTextOutput{Text: text, Method: method}, nil
}

func extractFileText(path string) (string, string, error) {
	if strings.HasSuffix(strings.ToLower(path), ".pdf") {
		f, r, err := pdf.Open(path)
		if err != nil {
			return "", "pdf", fmt.Errorf("open pdf: %w", err)
		}
		defer f.Close()
		reader, err := r.GetPlainText()
		if err != nil {
			return "", "pdf", fmt.Errorf("extract pdf text: %w", err)
		}
		buf := new(strings.Builder)
		if _, err := io.Copy(buf, reader); err != nil {
			return "", "pdf", fmt.Errorf("read extracted text: %w", err)
		}
		text := util.SanitizeText(strings.TrimSpace(buf.String()))
		if text == "" {
			return "", "pdf", util.ErrNoExtractableText
		}
		return text, "pdf", nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "plain", fmt.Errorf("read document: %w", err)
	}
	text := util.SanitizeText(strings.TrimSpace(string(raw)))
	if text == "" {
		return "", "plain", util.ErrNoExtractableText
	}
	return text, "plain", nil
}

// ModelCallActivity is one provider invocation. Retries, fallback and schema
// checks live in the workflow, so this runs with a single Temporal attempt.
func (a *Activities) ModelCallActivity(ctx context.Context, in ModelCallInput) (ModelCallOutput, error) {
	provider, mc, err := a.providers.ForModel(in.ModelID)
	if err != nil {
		return ModelCallOutput{}, err
	}

	timeout := time.Duration(in.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(a.cfg.ModelCallTimeoutSecs) * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := providers.ChatRequest{
		Action:       in.Action,
		ModelID:      mc.ModelID,
		SystemPrompt: in.SystemPrompt,
		UserPrompt:   in.UserPrompt,
	}
	if !in.OmitTemperature {
		t := in.Temperature
		req.Temperature = &t
	}

	start := time.Now()
	resp, err := provider.Complete(callCtx, req)
	elapsed := time.Since(start)
	if err != nil {
		a.log.Warn("model call failed",
			zap.String("report_id", in.ReportID),
			zap.String("action", in.Action),
			zap.String("model", in.ModelID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return ModelCallOutput{}, fmt.Errorf("model %s: %w", in.ModelID, err)
	}
	return ModelCallOutput{
		Text:         resp.Text,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		DurationMS:   elapsed.Milliseconds(),
	}, nil
}

// RecordUsageActivity appends one ledger row per attempt, successful or not.
// Cost is computed here from the plan's rates so the stored value is final.
func (a *Activities) RecordUsageActivity(ctx context.Context, in RecordUsageInput) error {
	c := cost.Compute(in.InputTokens, in.OutputTokens, in.InputCostPerMTok, in.OutputCostPerMTok)
	err := a.usageRepo.Insert(ctx, models.UsageLogEntry{
		EntryID:      uuid.NewString(),
		ReportID:     in.ReportID,
		ProjectID:    in.ProjectID,
		Action:       in.Action,
		Role:         in.Role,
		ModelID:      in.ModelID,
		Attempt:      in.Attempt,
		InputTokens:  in.InputTokens,
		OutputTokens: in.OutputTokens,
		CostMicroUSD: c,
		DurationMS:   in.DurationMS,
		Outcome:      in.Outcome,
		ErrorType:    in.ErrorType,
		PromptHash:   in.PromptHash,
		ResponseHash: in.ResponseHash,
	})
	if err != nil {
		return err
	}
	metrics.ModelAttemptsTotal.WithLabelValues(in.ModelID, in.Outcome).Inc()
	metrics.TokensUsed.WithLabelValues(in.ModelID, "input").Add(float64(in.InputTokens))
	metrics.TokensUsed.WithLabelValues(in.ModelID, "output").Add(float64(in.OutputTokens))
	metrics.CostMicroUSD.WithLabelValues(in.ModelID).Add(float64(c))
	return nil
}

func (a *Activities) SaveEvidenceActivity(ctx context.Context, in SaveEvidenceInput) error {
	return a.analysisRepo.InsertEvidence(ctx, in.Items)
}

func (a *Activities) LoadEvidenceActivity(ctx context.Context, in LoadEvidenceInput) (LoadEvidenceOutput, error) {
	items, err := a.analysisRepo.ListEvidence(ctx, in.ReportID)
	if err != nil {
		return LoadEvidenceOutput{}, err
	}
	return LoadEvidenceOutput{Items: items}, nil
}

func (a *Activities) SaveKBAnalysesActivity(ctx context.Context, in SaveKBAnalysesInput) error {
	return a.analysisRepo.UpsertKBAnalyses(ctx, in.Items)
}

func (a *Activities) LoadKBAnalysesActivity(ctx context.Context, in LoadKBAnalysesInput) (LoadKBAnalysesOutput, error) {
	items, err := a.analysisRepo.ListKBAnalyses(ctx, in.ReportID)
	if err != nil {
		return LoadKBAnalysesOutput{}, err
	}
	return LoadKBAnalysesOutput{Items: items}, nil
}

func (a *Activities) SaveCompetencyAnalysisActivity(ctx context.Context, in SaveCompetencyAnalysisInput) error {
	return a.analysisRepo.UpsertCompetencyAnalysis(ctx, in.Analysis)
}

func (a *Activities) LoadCompetencyAnalysesActivity(ctx context.Context, in LoadCompetencyAnalysesInput) (LoadCompetencyAnalysesOutput, error) {
	items, err := a.analysisRepo.ListCompetencyAnalyses(ctx, in.ReportID)
	if err != nil {
		return LoadCompetencyAnalysesOutput{}, err
	}
	return LoadCompetencyAnalysesOutput{Items: items}, nil
}

func (a *Activities) SaveSummaryActivity(ctx context.Context, in SaveSummaryInput) error {
	return a.analysisRepo.UpsertSummary(ctx, in.Summary)
}

func (a *Activities) GetSummaryActivity(ctx context.Context, in GetSummaryInput) (GetSummaryOutput, error) {
	s, err := a.analysisRepo.GetSummary(ctx, in.ReportID)
	if err != nil {
		return GetSummaryOutput{}, err
	}
	return GetSummaryOutput{Summary: s}, nil
}

func (a *Activities) UpdateReportStatusActivity(ctx context.Context, in UpdateReportStatusInput) error {
	if err := a.reportRepo.UpdateStatus(ctx, in.ReportID, in.Status, in.FailedPhase, in.FailReason); err != nil {
		return err
	}
	switch models.ReportStatus(in.Status) {
	case models.ReportRunning:
		metrics.ActiveReports.Inc()
	case models.ReportComplete, models.ReportPhaseFailed, models.ReportCancelled:
		metrics.ActiveReports.Dec()
		metrics.PipelinesTotal.WithLabelValues(in.Status).Inc()
	}
	return nil
}

func (a *Activities) SetCurrentPhaseActivity(ctx context.Context, in SetCurrentPhaseInput) error {
	return a.reportRepo.SetCurrentPhase(ctx, in.ReportID, in.Phase)
}

func (a *Activities) MarkPhaseCompleteActivity(ctx context.Context, in MarkPhaseCompleteInput) error {
	if err := a.reportRepo.MarkPhaseComplete(ctx, in.ReportID, in.Phase); err != nil {
		return err
	}
	metrics.PhaseDuration.WithLabelValues(in.Phase).Observe(in.DurationSec)
	return nil
}

func (a *Activities) WriteReportArtifactActivity(ctx context.Context, in WriteReportArtifactInput) error {
	_ = ctx
	path := filepath.Join(a.cfg.DataOutRoot, "reports", in.ReportID, in.Name)
	return util.WriteJSONAtomic(path, in.Payload)
}
