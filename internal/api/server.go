package api

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"assessflow/internal/config"
	"assessflow/internal/models"
	"assessflow/internal/storage"
	"assessflow/internal/util"
	"assessflow/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

type Server struct {
	cfg          config.Config
	db           *storage.DB
	reportRepo   *storage.ReportRepo
	docRepo      *storage.DocumentRepo
	dictRepo     *storage.DictionaryRepo
	analysisRepo *storage.AnalysisRepo
	usageRepo    *storage.UsageRepo
	temporal     tclient.Client
	log          *zap.Logger
}

func NewServer(cfg config.Config, log *zap.Logger) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	return &Server{
		cfg:          cfg,
		db:           db,
		reportRepo:   storage.NewReportRepo(db),
		docRepo:      storage.NewDocumentRepo(db),
		dictRepo:     storage.NewDictionaryRepo(db),
		analysisRepo: storage.NewAnalysisRepo(db),
		usageRepo:    storage.NewUsageRepo(db),
		temporal:     tc,
		log:          log,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/reports", s.handleReports)
	mux.HandleFunc("/reports/", s.handleReportsScoped)
	mux.HandleFunc("/projects/", s.handleProjectsScoped)
	mux.HandleFunc("/usage", s.handleUsage)
	mux.HandleFunc("/queue/stats", s.handleQueueStats)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		ProjectID       string         `json:"project_id"`
		Title           string         `json:"title"`
		TargetLevels    map[string]int `json:"target_levels"`
		SpecificContext string         `json:"specific_context"`
		DocumentIDs     []string       `json:"document_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.Title = strings.TrimSpace(req.Title)
	if req.ProjectID == "" || req.Title == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("project_id and title are required"))
		return
	}
	if _, err := s.dictRepo.GetProjectDictionary(r.Context(), req.ProjectID); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("project has no dictionary"))
		return
	}

	docIDs := req.DocumentIDs
	if len(docIDs) == 0 {
		unbound, err := s.docRepo.ListUnbound(r.Context(), req.ProjectID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		for _, d := range unbound {
			docIDs = append(docIDs, d.DocumentID)
		}
	}
	if len(docIDs) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no documents provided"))
		return
	}

	reportID := uuid.NewString()
	rep := models.Report{
		ReportID:        reportID,
		ProjectID:       req.ProjectID,
		Title:           req.Title,
		TargetLevels:    req.TargetLevels,
		SpecificContext: req.SpecificContext,
		Status:          models.ReportQueued,
	}
	if err := s.reportRepo.Create(r.Context(), rep); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.docRepo.BindToReport(r.Context(), req.ProjectID, reportID, docIDs); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.dictRepo.SnapshotForReport(r.Context(), req.ProjectID, reportID); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	we, err := s.startPipeline(r.Context(), reportID)
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	s.log.Info("report submitted",
		zap.String("report_id", reportID),
		zap.String("project_id", req.ProjectID),
		zap.Int("documents", len(docIDs)))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"report_id":   reportID,
		"status":      models.ReportQueued,
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

func (s *Server) startPipeline(ctx context.Context, reportID string) (tclient.WorkflowRun, error) {
	return s.temporal.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       "report-" + reportID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.ReportPipelineWorkflow, workflows.ReportPipelineInput{ReportID: reportID})
}

func (s *Server) handleReportsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/reports/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	reportID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleGetReport(w, r, reportID)
		return
	}

	switch parts[1] {
	case "resume":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleResume(w, r, reportID)
	case "cancel":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleCancel(w, r, reportID)
	case "ask-ai":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleAskAI(w, r, reportID)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request, reportID string) {
	rep, err := s.reportRepo.Get(r.Context(), reportID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}

	out := map[string]any{"report": rep}

	// Live progress beats the DB row while a run is active.
	if rep.Status == models.ReportRunning {
		if resp, qerr := s.temporal.QueryWorkflow(r.Context(), "report-"+reportID, "", workflows.QueryGetReportProgress); qerr == nil {
			var prog workflows.ReportProgress
			if resp.Get(&prog) == nil {
				out["progress"] = prog
			}
		}
	}

	analyses, err := s.analysisRepo.ListCompetencyAnalyses(r.Context(), reportID)
	if err == nil && len(analyses) > 0 {
		out["competencies"] = analyses
	}
	if summary, serr := s.analysisRepo.GetSummary(r.Context(), reportID); serr == nil {
		out["executive_summary"] = summary
	}
	writeJSON(w, http.StatusOK, out)
}

// handleResume restarts a failed pipeline. The new run reloads the report row
// and skips every phase already recorded complete.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request, reportID string) {
	rep, err := s.reportRepo.Get(r.Context(), reportID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if rep.Status != models.ReportPhaseFailed {
		writeErr(w, http.StatusConflict, fmt.Errorf("%w: only a failed report can be resumed", util.ErrInvalidState))
		return
	}
	we, err := s.startPipeline(r.Context(), reportID)
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"report_id":   reportID,
		"resumed_at":  rep.FailedPhase,
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

// handleCancel requests a graceful stop. The signal is honored at the next
// phase boundary; a queued report that never started a phase stops before the
// first one.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, reportID string) {
	rep, err := s.reportRepo.Get(r.Context(), reportID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	switch rep.Status {
	case models.ReportQueued, models.ReportRunning:
	default:
		writeErr(w, http.StatusConflict, fmt.Errorf("%w: report is already terminal", util.ErrInvalidState))
		return
	}
	if err := s.temporal.SignalWorkflow(r.Context(), "report-"+reportID, "", workflows.SignalCancelReport, "api"); err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"report_id": reportID, "cancel_requested": true})
}

// handleAskAI refines one text block of a finished report synchronously. The
// rewrite is returned to the caller only, never persisted.
func (s *Server) handleAskAI(w http.ResponseWriter, r *http.Request, reportID string) {
	var req struct {
		TextBlock   string `json:"text_block"`
		Instruction string `json:"instruction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.TextBlock = strings.TrimSpace(req.TextBlock)
	req.Instruction = strings.TrimSpace(req.Instruction)
	if req.TextBlock == "" || req.Instruction == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("text_block and instruction are required"))
		return
	}

	rep, err := s.reportRepo.Get(r.Context(), reportID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if rep.Status != models.ReportComplete {
		writeErr(w, http.StatusConflict, fmt.Errorf("%w: only a complete report can be refined", util.ErrInvalidState))
		return
	}

	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:        "askai-" + reportID + "-" + uuid.NewString(),
		TaskQueue: s.cfg.TemporalTaskQueue,
	}, workflows.AskAIRefineWorkflow, workflows.AskAIRefineInput{
		ReportID:    reportID,
		TextBlock:   req.TextBlock,
		Instruction: req.Instruction,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	var out workflows.AskAIRefineOutput
	if err := we.Get(r.Context(), &out); err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report_id": reportID, "refined_text": out.RefinedText})
}

func (s *Server) handleProjectsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/projects/"), "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	projectID := parts[0]

	switch parts[1] {
	case "dictionary":
		switch r.Method {
		case http.MethodPut:
			s.handlePutDictionary(w, r, projectID)
		case http.MethodGet:
			dict, err := s.dictRepo.GetProjectDictionary(r.Context(), projectID)
			if err != nil {
				writeErr(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, dict)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
	case "documents":
		switch r.Method {
		case http.MethodPost:
			s.handleUpload(w, r, projectID)
		case http.MethodGet:
			docs, err := s.docRepo.ListUnbound(r.Context(), projectID)
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

// handlePutDictionary replaces the project's live dictionary. Running reports
// keep their snapshots; only reports created afterwards see the new version.
func (s *Server) handlePutDictionary(w http.ResponseWriter, r *http.Request, projectID string) {
	var dict models.CompetencyDictionary
	if err := json.NewDecoder(r.Body).Decode(&dict); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if len(dict.Competencies) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("dictionary needs at least one competency"))
		return
	}
	for _, c := range dict.Competencies {
		if strings.TrimSpace(c.CompetencyID) == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("competency without id"))
			return
		}
		for _, lvl := range c.Levels {
			for _, kb := range lvl.KeyBehaviors {
				if strings.TrimSpace(kb.KeyBehaviorID) == "" {
					writeErr(w, http.StatusBadRequest, fmt.Errorf("key behavior without id"))
					return
				}
			}
		}
	}
	if err := s.dictRepo.SaveProjectDictionary(r.Context(), projectID, dict); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project_id": projectID, "competencies": len(dict.Competencies)})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, projectID string) {
	if err := r.ParseMultipartForm(128 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}

	method := strings.TrimSpace(r.FormValue("method"))

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		if single, ok := firstSingleFile(r.MultipartForm.File); ok {
			files = append(files, single)
		}
	}
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}

	inDir := filepath.Join(s.cfg.DataInRoot, projectID)
	if err := util.EnsureDir(inDir); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	type uploadResult struct {
		Filename   string `json:"filename"`
		DocumentID string `json:"document_id"`
	}
	out := make([]uploadResult, 0, len(files))

	for _, fh := range files {
		if !allowedUpload(fh.Filename) {
			continue
		}
		docID, savedPath, err := saveUploadedFile(inDir, fh)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if err := s.docRepo.Insert(r.Context(), models.SourceDocument{
			DocumentID:       docID,
			ProjectID:        projectID,
			Filename:         filepath.Base(savedPath),
			FileRef:          savedPath,
			Method:           method,
			ExtractionStatus: models.ExtractionPending,
		}); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, uploadResult{Filename: filepath.Base(savedPath), DocumentID: docID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploaded": out})
}

func allowedUpload(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	q := r.URL.Query()
	filter := storage.UsageFilter{
		ProjectID: q.Get("project_id"),
		ReportID:  q.Get("report_id"),
		ModelID:   q.Get("model_id"),
		Action:    q.Get("action"),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid from timestamp"))
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid to timestamp"))
			return
		}
		filter.To = t
	}

	entries, err := s.usageRepo.List(r.Context(), filter)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	total, err := s.usageRepo.TotalCost(r.Context(), filter)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":              entries,
		"total_cost_micro_usd": total,
		"count":                len(entries),
	})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	counts, err := s.reportRepo.CountByStatus(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"by_status":      counts,
		"max_concurrent": s.cfg.MaxConcurrentReports,
	})
}

func saveUploadedFile(dstDir string, fh *multipart.FileHeader) (docID, path string, err error) {
	src, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, "upload-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), src); err != nil {
		return "", "", fmt.Errorf("write upload: %w", err)
	}

	docID = fmt.Sprintf("%x", h.Sum(nil))
	finalPath := filepath.Join(dstDir, filepath.Base(fh.Filename))
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", "", fmt.Errorf("seek temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", err
	}
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", "", fmt.Errorf("atomic move upload: %w", err)
	}
	return docID, finalPath, nil
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "AF-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "AF-DB-5001",
				Message: "Database schema is not initialized. Restart the service and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "AF-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "AF-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "AF-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "AF-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict, errors.Is(err, util.ErrInvalidState):
		code = "AF-API-4009"
		msg = "Operation conflicts with current report state."
	case status == http.StatusMethodNotAllowed:
		code = "AF-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusBadGateway:
		code = "AF-API-5020"
		msg = "Model backend unavailable. Retry shortly."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		low := strings.ToLower(err.Error())
		switch {
		case strings.Contains(low, "project_id and title are required"):
			msg = "Both project and title are required."
		case strings.Contains(low, "project has no dictionary"):
			msg = "Upload a competency dictionary for the project first."
		case strings.Contains(low, "no documents provided"):
			msg = "At least one source document is required."
		case strings.Contains(low, "no files provided"):
			msg = "No supported files were provided."
		case strings.Contains(low, "only a failed report can be resumed"):
			msg = "Only a failed report can be resumed."
		case strings.Contains(low, "only a complete report can be refined"):
			msg = "Ask AI is available on completed reports only."
		case strings.Contains(low, "report is already terminal"):
			msg = "The report has already finished."
		case strings.Contains(low, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
