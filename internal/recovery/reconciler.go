package recovery

import (
	"context"
	"errors"
	"time"

	"assessflow/internal/models"
	"assessflow/internal/storage"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

// Reconciler repairs reports orphaned by a crashed or restarted worker: rows
// stuck in RUNNING whose workflow execution is no longer open. Such reports
// are moved to PHASE_FAILED so an operator can resume them; the resumed run
// picks up after the last completed phase.
type Reconciler struct {
	reports  *storage.ReportRepo
	temporal tclient.Client
	log      *zap.Logger
}

func New(reports *storage.ReportRepo, temporal tclient.Client, log *zap.Logger) *Reconciler {
	return &Reconciler{reports: reports, temporal: temporal, log: log}
}

// Sweep is invoked on a cron schedule. It never fails the caller: per-report
// problems are logged and the sweep moves on.
func (rc *Reconciler) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	running, err := rc.reports.ListByStatus(ctx, string(models.ReportRunning))
	if err != nil {
		rc.log.Warn("recovery sweep: list running reports", zap.Error(err))
		return
	}
	for _, rep := range running {
		if rc.executionOpen(ctx, rep.ReportID) {
			continue
		}
		rc.log.Info("recovery sweep: marking orphaned report",
			zap.String("report_id", rep.ReportID),
			zap.String("phase", rep.CurrentPhase))
		if err := rc.reports.UpdateStatus(ctx, rep.ReportID, string(models.ReportPhaseFailed),
			rep.CurrentPhase, models.ReasonPipelineError+": workflow execution lost, resume to continue"); err != nil {
			rc.log.Warn("recovery sweep: update status", zap.String("report_id", rep.ReportID), zap.Error(err))
		}
	}
}

func (rc *Reconciler) executionOpen(ctx context.Context, reportID string) bool {
	desc, err := rc.temporal.DescribeWorkflowExecution(ctx, "report-"+reportID, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return false
		}
		// Anything else is indistinguishable from a live execution; leave the
		// report alone rather than fail one we cannot observe.
		rc.log.Debug("recovery sweep: describe workflow", zap.String("report_id", reportID), zap.Error(err))
		return true
	}
	info := desc.GetWorkflowExecutionInfo()
	if info == nil {
		return false
	}
	return info.GetStatus() == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING
}
