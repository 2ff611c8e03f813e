// Package pipeline orchestrates the end-to-end run: Kaggle download,
// raw zone upload, schema creation, warehouse load, analytics, and data
// quality. Stages run sequentially; a failed stage is retried with
// backoff and a terminal failure raises an email alert.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/olistflow/olistflow/pkg/config"
	"github.com/olistflow/olistflow/pkg/logger"
	"github.com/olistflow/olistflow/pkg/metrics"
	"github.com/olistflow/olistflow/pkg/notify"
	"github.com/olistflow/olistflow/pkg/retry"
)

// Stage is one sequential step of a pipeline run.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// StageResult records one stage's outcome.
type StageResult struct {
	Name     string        `json:"name"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// RunReport summarizes a pipeline run.
type RunReport struct {
	RunID     string        `json:"run_id"`
	Stages    []StageResult `json:"stages"`
	Duration  time.Duration `json:"duration"`
	Succeeded bool          `json:"succeeded"`
}

// Runner executes stages with retry, timeout, and alerting.
type Runner struct {
	cfg     config.PipelineConfig
	alerter notify.Alerter
	logger  *zap.Logger
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg config.PipelineConfig, alerter notify.Alerter, log *zap.Logger) *Runner {
	if alerter == nil {
		alerter = notify.NopAlerter{}
	}
	return &Runner{
		cfg:     cfg,
		alerter: alerter,
		logger:  log.With(zap.String("component", "pipeline")),
	}
}

// Run executes the stages in order. The first stage that still fails
// after retries aborts the run and triggers the alert path.
func (r *Runner) Run(ctx context.Context, stages []Stage) (*RunReport, error) {
	runID := time.Now().UTC().Format("20060102T150405Z")
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)

	report := &RunReport{RunID: runID}
	start := time.Now()

	r.logger.Info("pipeline run started",
		zap.String("run_id", runID),
		zap.Int("stages", len(stages)))

	for _, stage := range stages {
		result, err := r.runStage(ctx, stage)
		report.Stages = append(report.Stages, result)

		if err != nil {
			report.Duration = time.Since(start)
			metrics.PipelineRuns.WithLabelValues("failure").Inc()

			r.logger.Error("pipeline run failed",
				zap.String("run_id", runID),
				zap.String("stage", stage.Name),
				zap.Error(err))

			r.alertFailure(runID, stage.Name, err)
			return report, err
		}
	}

	report.Duration = time.Since(start)
	report.Succeeded = true
	metrics.PipelineRuns.WithLabelValues("success").Inc()

	r.logger.Info("pipeline run succeeded",
		zap.String("run_id", runID),
		zap.Duration("duration", report.Duration))

	return report, nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage) (StageResult, error) {
	stageCtx := context.WithValue(ctx, logger.StageKey, stage.Name)
	log := r.logger.With(zap.String("stage", stage.Name))

	result := StageResult{Name: stage.Name}
	start := time.Now()

	policy := retry.NewPolicy(r.cfg.Retries+1, r.cfg.RetryDelay)

	err := policy.Execute(stageCtx, func() error {
		result.Attempts++
		if result.Attempts > 1 {
			metrics.StageRetries.WithLabelValues(stage.Name).Inc()
			log.Warn("retrying stage", zap.Int("attempt", result.Attempts))
		} else {
			log.Info("stage started")
		}

		attemptCtx := stageCtx
		var cancel context.CancelFunc
		if r.cfg.StageTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(stageCtx, r.cfg.StageTimeout)
			defer cancel()
		}

		return stage.Run(attemptCtx)
	})

	result.Duration = time.Since(start)
	metrics.StageDuration.WithLabelValues(stage.Name).Observe(result.Duration.Seconds())

	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	log.Info("stage complete", zap.Duration("duration", result.Duration))
	return result, nil
}

func (r *Runner) alertFailure(runID, stage string, err error) {
	subject := fmt.Sprintf("olistflow pipeline run %s failed at stage %s", runID, stage)
	body := fmt.Sprintf(
		"Pipeline run %s failed.\n\nStage: %s\nError: %v\nRetries exhausted: %d\n",
		runID, stage, err, r.cfg.Retries)

	if alertErr := r.alerter.Alert(subject, body); alertErr != nil {
		r.logger.Error("failed to send failure alert", zap.Error(alertErr))
	}
}
