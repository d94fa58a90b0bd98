package engine

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/recouply/internal/observability/context"
	obslogger "github.com/smallbiznis/recouply/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recouply/internal/observability/metrics"
	"go.uber.org/zap"
)

type jobRun struct {
	job            string
	runID          string
	startedAt      time.Time
	processedCount int
	errorCount     int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processedCount += count
}

func (r *jobRun) AddErrors(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.errorCount += count
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

func (e *Engine) ensureJobRun(ctx context.Context, job, runID string) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     runID,
		startedAt: e.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, "system", "engine")
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

func (e *Engine) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, e.log)
}

func (e *Engine) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	obslogger.WithJob(e.logger(ctx), run.job, run.runID).Info("engine.job.start")
}

func (e *Engine) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.Int64("duration_ms", e.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("error_count", run.errorCount),
	}
	log := obslogger.WithJob(e.logger(ctx), run.job, run.runID)
	if run.errorCount > 0 {
		log.Warn("engine.job.finish", fields...)
		return
	}
	log.Info("engine.job.finish", fields...)
}

func (e *Engine) logJobError(ctx context.Context, run *jobRun, job string, err error) {
	if err == nil {
		return
	}
	runID := ""
	if run != nil {
		runID = run.runID
	}
	obslogger.WithJob(e.logger(ctx), job, runID).Error("engine.job.error",
		zap.String("error_type", obsmetrics.ClassifyEngineErrorType(err)),
		zap.Bool("retryable", obsmetrics.IsEngineErrorRetryable(err)),
		zap.Error(err),
	)
}
