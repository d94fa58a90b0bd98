// Package engine runs the daily collections cycle: stale draft cancellation,
// draft generation and dispatch hand-off, in that order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/clock"
	obsmetrics "github.com/smallbiznis/recouply/internal/observability/metrics"
	"github.com/smallbiznis/recouply/internal/observability/tracing"
	outreachdomain "github.com/smallbiznis/recouply/internal/outreach/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const tracerName = "recouply/engine"

const (
	JobCancelStale = "cancel_stale_drafts"
	JobGenerate    = "generate_drafts"
	JobDispatch    = "dispatch_drafts"
)

var ErrPhaseTimeout = errors.New("phase_timeout")

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Outreach outreachdomain.Service
	Config   Config
}

type Engine struct {
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	outreach outreachdomain.Service
	cfg      Config
}

// Summary is the result of one run.
type Summary struct {
	RunID     string   `json:"runId"`
	Cancelled int64    `json:"cancelled"`
	Generated int      `json:"generated"`
	Sent      int      `json:"sent"`
	Processed int      `json:"processed"`
	Errors    []string `json:"errors"`
}

func New(p Params) *Engine {
	return &Engine{
		log:      p.Log.Named("engine"),
		genID:    p.GenID,
		clock:    p.Clock,
		outreach: p.Outreach,
		cfg:      p.Config.withDefaults(),
	}
}

type phaseFunc func(ctx context.Context, opts outreachdomain.RunOptions) (outreachdomain.PhaseResult, error)

// RunOnce executes one full cycle. The returned error is non-nil only when
// the run had to stop before generation, i.e. the sweeper failed.
func (e *Engine) RunOnce(parent context.Context) (Summary, error) {
	opts := outreachdomain.RunOptions{
		RunID: e.genID.Generate().String(),
		Today: clock.Today(e.clock),
	}
	summary := Summary{RunID: opts.RunID, Errors: []string{}}

	ctx, span := tracing.StartSpan(parent, tracerName, "engine.run",
		attribute.String("run_id", opts.RunID),
		attribute.String("today", opts.Today.Format(time.DateOnly)),
	)
	defer span.End()

	cancelled, err := e.runJob(ctx, JobCancelStale, opts, e.outreach.CancelStale)
	summary.merge(cancelled)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "sweeper failed")
		e.logger(ctx).Error("engine run aborted",
			zap.String("run_id", opts.RunID),
			zap.Error(err),
		)
		return summary, err
	}

	for _, phase := range []struct {
		name string
		run  phaseFunc
	}{
		{JobGenerate, e.outreach.Generate},
		{JobDispatch, e.outreach.Dispatch},
	} {
		if parent.Err() != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", phase.name, parent.Err()))
			break
		}
		result, err := e.runJob(ctx, phase.name, opts, phase.run)
		summary.merge(result)
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
		}
	}

	span.SetAttributes(
		attribute.Int64("drafts_cancelled", summary.Cancelled),
		attribute.Int("drafts_generated", summary.Generated),
		attribute.Int("drafts_sent", summary.Sent),
	)
	e.logger(ctx).Info("engine run finished",
		zap.String("run_id", opts.RunID),
		zap.Int64("cancelled", summary.Cancelled),
		zap.Int("generated", summary.Generated),
		zap.Int("sent", summary.Sent),
		zap.Int("processed", summary.Processed),
		zap.Int("error_count", len(summary.Errors)),
	)
	return summary, nil
}

func (s *Summary) merge(r outreachdomain.PhaseResult) {
	s.Cancelled += r.Cancelled
	s.Generated += r.Generated
	s.Sent += r.Sent
	s.Processed += r.Processed
	s.Errors = append(s.Errors, r.Errors...)
}

func (e *Engine) runJob(
	parent context.Context,
	name string,
	opts outreachdomain.RunOptions,
	fn phaseFunc,
) (outreachdomain.PhaseResult, error) {
	start := e.clock.Now()
	ctx, cancel := context.WithTimeout(parent, e.cfg.PhaseTimeout)
	defer cancel()

	ctx, run, owner := e.ensureJobRun(ctx, name, opts.RunID)
	if owner {
		e.logJobStart(ctx, run)
	}
	ctx, span := tracing.StartSpan(ctx, tracerName, "engine."+name,
		attribute.String("run_id", opts.RunID),
	)
	defer span.End()

	engineMetrics := obsmetrics.Engine()
	engineMetrics.IncJobRun(name)

	result, err := fn(ctx, opts)
	engineMetrics.ObserveJobDuration(name, e.clock.Now().Sub(start))
	run.AddProcessed(result.Processed)
	run.AddErrors(len(result.Errors))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		e.logJobFinish(ctx, run)
	}
	if err == nil {
		return result, nil
	}

	span.RecordError(tracing.SafeError(err))
	span.SetStatus(codes.Error, obsmetrics.ClassifyEngineJobReason(err))

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		engineMetrics.IncJobTimeout(name)
	}
	engineMetrics.IncJobError(name, err)
	if isTimeout {
		e.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.String("run_id", opts.RunID),
			zap.Duration("timeout", e.cfg.PhaseTimeout),
			zap.Error(err),
		)
		return result, fmt.Errorf("%s: %w", name, ErrPhaseTimeout)
	}
	e.logJobError(ctx, run, name, err)
	return result, fmt.Errorf("%s: %w", name, err)
}

// RunForever runs a cycle every RunInterval until ctx is cancelled.
func (e *Engine) RunForever(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := e.clock.Now().Add(e.cfg.RunInterval)
	engineMetrics := obsmetrics.Engine()

	for {
		if _, err := e.RunOnce(ctx); err != nil {
			e.log.Warn("engine run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if lag := e.clock.Now().Sub(nextRun); lag > 0 {
			engineMetrics.ObserveRunLoopLag(lag)
		}
		nextRun = nextRun.Add(e.cfg.RunInterval)
	}
}
