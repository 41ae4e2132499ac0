// Package runner claims due sync jobs and executes them one at a time.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/Mythidas/MSPByte-sub000/pkg/rowstore"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/db"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/orchestrator"
	"github.com/Mythidas/MSPByte-sub000/pkg/syncerr"
	"github.com/go-errors/errors"
	"go.uber.org/zap"
)

const (
	module = "runner"

	DefaultMaxEstDuration = 60
	DefaultRetryCeiling   = 3

	// finalizeTimeout bounds the status write of a job whose batch context
	// is already gone.
	finalizeTimeout = 10 * time.Second
)

type Summary struct {
	Claimed   int
	Completed int
	Failed    int
}

type Runner struct {
	logger   *zap.Logger
	store    rowstore.Store
	jobs     rowstore.Table[*model.SyncJob]
	dispatch orchestrator.SyncFunc

	// MaxEstDuration is the est_duration budget, in minutes, of one claim.
	MaxEstDuration int
	now            func() time.Time
}

func New(logger *zap.Logger, store rowstore.Store, jobs rowstore.Table[*model.SyncJob], dispatch orchestrator.SyncFunc) *Runner {
	return &Runner{
		logger:         logger.Named(module),
		store:          store,
		jobs:           jobs,
		dispatch:       dispatch,
		MaxEstDuration: DefaultMaxEstDuration,
		now:            time.Now,
	}
}

// Process claims a batch of due jobs and runs them sequentially. Only a
// failed claim is returned as an error; job failures are recorded on the
// job rows. Once ctx is done the remaining claimed jobs are not started and
// are recorded as failed so the requeue loop can pick them up.
func (r *Runner) Process(ctx context.Context) (Summary, error) {
	var jobs []*model.SyncJob
	if err := r.store.RPC(ctx, db.ClaimProcedure, &jobs, r.MaxEstDuration); err != nil {
		return Summary{}, syncerr.Log(r.logger, module, "claim jobs", err)
	}

	summary := Summary{Claimed: len(jobs)}
	if len(jobs) == 0 {
		r.logger.Info("no jobs found")
		return summary, nil
	}
	r.logger.Info("claimed jobs", zap.Int("count", len(jobs)))

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			for _, rest := range jobs[i:] {
				summary.Failed++
				JobsCount.WithLabelValues(rest.SourceID, "failed").Inc()
				r.fail(ctx, rest, err)
			}
			r.logger.Warn("batch interrupted", zap.Int("abandoned", len(jobs)-i), zap.Error(err))
			break
		}
		if err := r.run(ctx, job); err != nil {
			summary.Failed++
			r.fail(ctx, job, err)
			continue
		}
		summary.Completed++
		r.complete(ctx, job)
	}

	r.logger.Info("processed jobs",
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (r *Runner) run(ctx context.Context, job *model.SyncJob) (err error) {
	start := r.now()
	logger := r.logger.With(zap.String("job_id", job.ID.String()), zap.String("source_id", job.SourceID))
	defer func() {
		if p := recover(); p != nil {
			logger.Error("paniced with error", zap.Any("panic", p))
			fmt.Println(errors.Wrap(p, 2).ErrorStack())
			err = fmt.Errorf("paniced: %v", p)
		}

		status := "completed"
		if err != nil {
			status = "failed"
		}
		JobDuration.WithLabelValues(job.SourceID, status).Observe(r.now().Sub(start).Seconds())
		JobsCount.WithLabelValues(job.SourceID, status).Inc()
	}()

	logger.Info("running job")
	err = r.dispatch(ctx, model.Scope{TenantID: job.TenantID, SiteID: job.SiteID, SourceID: job.SourceID})
	if err != nil {
		logger.Error("job failed", syncerr.Fields(err)...)
	}
	return err
}

// finalizing detaches the status write from the batch context while
// keeping its values, such as the forwarded Authorization header.
func finalizing(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}

func (r *Runner) complete(ctx context.Context, job *model.SyncJob) {
	ctx, cancel := finalizing(ctx)
	defer cancel()
	_, err := r.jobs.Patch(ctx, job.ID, rowstore.Patch{
		"status":       model.SyncJobStatusCompleted,
		"completed_at": r.now().UTC(),
		"error":        "",
	})
	if err != nil {
		r.logger.Error("failed to mark job completed", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

func (r *Runner) fail(ctx context.Context, job *model.SyncJob, cause error) {
	ctx, cancel := finalizing(ctx)
	defer cancel()
	_, err := r.jobs.Patch(ctx, job.ID, rowstore.Patch{
		"status":         model.SyncJobStatusFailed,
		"error":          cause.Error(),
		"retry_count":    job.RetryCount + 1,
		"last_attemt_at": r.now().UTC(),
	})
	if err != nil {
		r.logger.Error("failed to mark job failed", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}
