package runner

import (
	"context"
	"time"

	"github.com/Mythidas/MSPByte-sub000/pkg/rowstore"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"github.com/Mythidas/MSPByte-sub000/pkg/syncerr"
	"go.uber.org/zap"
)

// Requeuer returns failed jobs to pending until they reach the retry ceiling.
type Requeuer struct {
	logger *zap.Logger
	jobs   rowstore.Table[*model.SyncJob]

	RetryCeiling int
	now          func() time.Time
}

func NewRequeuer(logger *zap.Logger, jobs rowstore.Table[*model.SyncJob], retryCeiling int) *Requeuer {
	if retryCeiling <= 0 {
		retryCeiling = DefaultRetryCeiling
	}
	return &Requeuer{
		logger:       logger.Named("requeuer"),
		jobs:         jobs,
		RetryCeiling: retryCeiling,
		now:          time.Now,
	}
}

// Requeue moves retryable failed jobs back to pending and returns how many
// were moved.
func (q *Requeuer) Requeue(ctx context.Context) (int, error) {
	failed, err := q.jobs.Select(ctx, rowstore.Where("status", model.SyncJobStatusFailed).
		Lt("retry_count", q.RetryCeiling).
		OrderBy("last_attemt_at", false))
	if err != nil {
		return 0, syncerr.Log(q.logger, module, "select failed jobs", err)
	}

	requeued := 0
	for _, job := range failed {
		_, err := q.jobs.Patch(ctx, job.ID, rowstore.Patch{
			"status":       model.SyncJobStatusPending,
			"scheduled_at": q.now().UTC(),
		})
		if err != nil {
			q.logger.Warn("failed to requeue job", zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		requeued++
	}
	if requeued > 0 {
		q.logger.Info("requeued failed jobs", zap.Int("count", requeued))
		RequeuedCount.Add(float64(requeued))
	}
	return requeued, nil
}
