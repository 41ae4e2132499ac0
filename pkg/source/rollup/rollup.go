// Package rollup recomputes the per-mapping metric counters shown on the
// dashboard.
package rollup

import (
	"context"

	"github.com/Mythidas/MSPByte-sub000/pkg/rowstore"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"github.com/Mythidas/MSPByte-sub000/pkg/syncerr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const module = "rollup"

// Replace deletes every metric of scope and inserts metrics in their place.
// When the delete fails nothing is inserted, so a mapping never carries two
// generations of metrics.
func Replace(ctx context.Context, logger *zap.Logger, table rowstore.Table[*model.SourceMetric], scope model.Scope, metrics []*model.SourceMetric) ([]*model.SourceMetric, error) {
	existing, err := table.Select(ctx, rowstore.Where("source_id", scope.SourceID).And("site_id", scope.SiteID))
	if err != nil {
		return nil, syncerr.New(module, "select metrics", err)
	}

	ids := make([]uuid.UUID, 0, len(existing))
	for _, m := range existing {
		ids = append(ids, m.ID)
	}
	if err := table.Delete(ctx, ids); err != nil {
		return nil, syncerr.New(module, "delete metrics", err)
	}

	for _, m := range metrics {
		m.Scope = scope
	}
	inserted, err := table.Insert(ctx, metrics)
	if err != nil {
		return nil, syncerr.New(module, "insert metrics", err)
	}

	logger.Info("metrics replaced",
		zap.String("source_id", scope.SourceID),
		zap.String("site_id", scope.SiteID.String()),
		zap.Int("deleted", len(ids)),
		zap.Int("inserted", len(inserted)),
	)
	return inserted, nil
}
