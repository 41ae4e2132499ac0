// Package reconcile mirrors freshly fetched vendor rows into the row store.
package reconcile

import (
	"context"
	"time"

	"github.com/Mythidas/MSPByte-sub000/pkg/rowstore"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"github.com/Mythidas/MSPByte-sub000/pkg/syncerr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const module = "reconcile"

// Entity is a normalized row keyed by its vendor id within a mapping.
type Entity interface {
	rowstore.Row
	GetExternalID() string
	GetCreatedAt() time.Time
	SetCreatedAt(time.Time)
	GetScope() model.Scope
	SetScope(model.Scope)
}

type Result[T Entity] struct {
	// Rows holds inserted rows and successfully updated rows.
	Rows []T
	// Stale holds the stored version of rows whose update failed.
	Stale []T

	Inserted       int
	Updated        int
	Deleted        int
	UpdateFailures int
	DeleteFailed   bool
}

// Current is every row believed to exist for the mapping after the run:
// Rows plus the previous version of rows that failed to update.
func (r Result[T]) Current() []T {
	out := make([]T, 0, len(r.Rows)+len(r.Stale))
	out = append(out, r.Rows...)
	return append(out, r.Stale...)
}

// Reconcile makes the stored rows of scope match desired by external id.
// Rows missing from desired are deleted. A failed select or insert aborts
// the run; failed deletes and updates are logged and tolerated.
func Reconcile[T Entity](ctx context.Context, logger *zap.Logger, table rowstore.Table[T], scope model.Scope, desired []T) (Result[T], error) {
	var result Result[T]
	entity := table.Name()
	logger = logger.With(
		zap.String("entity", entity),
		zap.String("source_id", scope.SourceID),
		zap.String("site_id", scope.SiteID.String()),
	)

	existing, err := table.Select(ctx, rowstore.Where("source_id", scope.SourceID).And("site_id", scope.SiteID))
	if err != nil {
		RunsCount.WithLabelValues(entity, "failed").Inc()
		return result, syncerr.New(module, "select existing "+entity, err)
	}

	byExternal := make(map[string]T, len(existing))
	var toDelete []uuid.UUID
	for _, row := range existing {
		if _, dup := byExternal[row.GetExternalID()]; dup {
			logger.Warn("duplicate stored row, scheduling delete",
				zap.String("external_id", row.GetExternalID()),
				zap.String("id", row.GetID().String()),
			)
			toDelete = append(toDelete, row.GetID())
			continue
		}
		byExternal[row.GetExternalID()] = row
	}

	wanted := dedupe(logger, desired)

	var toInsert, toUpdate []T
	previous := map[uuid.UUID]T{}
	for _, row := range wanted {
		row.SetScope(scope)
		current, ok := byExternal[row.GetExternalID()]
		if !ok {
			toInsert = append(toInsert, row)
			continue
		}
		row.SetID(current.GetID())
		row.SetCreatedAt(current.GetCreatedAt())
		toUpdate = append(toUpdate, row)
		previous[current.GetID()] = current
		delete(byExternal, row.GetExternalID())
	}
	for _, row := range byExternal {
		toDelete = append(toDelete, row.GetID())
	}

	if len(toInsert) > 0 {
		inserted, err := table.Insert(ctx, toInsert)
		if err != nil {
			RowsCount.WithLabelValues(entity, "insert", "failed").Add(float64(len(toInsert)))
			RunsCount.WithLabelValues(entity, "failed").Inc()
			return result, syncerr.New(module, "insert "+entity, err)
		}
		RowsCount.WithLabelValues(entity, "insert", "succeeded").Add(float64(len(inserted)))
		result.Inserted = len(inserted)
		result.Rows = append(result.Rows, inserted...)
	}

	if len(toDelete) > 0 {
		if err := table.Delete(ctx, toDelete); err != nil {
			RowsCount.WithLabelValues(entity, "delete", "failed").Add(float64(len(toDelete)))
			result.DeleteFailed = true
			logger.Warn("failed to delete vanished rows", append(syncerr.Fields(err), zap.Int("count", len(toDelete)))...)
		} else {
			RowsCount.WithLabelValues(entity, "delete", "succeeded").Add(float64(len(toDelete)))
			result.Deleted = len(toDelete)
		}
	}

	for _, row := range toUpdate {
		updated, err := table.Update(ctx, row.GetID(), row)
		if err != nil {
			RowsCount.WithLabelValues(entity, "update", "failed").Inc()
			result.UpdateFailures++
			result.Stale = append(result.Stale, previous[row.GetID()])
			logger.Warn("failed to update row",
				append(syncerr.Fields(err), zap.String("external_id", row.GetExternalID()))...)
			continue
		}
		RowsCount.WithLabelValues(entity, "update", "succeeded").Inc()
		result.Updated++
		result.Rows = append(result.Rows, updated)
	}

	RunsCount.WithLabelValues(entity, "succeeded").Inc()
	logger.Info("reconciled",
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("deleted", result.Deleted),
		zap.Int("update_failures", result.UpdateFailures),
		zap.Bool("delete_failed", result.DeleteFailed),
	)
	return result, nil
}

// dedupe keeps the last row for each external id at the position of its
// first occurrence.
func dedupe[T Entity](logger *zap.Logger, rows []T) []T {
	index := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if i, ok := index[row.GetExternalID()]; ok {
			logger.Warn("duplicate external id in fetched rows, keeping the last", zap.String("external_id", row.GetExternalID()))
			out[i] = row
			continue
		}
		index[row.GetExternalID()] = len(out)
		out = append(out, row)
	}
	return out
}
