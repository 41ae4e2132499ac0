package reconcile

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/Mythidas/MSPByte-sub000/pkg/internal/sqlitetest"
	"github.com/Mythidas/MSPByte-sub000/pkg/rowstore"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"github.com/Mythidas/MSPByte-sub000/pkg/syncerr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type faultyTable struct {
	rowstore.Table[*model.SourceDevice]
	insertErr error
	deleteErr error
	updateErr map[string]error
}

func (f *faultyTable) Insert(ctx context.Context, rows []*model.SourceDevice) ([]*model.SourceDevice, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return f.Table.Insert(ctx, rows)
}

func (f *faultyTable) Delete(ctx context.Context, ids []uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Table.Delete(ctx, ids)
}

func (f *faultyTable) Update(ctx context.Context, id uuid.UUID, row *model.SourceDevice) (*model.SourceDevice, error) {
	if err := f.updateErr[row.ExternalID]; err != nil {
		return nil, err
	}
	return f.Table.Update(ctx, id, row)
}

var scope = model.Scope{TenantID: uuid.New(), SiteID: uuid.New(), SourceID: model.SourceSophosPartner}

func device(ext, host string) *model.SourceDevice {
	return &model.SourceDevice{ExternalID: ext, Hostname: host}
}

func hosts(rows []*model.SourceDevice) map[string]string {
	out := map[string]string{}
	for _, r := range rows {
		out[r.ExternalID] = r.Hostname
	}
	return out
}

func stored(t *testing.T, table rowstore.Table[*model.SourceDevice], s model.Scope) []*model.SourceDevice {
	rows, err := table.Select(context.Background(), rowstore.Where("source_id", s.SourceID).And("site_id", s.SiteID))
	require.NoError(t, err)
	return rows
}

func seeded(t *testing.T, rows ...*model.SourceDevice) rowstore.Table[*model.SourceDevice] {
	table := rowstore.NewGormTable[*model.SourceDevice](sqlitetest.Open(t, &model.SourceDevice{}))
	for _, r := range rows {
		r.Scope = scope
	}
	if len(rows) > 0 {
		_, err := table.Insert(context.Background(), rows)
		require.NoError(t, err)
	}
	return table
}

func TestReconcile_Mirror(t *testing.T) {
	other := model.Scope{TenantID: scope.TenantID, SiteID: uuid.New(), SourceID: scope.SourceID}
	table := seeded(t, device("a", "old-a"), device("b", "old-b"))
	_, err := table.Insert(context.Background(), []*model.SourceDevice{{Scope: other, ExternalID: "a"}})
	require.NoError(t, err)

	before := map[string]uuid.UUID{}
	for _, r := range stored(t, table, scope) {
		before[r.ExternalID] = r.ID
	}

	res, err := Reconcile[*model.SourceDevice](context.Background(), zap.NewNop(), table, scope,
		[]*model.SourceDevice{device("a", "new-a"), device("c", "new-c")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, map[string]string{"a": "new-a", "c": "new-c"}, hosts(res.Rows))

	rows := stored(t, table, scope)
	assert.Equal(t, map[string]string{"a": "new-a", "c": "new-c"}, hosts(rows))
	for _, r := range rows {
		if r.ExternalID == "a" {
			assert.Equal(t, before["a"], r.ID, "updated rows keep their id")
		}
		assert.Equal(t, scope, r.Scope)
	}
	assert.Len(t, stored(t, table, other), 1, "other sites are untouched")
}

func TestReconcile_Idempotent(t *testing.T) {
	table := seeded(t)
	desired := func() []*model.SourceDevice {
		return []*model.SourceDevice{device("a", "A"), device("b", "B")}
	}

	_, err := Reconcile[*model.SourceDevice](context.Background(), zap.NewNop(), table, scope, desired())
	require.NoError(t, err)
	first := stored(t, table, scope)

	res, err := Reconcile[*model.SourceDevice](context.Background(), zap.NewNop(), table, scope, desired())
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
	assert.Zero(t, res.Deleted)
	assert.Equal(t, 2, res.Updated)

	second := stored(t, table, scope)
	ids := func(rows []*model.SourceDevice) []string {
		var out []string
		for _, r := range rows {
			out = append(out, r.ID.String())
		}
		sort.Strings(out)
		return out
	}
	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, hosts(first), hosts(second))
}

func TestReconcile_InsertFailureIsFatal(t *testing.T) {
	mem := seeded(t, device("gone", "x"))
	table := &faultyTable{Table: mem, insertErr: errors.New("connection reset")}

	_, err := Reconcile[*model.SourceDevice](context.Background(), zap.NewNop(), table, scope, []*model.SourceDevice{device("new", "n")})
	require.Error(t, err)
	var tagged *syncerr.Error
	require.True(t, errors.As(err, &tagged))
	assert.Equal(t, module, tagged.Module)

	assert.Equal(t, map[string]string{"gone": "x"}, hosts(stored(t, mem, scope)), "nothing applied after a failed insert")
}

func TestReconcile_DeleteAndUpdateFailuresAreTolerated(t *testing.T) {
	mem := seeded(t, device("a", "old-a"), device("b", "old-b"), device("gone", "x"))
	table := &faultyTable{
		Table:     mem,
		deleteErr: errors.New("timeout"),
		updateErr: map[string]error{"b": errors.New("conflict")},
	}

	res, err := Reconcile[*model.SourceDevice](context.Background(), zap.NewNop(), table, scope,
		[]*model.SourceDevice{device("a", "new-a"), device("b", "new-b"), device("c", "new-c")})
	require.NoError(t, err)
	assert.True(t, res.DeleteFailed)
	assert.Equal(t, 1, res.UpdateFailures)
	assert.Equal(t, map[string]string{"a": "new-a", "c": "new-c"}, hosts(res.Rows))
	assert.Equal(t, map[string]string{"b": "old-b"}, hosts(res.Stale))
	assert.Len(t, res.Current(), 3)

	assert.Equal(t, map[string]string{"a": "new-a", "b": "old-b", "c": "new-c", "gone": "x"}, hosts(stored(t, mem, scope)))
}

func TestReconcile_Duplicates(t *testing.T) {
	table := seeded(t, device("a", "first"), device("a", "second"))

	res, err := Reconcile[*model.SourceDevice](context.Background(), zap.NewNop(), table, scope,
		[]*model.SourceDevice{device("a", "one"), device("b", "B"), device("a", "two")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.Inserted)

	rows := stored(t, table, scope)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]string{"a": "two", "b": "B"}, hosts(rows))
}

type failingSelect struct {
	rowstore.Table[*model.SourceDevice]
}

func (failingSelect) Select(context.Context, rowstore.Query) ([]*model.SourceDevice, error) {
	return nil, errors.New("permission denied")
}

func TestReconcile_SelectFailureIsFatal(t *testing.T) {
	table := failingSelect{Table: seeded(t)}
	_, err := Reconcile[*model.SourceDevice](context.Background(), zap.NewNop(), table, scope, nil)
	assert.ErrorContains(t, err, "permission denied")
}

func TestReconcile_EmptyDesiredDeletesEverything(t *testing.T) {
	table := seeded(t, device("a", "A"), device("b", "B"))
	res, err := Reconcile[*model.SourceDevice](context.Background(), zap.NewNop(), table, scope, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Empty(t, stored(t, table, scope))
}
