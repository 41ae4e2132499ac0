package rowstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mythidas/MSPByte-sub000/pkg/internal/sqlitetest"
	"github.com/Mythidas/MSPByte-sub000/pkg/syncerr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type WidgetBase struct {
	ID        uuid.UUID `gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (b *WidgetBase) GetID() uuid.UUID   { return b.ID }
func (b *WidgetBase) SetID(id uuid.UUID) { b.ID = id }

type widgetKind string

type widget struct {
	WidgetBase
	SiteID   uuid.UUID `gorm:"type:uuid"`
	Name     string
	Kind     widgetKind
	Count    int
	SeenAt   *time.Time
	Label    string `gorm:"column:display_label"`
	Internal string `gorm:"-"`
}

func widgets(t *testing.T) *GormTable[*widget] {
	return NewGormTable[*widget](sqlitetest.Open(t, &widget{}))
}

func seedWidgets(t *testing.T) (*GormTable[*widget], uuid.UUID) {
	site := uuid.New()
	table := widgets(t)
	_, err := table.Insert(context.Background(), []*widget{
		{SiteID: site, Name: "alpha", Kind: "a", Count: 3},
		{SiteID: site, Name: "bravo", Kind: "b", Count: 1},
		{SiteID: site, Name: "charlie", Kind: "a", Count: 2},
		{SiteID: uuid.New(), Name: "delta", Kind: "a", Count: 5},
	})
	require.NoError(t, err)
	return table, site
}

func names(rows []*widget) []string {
	var out []string
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

func TestGormTable_Name(t *testing.T) {
	assert.Equal(t, "widgets", widgets(t).Name())
}

func TestGormTable_Select(t *testing.T) {
	ctx := context.Background()
	table, site := seedWidgets(t)

	rows, err := table.Select(ctx, Where("site_id", site).OrderBy("count", false))
	require.NoError(t, err)
	assert.Equal(t, []string{"bravo", "charlie", "alpha"}, names(rows))

	rows, err = table.Select(ctx, Where("kind", "a").Not("name", "delta").OrderBy("name", true))
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie", "alpha"}, names(rows))

	rows, err = table.Select(ctx, Query{}.In("name", []string{"alpha", "delta", "echo"}).OrderBy("name", false))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "delta"}, names(rows))

	rows, err = table.Select(ctx, Query{}.Gt("count", 1).Lt("count", 5).OrderBy("count", false))
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie", "alpha"}, names(rows))

	rows, err = table.Select(ctx, Query{}.OrderBy("name", false).Page(2, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"bravo", "charlie"}, names(rows))

	_, err = table.Select(ctx, Where("missing", 1))
	require.Error(t, err)
	var tagged *syncerr.Error
	assert.True(t, errors.As(err, &tagged))
	assert.Equal(t, module, tagged.Module)

	_, err = table.Select(ctx, Query{}.In("name", "alpha"))
	assert.Error(t, err, "IN needs a slice")
}

func TestGormTable_SelectSingle(t *testing.T) {
	ctx := context.Background()
	table, _ := seedWidgets(t)

	row, err := table.SelectSingle(ctx, Where("name", "bravo"))
	require.NoError(t, err)
	assert.Equal(t, 1, row.Count)

	_, err = table.SelectSingle(ctx, Where("name", "zulu"))
	assert.ErrorIs(t, err, syncerr.ErrNotFound)
}

func TestGormTable_InsertAssignsIDAndTimestamps(t *testing.T) {
	ctx := context.Background()
	table := widgets(t)
	out, err := table.Insert(ctx, []*widget{{Name: "alpha"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.NotEqual(t, uuid.Nil, out[0].ID)
	assert.False(t, out[0].CreatedAt.IsZero())

	stored, err := table.SelectSingle(ctx, Where("id", out[0].ID))
	require.NoError(t, err)
	assert.Equal(t, "alpha", stored.Name)
	assert.False(t, stored.CreatedAt.IsZero())

	_, err = table.Insert(ctx, []*widget{{WidgetBase: WidgetBase{ID: out[0].ID}, Name: "dup"}})
	assert.Error(t, err, "ids are unique")

	empty, err := table.Insert(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGormTable_UpdateKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	table, _ := seedWidgets(t)
	row, err := table.SelectSingle(ctx, Where("name", "alpha"))
	require.NoError(t, err)
	created := row.CreatedAt

	_, err = table.Update(ctx, row.ID, &widget{Name: "alpha", Count: 10})
	require.NoError(t, err)

	stored, err := table.SelectSingle(ctx, Where("id", row.ID))
	require.NoError(t, err)
	assert.Equal(t, 10, stored.Count)
	assert.Equal(t, uuid.Nil, stored.SiteID, "update replaces every column")
	assert.True(t, created.Equal(stored.CreatedAt))

	_, err = table.Update(ctx, uuid.New(), &widget{})
	assert.ErrorIs(t, err, syncerr.ErrNotFound)
}

func TestGormTable_Patch(t *testing.T) {
	ctx := context.Background()
	table, site := seedWidgets(t)
	row, err := table.SelectSingle(ctx, Where("name", "bravo"))
	require.NoError(t, err)

	seen := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	patched, err := table.Patch(ctx, row.ID, Patch{"seen_at": seen, "kind": "z", "display_label": "B"})
	require.NoError(t, err)
	require.NotNil(t, patched.SeenAt)
	assert.True(t, seen.Equal(*patched.SeenAt))
	assert.Equal(t, widgetKind("z"), patched.Kind)
	assert.Equal(t, "B", patched.Label)
	assert.Equal(t, site, patched.SiteID)
	assert.Equal(t, 1, patched.Count, "untouched columns survive")

	_, err = table.Patch(ctx, uuid.New(), Patch{"kind": "z"})
	assert.ErrorIs(t, err, syncerr.ErrNotFound)
}

func TestGormTable_Delete(t *testing.T) {
	ctx := context.Background()
	table, site := seedWidgets(t)
	rows, err := table.Select(ctx, Where("site_id", site).And("kind", "a"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, table.Delete(ctx, []uuid.UUID{rows[0].ID, rows[1].ID, uuid.New()}))
	require.NoError(t, table.Delete(ctx, nil))

	left, err := table.Select(ctx, Query{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bravo", "delta"}, names(left))
}

func TestGormTable_NullFilter(t *testing.T) {
	ctx := context.Background()
	table := widgets(t)
	seen := time.Now()
	_, err := table.Insert(ctx, []*widget{{Name: "never"}, {Name: "seen", SeenAt: &seen}})
	require.NoError(t, err)

	rows, err := table.Select(ctx, Where("seen_at", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"never"}, names(rows))
}

func TestGormTable_AuthorizationContext(t *testing.T) {
	ctx := WithAuthorization(context.Background(), "Bearer abc")
	table, site := seedWidgets(t)

	rows, err := table.Select(ctx, Where("site_id", site))
	require.NoError(t, err, "the header is only published on postgres")
	assert.Len(t, rows, 3)
}

func TestGormTable_CancelledContext(t *testing.T) {
	table, _ := seedWidgets(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := table.Select(ctx, Query{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_RPC(t *testing.T) {
	store := NewMemoryStore()
	store.Register("claim", func(ctx context.Context, dest any, args ...any) error {
		out := dest.(*[]string)
		*out = append(*out, Authorization(ctx))
		return nil
	})

	var got []string
	ctx := WithAuthorization(context.Background(), "Bearer abc")
	require.NoError(t, store.RPC(ctx, "claim", &got, 5))
	assert.Equal(t, []string{"Bearer abc"}, got)

	err := store.RPC(ctx, "nope", &got)
	assert.Error(t, err)
}
