package rollup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Mythidas/MSPByte-sub000/pkg/internal/sqlitetest"
	"github.com/Mythidas/MSPByte-sub000/pkg/provider/graph"
	"github.com/Mythidas/MSPByte-sub000/pkg/rowstore"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var scope = model.Scope{TenantID: uuid.New(), SiteID: uuid.New(), SourceID: model.SourceMicrosoft365}

func byName(metrics []*model.SourceMetric) map[string]*model.SourceMetric {
	out := map[string]*model.SourceMetric{}
	for _, m := range metrics {
		out[m.Name] = m
	}
	return out
}

func metricTable(t *testing.T, seed ...*model.SourceMetric) rowstore.Table[*model.SourceMetric] {
	table := rowstore.NewGormTable[*model.SourceMetric](sqlitetest.Open(t, &model.SourceMetric{}))
	_, err := table.Insert(context.Background(), seed)
	require.NoError(t, err)
	return table
}

func TestReplace_TotalIdentitiesTenToSeven(t *testing.T) {
	ctx := context.Background()
	table := metricTable(t,
		&model.SourceMetric{Scope: scope, Name: MetricTotalIdentities, Metric: 10})
	old, err := table.SelectSingle(ctx, rowstore.Where("name", MetricTotalIdentities))
	require.NoError(t, err)
	oldID := old.ID

	var identities []*model.SourceIdentity
	for i := 0; i < 7; i++ {
		identities = append(identities, &model.SourceIdentity{ExternalID: fmt.Sprint(i), Enabled: true})
	}
	_, err = Replace(ctx, zap.NewNop(), table, scope, Microsoft365(time.Now(), identities, nil, nil))
	require.NoError(t, err)

	rows, err := table.Select(ctx, rowstore.Where("site_id", scope.SiteID).And("name", MetricTotalIdentities))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(7), rows[0].Metric)
	assert.NotEqual(t, oldID, rows[0].ID)
}

func TestReplace_LeavesOtherSitesAlone(t *testing.T) {
	ctx := context.Background()
	other := model.Scope{TenantID: scope.TenantID, SiteID: uuid.New(), SourceID: scope.SourceID}
	table := metricTable(t,
		&model.SourceMetric{Scope: other, Name: MetricTotalIdentities, Metric: 3})

	_, err := Replace(ctx, zap.NewNop(), table, scope, Microsoft365(time.Now(), nil, nil, nil))
	require.NoError(t, err)

	rows, err := table.Select(ctx, rowstore.Where("site_id", other.SiteID))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

type failingDelete struct {
	rowstore.Table[*model.SourceMetric]
	inserted bool
}

func (f *failingDelete) Delete(context.Context, []uuid.UUID) error {
	return errors.New("statement timeout")
}

func (f *failingDelete) Insert(ctx context.Context, rows []*model.SourceMetric) ([]*model.SourceMetric, error) {
	f.inserted = true
	return f.Table.Insert(ctx, rows)
}

func TestReplace_DeleteFailureSkipsInsert(t *testing.T) {
	table := &failingDelete{Table: metricTable(t,
		&model.SourceMetric{Scope: scope, Name: MetricTotalIdentities, Metric: 10})}

	_, err := Replace(context.Background(), zap.NewNop(), table, scope, Microsoft365(time.Now(), nil, nil, nil))
	assert.ErrorContains(t, err, "statement timeout")
	assert.False(t, table.inserted)
}

func TestMicrosoft365(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)
	stale := now.Add(-90 * 24 * time.Hour)
	identities := []*model.SourceIdentity{
		{Type: model.IdentityTypeMember, Enabled: true, MFAEnforced: true, LastActivity: &recent},
		{Type: model.IdentityTypeMember, Enabled: true, MFAEnforced: false, LastActivity: &stale},
		{Type: model.IdentityTypeMember, Enabled: false},
		{Type: model.IdentityTypeGuest, Enabled: true, MFAEnforced: false},
	}
	policies := []*model.SourcePolicy{{Status: model.PolicyStatusEnabled}, {Status: model.PolicyStatusReportOnly}}
	skus := []graph.SubscribedSku{{Enabled: 10, Consumed: 7}, {Enabled: 5, Consumed: 5}}

	m := byName(Microsoft365(now, identities, policies, skus))
	require.Len(t, m, 7)
	assert.Equal(t, float64(4), m[MetricTotalIdentities].Metric)
	assert.Equal(t, float64(1), m[MetricMFANotEnforcedMembers].Metric)
	assert.Equal(t, float64(2), *m[MetricMFANotEnforcedMembers].Total)
	assert.Equal(t, float64(1), m[MetricMFANotEnforcedGuests].Metric)
	assert.Equal(t, float64(1), m[MetricDisabledAccounts].Metric)
	assert.Equal(t, float64(2), m[MetricInactiveAccounts].Metric)
	assert.Equal(t, float64(3), m[MetricUnusedLicenses].Metric)
	assert.Equal(t, float64(15), *m[MetricUnusedLicenses].Total)
	assert.Equal(t, float64(1), m[MetricConditionalAccess].Metric)
	assert.JSONEq(t, `{"warn":0.05,"critical":0.2}`, string(m[MetricMFANotEnforcedMembers].Thresholds))
}

func TestSophos(t *testing.T) {
	devices := []*model.SourceDevice{
		{Metadata: datatypes.JSON(`{"health":{"overall":"good"},"packages":{"protection":{"status":"assigned"}},"tamperProtectionEnabled":true,"mdrManaged":true}`)},
		{Metadata: datatypes.JSON(`{"health":{"overall":"bad"},"packages":{"protection":{"status":"unassigned"}},"tamperProtectionEnabled":false}`)},
		{Metadata: datatypes.JSON(`{}`)},
	}
	m := byName(Sophos(devices))
	require.Len(t, m, 5)
	assert.Equal(t, float64(3), m[MetricTotalDevices].Metric)
	assert.Equal(t, float64(2), m[MetricUnprotectedDevices].Metric)
	assert.Equal(t, float64(2), m[MetricUnhealthyDevices].Metric)
	assert.Equal(t, float64(1), m[MetricMDRManagedDevices].Metric)
	assert.Equal(t, float64(2), m[MetricTamperDisabled].Metric)
}
