package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Mythidas/MSPByte-sub000/pkg/provider/sophos"
	"github.com/Mythidas/MSPByte-sub000/pkg/rowstore"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/reconcile"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/rollup"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/transform"
	"github.com/Mythidas/MSPByte-sub000/pkg/syncerr"
	"github.com/Mythidas/MSPByte-sub000/pkg/tokencache"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	sophosTokenScope   = "partner"
	metadataAPIHost    = "api_host"
	metadataDataRegion = "data_region"
)

// SyncSophosPartner mirrors the endpoints of the site's Sophos Central
// tenant through the partner API.
func (o *Orchestrator) SyncSophosPartner(ctx context.Context, scope model.Scope) error {
	ctx, span := o.tracer.Start(ctx, "sync sophos-partner")
	defer span.End()
	spanScope(ctx, scope)

	start := time.Now()
	logger := o.logger.With(zap.String("source_id", scope.SourceID), zap.String("site_id", scope.SiteID.String()))

	var creds sophos.Credentials
	t, err := o.resolve(ctx, scope, &creds)
	if err != nil {
		return err
	}
	rowScope := mappingScope(t.mapping)

	var token string
	var partner sophos.WhoAmI
	err = o.stage(ctx, "authenticate", func(ctx context.Context) error {
		tok, err := o.deps.Tokens.GetOrRefresh(ctx,
			tokencache.Key{ID: t.integration.ID.String(), Scope: sophosTokenScope},
			func(ctx context.Context) (tokencache.Token, error) {
				return o.deps.Sophos.Token(ctx, creds)
			})
		if err != nil {
			return err
		}
		token = tok.Value
		partner, err = o.deps.Sophos.WhoAmI(ctx, token)
		return err
	})
	if err != nil {
		return err
	}

	var tenant sophos.Tenant
	err = o.stage(ctx, "resolve tenant", func(ctx context.Context) error {
		var err error
		tenant, err = o.sophosTenant(ctx, token, partner, t.mapping)
		return err
	})
	if err != nil {
		return err
	}

	var endpoints []sophos.Endpoint
	err = o.stage(ctx, "fetch", func(ctx context.Context) error {
		var err error
		endpoints, err = o.deps.Sophos.ListEndpoints(ctx, token, tenant)
		return err
	})
	if err != nil {
		return err
	}
	logger.Info("fetched tenant", zap.String("tenant_id", tenant.ID), zap.Int("endpoints", len(endpoints)))

	devices := transform.Devices(rowScope, endpoints)

	var result reconcile.Result[*model.SourceDevice]
	err = o.stage(ctx, "reconcile", func(ctx context.Context) error {
		var err error
		result, err = reconcile.Reconcile(ctx, logger, o.deps.Tables.Devices, rowScope, devices)
		return err
	})
	if err != nil {
		return err
	}

	err = o.stage(ctx, "recompute metrics", func(ctx context.Context) error {
		_, err := rollup.Replace(ctx, logger, o.deps.Tables.Metrics, rowScope, rollup.Sophos(result.Current()))
		return err
	})
	if err != nil {
		return err
	}

	if err := o.markSynced(ctx, t.integration); err != nil {
		return err
	}
	logger.Info("sync completed", zap.Duration("took", time.Since(start)))
	return nil
}

// sophosTenant reads the tenant's regional api host from the mapping and
// fills it in from the partner API on first use. A mapping without an
// external id is matched to a partner tenant by name.
func (o *Orchestrator) sophosTenant(ctx context.Context, token string, partner sophos.WhoAmI, mapping *model.SourceTenant) (sophos.Tenant, error) {
	tenant := sophos.Tenant{
		ID:         mapping.ExternalID,
		Name:       mapping.ExternalName,
		APIHost:    mapping.MetadataString(metadataAPIHost),
		DataRegion: mapping.MetadataString(metadataDataRegion),
	}
	if tenant.ID != "" && tenant.APIHost != "" {
		return tenant, nil
	}

	var fetched sophos.Tenant
	var err error
	if tenant.ID == "" {
		fetched, err = o.sophosTenantByName(ctx, token, partner, mapping.ExternalName)
	} else {
		fetched, err = o.deps.Sophos.GetTenant(ctx, token, partner, mapping.ExternalID)
	}
	if err != nil {
		return sophos.Tenant{}, err
	}

	metadata := mapping.MetadataMap()
	metadata[metadataAPIHost] = fetched.APIHost
	metadata[metadataDataRegion] = fetched.DataRegion
	raw, err := json.Marshal(metadata)
	if err != nil {
		return sophos.Tenant{}, err
	}
	patch := rowstore.Patch{"metadata": datatypes.JSON(raw)}
	if tenant.ID == "" {
		patch["external_id"] = fetched.ID
	}
	if _, err := o.deps.Tables.Tenants.Patch(ctx, mapping.ID, patch); err != nil {
		o.logger.Warn("failed to store sophos tenant on mapping",
			zap.String("mapping_id", mapping.ID.String()), zap.Error(err))
	}
	return fetched, nil
}

func (o *Orchestrator) sophosTenantByName(ctx context.Context, token string, partner sophos.WhoAmI, name string) (sophos.Tenant, error) {
	if name == "" {
		return sophos.Tenant{}, fmt.Errorf("%w: mapping has neither an external id nor a name", syncerr.ErrMappingNotFound)
	}
	tenants, err := o.deps.Sophos.ListTenants(ctx, token, partner)
	if err != nil {
		return sophos.Tenant{}, err
	}
	for _, t := range tenants {
		if strings.EqualFold(strings.TrimSpace(t.Name), strings.TrimSpace(name)) {
			return t, nil
		}
	}
	return sophos.Tenant{}, fmt.Errorf("%w: no sophos tenant named %q", syncerr.ErrMappingNotFound, name)
}
