package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/Mythidas/MSPByte-sub000/pkg/provider/graph"
	"github.com/Mythidas/MSPByte-sub000/pkg/rowstore"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/reconcile"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/rollup"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/transform"
	"github.com/Mythidas/MSPByte-sub000/pkg/tokencache"
	"go.uber.org/zap"
)

type microsoft365Fetch struct {
	users            []graph.User
	policies         []graph.ConditionalAccessPolicy
	securityDefaults bool
	skus             []graph.SubscribedSku
}

// SyncMicrosoft365 mirrors the identities and conditional access policies
// of the site's Entra ID tenant.
func (o *Orchestrator) SyncMicrosoft365(ctx context.Context, scope model.Scope) error {
	ctx, span := o.tracer.Start(ctx, "sync microsoft-365")
	defer span.End()
	spanScope(ctx, scope)

	start := time.Now()
	logger := o.logger.With(zap.String("source_id", scope.SourceID), zap.String("site_id", scope.SiteID.String()))

	var creds graph.Credentials
	t, err := o.resolve(ctx, scope, &creds)
	if err != nil {
		return err
	}
	rowScope := mappingScope(t.mapping)

	// the mapping names the customer tenant; the integration may pin one
	authority := t.mapping.ExternalID
	if authority == "" {
		authority = creds.TenantID
	}

	var api graph.API
	err = o.stage(ctx, "authenticate", func(ctx context.Context) error {
		inner, err := o.deps.GraphCredential(authority, creds)
		if err != nil {
			return err
		}
		credential := graph.NewCachedCredential(o.deps.Tokens,
			tokencache.Key{ID: t.integration.ID.String(), Scope: authority}, inner)
		api, err = o.deps.Graph(ctx, credential)
		return err
	})
	if err != nil {
		return err
	}

	var fetched microsoft365Fetch
	err = o.stage(ctx, "fetch", func(ctx context.Context) error {
		var err error
		if fetched.securityDefaults, err = api.SecurityDefaultsEnabled(ctx); err != nil {
			return err
		}
		if fetched.policies, err = api.ListConditionalAccessPolicies(ctx); err != nil {
			return err
		}
		if fetched.skus, err = api.ListSubscribedSkus(ctx); err != nil {
			return err
		}
		fetched.users, err = api.ListUsers(ctx)
		return err
	})
	if err != nil {
		return err
	}
	logger.Info("fetched tenant",
		zap.Int("users", len(fetched.users)),
		zap.Int("policies", len(fetched.policies)),
		zap.Bool("security_defaults", fetched.securityDefaults),
	)

	var identities []*model.SourceIdentity
	var policies []*model.SourcePolicy
	err = o.stage(ctx, "transform", func(ctx context.Context) error {
		stored, err := o.deps.Tables.Identities.Select(ctx,
			rowstore.Where("source_id", rowScope.SourceID).And("site_id", rowScope.SiteID))
		if err != nil {
			return fmt.Errorf("load stored identities: %w", err)
		}
		previous := make(map[string]*model.SourceIdentity, len(stored))
		for _, row := range stored {
			previous[row.ExternalID] = row
		}
		identities, err = transform.Identities(ctx, logger, api, transform.Tenant{
			Scope:            rowScope,
			SecurityDefaults: fetched.securityDefaults,
			Policies:         fetched.policies,
			Skus:             fetched.skus,
			Previous:         previous,
		}, fetched.users, o.pool)
		policies = transform.Policies(rowScope, fetched.policies)
		return err
	})
	if err != nil {
		return err
	}

	var identityResult reconcile.Result[*model.SourceIdentity]
	var policyResult reconcile.Result[*model.SourcePolicy]
	err = o.stage(ctx, "reconcile", func(ctx context.Context) error {
		var err error
		identityResult, err = reconcile.Reconcile(ctx, logger, o.deps.Tables.Identities, rowScope, identities)
		if err != nil {
			return err
		}
		policyResult, err = reconcile.Reconcile(ctx, logger, o.deps.Tables.Policies, rowScope, policies)
		return err
	})
	if err != nil {
		return err
	}

	err = o.stage(ctx, "recompute metrics", func(ctx context.Context) error {
		metrics := rollup.Microsoft365(o.now(), identityResult.Current(), policyResult.Current(), fetched.skus)
		_, err := rollup.Replace(ctx, logger, o.deps.Tables.Metrics, rowScope, metrics)
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
