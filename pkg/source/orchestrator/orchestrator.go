// Package orchestrator drives one sync of a site against a source: resolve
// the mapping, authenticate, fetch, transform, reconcile, recompute metrics
// and stamp the integration.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Mythidas/MSPByte-sub000/pkg/provider/graph"
	"github.com/Mythidas/MSPByte-sub000/pkg/provider/sophos"
	"github.com/Mythidas/MSPByte-sub000/pkg/rowstore"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/db"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/transform"
	"github.com/Mythidas/MSPByte-sub000/pkg/syncerr"
	"github.com/Mythidas/MSPByte-sub000/pkg/tokencache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gopkg.in/go-playground/validator.v9"
)

const module = "orchestrator"

// SyncFunc runs one sync of the site and source named by scope.
type SyncFunc func(ctx context.Context, scope model.Scope) error

type GraphFactory func(ctx context.Context, credential azcore.TokenCredential) (graph.API, error)

type CredentialFactory func(authority string, creds graph.Credentials) (azcore.TokenCredential, error)

type Deps struct {
	Tables db.Tables
	Tokens *tokencache.Cache
	Sophos sophos.API

	// Graph and GraphCredential default to the msgraph client and an
	// azidentity client secret credential.
	Graph           GraphFactory
	GraphCredential CredentialFactory
}

type Orchestrator struct {
	logger   *zap.Logger
	deps     Deps
	pool     transform.PoolOptions
	validate *validator.Validate
	tracer   trace.Tracer
	now      func() time.Time
}

func New(logger *zap.Logger, deps Deps, pool transform.PoolOptions) *Orchestrator {
	logger = logger.Named(module)
	if deps.Graph == nil {
		deps.Graph = func(ctx context.Context, credential azcore.TokenCredential) (graph.API, error) {
			return graph.NewClient(logger, credential)
		}
	}
	if deps.GraphCredential == nil {
		deps.GraphCredential = graph.NewClientSecretCredential
	}
	return &Orchestrator{
		logger:   logger,
		deps:     deps,
		pool:     pool,
		validate: validator.New(),
		tracer:   otel.Tracer("github.com/Mythidas/MSPByte-sub000/pkg/source/orchestrator"),
		now:      time.Now,
	}
}

// Dispatch maps every supported source id to its pipeline.
func (o *Orchestrator) Dispatch() map[string]SyncFunc {
	return map[string]SyncFunc{
		model.SourceMicrosoft365:  o.SyncMicrosoft365,
		model.SourceSophosPartner: o.SyncSophosPartner,
	}
}

// Sync runs the pipeline registered for scope.SourceID.
func (o *Orchestrator) Sync(ctx context.Context, scope model.Scope) error {
	fn, ok := o.Dispatch()[scope.SourceID]
	if !ok {
		return syncerr.New(module, "dispatch "+scope.SourceID, syncerr.ErrUnsupportedSource)
	}

	start := o.now()
	err := fn(ctx, scope)
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	SyncDuration.WithLabelValues(scope.SourceID, status).Observe(o.now().Sub(start).Seconds())
	SyncsCount.WithLabelValues(scope.SourceID, status).Inc()
	return err
}

// stage runs fn inside a span and tags any error with the stage name.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return syncerr.New(module, name, err)
	}
	return nil
}

type target struct {
	mapping     *model.SourceTenant
	integration *model.SourceIntegration
}

func (o *Orchestrator) resolve(ctx context.Context, scope model.Scope, creds interface{}) (target, error) {
	var t target
	err := o.stage(ctx, "resolve mapping", func(ctx context.Context) error {
		mapping, err := o.deps.Tables.Tenants.SelectSingle(ctx,
			rowstore.Where("source_id", scope.SourceID).And("site_id", scope.SiteID))
		if errors.Is(err, syncerr.ErrNotFound) {
			return fmt.Errorf("site %s: %w", scope.SiteID, syncerr.ErrMappingNotFound)
		}
		if err != nil {
			return err
		}
		t.mapping = mapping
		return nil
	})
	if err != nil {
		return t, err
	}

	err = o.stage(ctx, "load integration", func(ctx context.Context) error {
		integration, err := o.deps.Tables.Integrations.SelectSingle(ctx,
			rowstore.Where("tenant_id", t.mapping.TenantID).And("source_id", scope.SourceID))
		if err != nil {
			return err
		}
		if integration.Status == model.IntegrationStatusInactive {
			return fmt.Errorf("integration %s is inactive", integration.ID)
		}
		if err := integration.DecodeConfig(creds); err != nil {
			return err
		}
		if err := o.validate.Struct(creds); err != nil {
			return fmt.Errorf("integration %s config: %w", integration.ID, err)
		}
		t.integration = integration
		return nil
	})
	return t, err
}

// mappingScope is the scope rows of the mapping are stored under.
func mappingScope(m *model.SourceTenant) model.Scope {
	return model.Scope{TenantID: m.TenantID, SiteID: m.SiteID, SourceID: m.SourceID}
}

func (o *Orchestrator) markSynced(ctx context.Context, integration *model.SourceIntegration) error {
	return o.stage(ctx, "mark synced", func(ctx context.Context) error {
		_, err := o.deps.Tables.Integrations.Patch(ctx, integration.ID, rowstore.Patch{
			"last_sync_at": o.now().UTC(),
		})
		return err
	})
}

func spanScope(ctx context.Context, scope model.Scope) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("source_id", scope.SourceID),
		attribute.String("site_id", scope.SiteID.String()),
	)
}
