// Package transform maps vendor records to the normalized source rows.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Mythidas/MSPByte-sub000/pkg/concurrency"
	"github.com/Mythidas/MSPByte-sub000/pkg/provider/graph"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Tenant is the tenant-wide state identity classification depends on.
type Tenant struct {
	Scope            model.Scope
	SecurityDefaults bool
	Policies         []graph.ConditionalAccessPolicy
	Skus             []graph.SubscribedSku

	// Previous holds the stored identities keyed by external id. An identity
	// whose enrichment fails keeps the memberships and classification stored
	// here instead of being reclassified without them.
	Previous map[string]*model.SourceIdentity
}

// PoolOptions bounds the per-user enrichment fan-out.
type PoolOptions struct {
	Workers       int
	RatePerSecond float64
	Burst         int
}

type enrichment struct {
	methods     []graph.AuthenticationMethod
	memberships []graph.DirectoryObject
	err         error
}

type membershipRef struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
}

type identityMetadata struct {
	UserPrincipalName string          `json:"user_principal_name"`
	UserType          string          `json:"user_type"`
	CreatedAt         *time.Time      `json:"created_at,omitempty"`
	Groups            []membershipRef `json:"groups"`
	Roles             []membershipRef `json:"roles"`
	EnforcingPolicies []string        `json:"enforcing_policies"`
	EnrichmentError   string          `json:"enrichment_error,omitempty"`
}

// Identities enriches every user with its authentication methods and
// transitive memberships and classifies MFA enforcement. A failed lookup for
// one user is logged and recorded on that identity; the user is still
// returned with its previously stored enrichment, or classified only against
// policies that exclude no groups or roles when nothing is stored. Only
// cancellation of ctx fails the batch.
func Identities(ctx context.Context, logger *zap.Logger, api graph.API, tenant Tenant, users []graph.User, opts PoolOptions) ([]*model.SourceIdentity, error) {
	pool := concurrency.NewWorkPool(opts.Workers).WithRateLimit(opts.RatePerSecond, opts.Burst)
	for _, u := range users {
		userID := u.ID
		pool.AddJob(func(ctx context.Context) (interface{}, error) {
			methods, err := api.ListAuthenticationMethods(ctx, userID)
			if err != nil {
				return nil, err
			}
			memberships, err := api.ListTransitiveMemberships(ctx, userID)
			if err != nil {
				return nil, err
			}
			return enrichment{methods: methods, memberships: memberships}, nil
		})
	}
	results := pool.Run(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("enrich identities: %w", err)
	}

	skuNames := map[string]string{}
	for _, s := range tenant.Skus {
		skuNames[s.SkuID] = s.SkuPartNumber
	}

	out := make([]*model.SourceIdentity, 0, len(users))
	for i, u := range users {
		var e enrichment
		if results[i].Error != nil {
			e.err = results[i].Error
			logger.Warn("failed to enrich identity",
				zap.String("source_id", tenant.Scope.SourceID),
				zap.String("user_id", u.ID),
				zap.Error(e.err),
			)
		} else {
			e = results[i].Value.(enrichment)
		}
		if e.err != nil {
			if prev, ok := tenant.Previous[u.ID]; ok {
				out = append(out, carried(tenant, u, e.err, prev, skuNames))
				continue
			}
		}
		out = append(out, identity(tenant, u, e, skuNames))
	}
	return out, nil
}

// carried rebuilds an identity from the fresh user record while keeping the
// enrichment and classification of its stored row.
func carried(tenant Tenant, u graph.User, cause error, prev *model.SourceIdentity, skuNames map[string]string) *model.SourceIdentity {
	row := identity(tenant, u, enrichment{err: cause}, skuNames)

	var stored identityMetadata
	if len(prev.Metadata) > 0 {
		_ = json.Unmarshal(prev.Metadata, &stored)
	}
	meta := identityMetadata{
		UserPrincipalName: u.UserPrincipalName,
		UserType:          u.UserType,
		CreatedAt:         u.CreatedAt,
		Groups:            nonNil(stored.Groups),
		Roles:             nonNil(stored.Roles),
		EnforcingPolicies: stored.EnforcingPolicies,
		EnrichmentError:   cause.Error(),
	}
	if meta.EnforcingPolicies == nil {
		meta.EnforcingPolicies = []string{}
	}

	row.MFAEnforced = prev.MFAEnforced
	row.EnforcementType = prev.EnforcementType
	row.MFAMethods = append(model.StringArray{}, prev.MFAMethods...)
	row.GroupIDs = append(model.StringArray{}, prev.GroupIDs...)
	row.RoleIDs = append(model.StringArray{}, prev.RoleIDs...)
	row.Metadata = marshal(meta)
	return row
}

func nonNil(refs []membershipRef) []membershipRef {
	if refs == nil {
		return []membershipRef{}
	}
	return refs
}

// membershipIndependent drops policies whose exclusions name groups or roles,
// since they cannot be evaluated without the user's memberships.
func membershipIndependent(policies []graph.ConditionalAccessPolicy) []graph.ConditionalAccessPolicy {
	out := make([]graph.ConditionalAccessPolicy, 0, len(policies))
	for _, p := range policies {
		if len(p.ExcludeGroups) == 0 && len(p.ExcludeRoles) == 0 {
			out = append(out, p)
		}
	}
	return out
}

func identity(tenant Tenant, u graph.User, e enrichment, skuNames map[string]string) *model.SourceIdentity {
	meta := identityMetadata{
		UserPrincipalName: u.UserPrincipalName,
		UserType:          u.UserType,
		Groups:            []membershipRef{},
		Roles:             []membershipRef{},
		EnforcingPolicies: []string{},
		CreatedAt:         u.CreatedAt,
	}
	if e.err != nil {
		meta.EnrichmentError = e.err.Error()
	}

	subject := Subject{UserID: u.ID, Guest: u.IsGuest()}
	groupIDs := []string{}
	roleIDs := []string{}
	for _, m := range e.memberships {
		switch m.ODataType {
		case graph.ODataTypeGroup:
			subject.Groups = append(subject.Groups, m.ID)
			groupIDs = append(groupIDs, m.ID)
			meta.Groups = append(meta.Groups, membershipRef{ID: m.ID, Name: m.DisplayName})
		case graph.ODataTypeDirectoryRole:
			subject.Roles = append(subject.Roles, m.RoleTemplateID)
			roleIDs = append(roleIDs, m.RoleTemplateID)
			meta.Roles = append(meta.Roles, membershipRef{ID: m.ID, Name: m.DisplayName, TemplateID: m.RoleTemplateID})
		}
	}
	sort.Strings(groupIDs)
	sort.Strings(roleIDs)

	candidates := tenant.Policies
	if e.err != nil {
		candidates = membershipIndependent(candidates)
	}
	enforced, enforcement, policies := Enforcement(tenant.SecurityDefaults, candidates, subject)
	if policies != nil {
		meta.EnforcingPolicies = policies
	}

	licenses := []string{}
	for _, id := range u.LicenseSkuIDs {
		if name, ok := skuNames[id]; ok && name != "" {
			licenses = append(licenses, name)
		} else {
			licenses = append(licenses, id)
		}
	}
	sort.Strings(licenses)

	identityType := model.IdentityTypeMember
	if subject.Guest {
		identityType = model.IdentityTypeGuest
	}
	email := u.Mail
	if email == "" {
		email = u.UserPrincipalName
	}

	return &model.SourceIdentity{
		Scope:           tenant.Scope,
		ExternalID:      u.ID,
		Email:           email,
		Name:            u.DisplayName,
		Type:            identityType,
		Enabled:         u.AccountEnabled,
		MFAEnforced:     enforced,
		EnforcementType: enforcement,
		MFAMethods:      NormalizeMethods(e.methods),
		RoleIDs:         roleIDs,
		GroupIDs:        groupIDs,
		LicenseSkus:     licenses,
		LastActivity:    u.LastSignIn,
		Metadata:        marshal(meta),
	}
}

func marshal(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(b)
}
