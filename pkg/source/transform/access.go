package transform

import (
	"strings"

	"github.com/Mythidas/MSPByte-sub000/pkg/provider/graph"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
)

const (
	includeAll       = "All"
	includeNone      = "None"
	guestsOrExternal = "GuestsOrExternalUsers"
	grantMFA         = "mfa"
	stateEnabled     = "enabled"
)

// Subject is the directory view of a user needed to scope policies.
type Subject struct {
	UserID string
	Guest  bool
	Groups []string
	// Roles holds directory role template ids.
	Roles []string
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range b {
		if contains(a, x) {
			return true
		}
	}
	return false
}

// Applies reports whether an enabled policy targets the subject. Exclusions
// are evaluated first and always win. A policy with no user, group or role
// inclusions applies to everyone.
func Applies(p graph.ConditionalAccessPolicy, s Subject) bool {
	if p.State != stateEnabled {
		return false
	}

	if contains(p.ExcludeUsers, s.UserID) ||
		(s.Guest && contains(p.ExcludeUsers, guestsOrExternal)) ||
		intersects(p.ExcludeGroups, s.Groups) ||
		intersects(p.ExcludeRoles, s.Roles) {
		return false
	}

	if contains(p.IncludeUsers, includeNone) {
		return false
	}
	if len(p.IncludeUsers) == 0 && len(p.IncludeGroups) == 0 && len(p.IncludeRoles) == 0 {
		return true
	}
	return contains(p.IncludeUsers, includeAll) ||
		contains(p.IncludeUsers, s.UserID) ||
		(s.Guest && contains(p.IncludeUsers, guestsOrExternal)) ||
		intersects(p.IncludeGroups, s.Groups) ||
		intersects(p.IncludeRoles, s.Roles)
}

// RequiresMFA reports whether the policy grants access only with MFA.
func RequiresMFA(p graph.ConditionalAccessPolicy) bool {
	return contains(p.BuiltInControls, grantMFA)
}

// Enforcement classifies how MFA is enforced for the subject and returns the
// ids of the policies enforcing it.
func Enforcement(securityDefaults bool, policies []graph.ConditionalAccessPolicy, s Subject) (bool, model.EnforcementType, []string) {
	var enforcing []string
	for _, p := range policies {
		if RequiresMFA(p) && Applies(p, s) {
			enforcing = append(enforcing, p.ID)
		}
	}
	switch {
	case securityDefaults:
		return true, model.EnforcementSecurityDefaults, enforcing
	case len(enforcing) > 0:
		return true, model.EnforcementConditionalAccess, enforcing
	}
	return false, model.EnforcementNone, nil
}
