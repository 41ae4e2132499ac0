package rollup

import (
	"encoding/json"
	"time"

	"github.com/Mythidas/MSPByte-sub000/pkg/provider/graph"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"gorm.io/datatypes"
)

const (
	MetricTotalIdentities       = "Total Identities"
	MetricMFANotEnforcedMembers = "MFA Not Enforced (Members)"
	MetricMFANotEnforcedGuests  = "MFA Not Enforced (Guests)"
	MetricDisabledAccounts      = "Disabled Accounts"
	MetricInactiveAccounts      = "Inactive Accounts (60d)"
	MetricUnusedLicenses        = "Unused Licenses"
	MetricConditionalAccess     = "Conditional Access Policies"

	MetricTotalDevices       = "Total Devices"
	MetricUnprotectedDevices = "Unprotected Devices"
	MetricUnhealthyDevices   = "Unhealthy Devices"
	MetricMDRManagedDevices  = "MDR Managed Devices"
	MetricTamperDisabled     = "Tamper Protection Disabled"

	InactivityWindow = 60 * 24 * time.Hour
)

// thresholds colors a metric by the share of total it represents.
type thresholds struct {
	Warn     float64 `json:"warn"`
	Critical float64 `json:"critical"`
}

func jsonOf(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(b)
}

func total(v int) *float64 {
	f := float64(v)
	return &f
}

func metric(name string, value int, of *float64, unit, route string, filters map[string]any, limits *thresholds) *model.SourceMetric {
	m := &model.SourceMetric{
		Name:       name,
		Metric:     float64(value),
		Total:      of,
		Unit:       unit,
		Route:      route,
		Filters:    datatypes.JSON(`{}`),
		Thresholds: datatypes.JSON(`{}`),
	}
	if filters != nil {
		m.Filters = jsonOf(filters)
	}
	if limits != nil {
		m.Thresholds = jsonOf(limits)
	}
	return m
}

// Microsoft365 builds the identity, policy and license rollups of a tenant.
func Microsoft365(now time.Time, identities []*model.SourceIdentity, policies []*model.SourcePolicy, skus []graph.SubscribedSku) []*model.SourceMetric {
	const route = "/sources/microsoft-365"
	var members, guests, membersNoMFA, guestsNoMFA, disabled, inactive int
	cutoff := now.Add(-InactivityWindow)
	for _, i := range identities {
		if !i.Enabled {
			disabled++
			continue
		}
		if i.Type == model.IdentityTypeGuest {
			guests++
			if !i.MFAEnforced {
				guestsNoMFA++
			}
		} else {
			members++
			if !i.MFAEnforced {
				membersNoMFA++
			}
		}
		if i.LastActivity == nil || i.LastActivity.Before(cutoff) {
			inactive++
		}
	}

	var prepaid, consumed int
	for _, s := range skus {
		prepaid += s.Enabled
		consumed += s.Consumed
	}
	unused := prepaid - consumed
	if unused < 0 {
		unused = 0
	}

	var enabledPolicies int
	for _, p := range policies {
		if p.Status == model.PolicyStatusEnabled {
			enabledPolicies++
		}
	}

	return []*model.SourceMetric{
		metric(MetricTotalIdentities, len(identities), nil, "identities", route+"/identities", nil, nil),
		metric(MetricMFANotEnforcedMembers, membersNoMFA, total(members), "identities", route+"/identities",
			map[string]any{"type": "member", "enabled": true, "mfa_enforced": false}, &thresholds{Warn: 0.05, Critical: 0.2}),
		metric(MetricMFANotEnforcedGuests, guestsNoMFA, total(guests), "identities", route+"/identities",
			map[string]any{"type": "guest", "enabled": true, "mfa_enforced": false}, &thresholds{Warn: 0.1, Critical: 0.3}),
		metric(MetricDisabledAccounts, disabled, total(len(identities)), "identities", route+"/identities",
			map[string]any{"enabled": false}, nil),
		metric(MetricInactiveAccounts, inactive, total(members+guests), "identities", route+"/identities",
			map[string]any{"enabled": true, "inactive_days": 60}, &thresholds{Warn: 0.1, Critical: 0.25}),
		metric(MetricUnusedLicenses, unused, total(prepaid), "licenses", route+"/licenses", nil, nil),
		metric(MetricConditionalAccess, enabledPolicies, total(len(policies)), "policies", route+"/policies",
			map[string]any{"status": "enabled"}, nil),
	}
}

// Sophos builds the endpoint protection rollups of a tenant. Devices carry
// the Sophos endpoint document in their metadata.
func Sophos(devices []*model.SourceDevice) []*model.SourceMetric {
	const route = "/sources/sophos-partner"
	var unprotected, unhealthy, mdr, tamperOff int
	for _, d := range devices {
		var doc struct {
			Health struct {
				Overall string `json:"overall"`
			} `json:"health"`
			Packages struct {
				Protection struct {
					Status string `json:"status"`
				} `json:"protection"`
			} `json:"packages"`
			MDRManaged              bool  `json:"mdrManaged"`
			TamperProtectionEnabled *bool `json:"tamperProtectionEnabled"`
		}
		_ = json.Unmarshal(d.Metadata, &doc)

		if doc.Packages.Protection.Status != "assigned" {
			unprotected++
		}
		if doc.Health.Overall != "good" {
			unhealthy++
		}
		if doc.MDRManaged {
			mdr++
		}
		if doc.TamperProtectionEnabled == nil || !*doc.TamperProtectionEnabled {
			tamperOff++
		}
	}

	all := total(len(devices))
	return []*model.SourceMetric{
		metric(MetricTotalDevices, len(devices), nil, "devices", route+"/devices", nil, nil),
		metric(MetricUnprotectedDevices, unprotected, all, "devices", route+"/devices",
			map[string]any{"protection_status": "unassigned"}, &thresholds{Warn: 0.01, Critical: 0.05}),
		metric(MetricUnhealthyDevices, unhealthy, all, "devices", route+"/devices",
			map[string]any{"health": "not_good"}, &thresholds{Warn: 0.05, Critical: 0.15}),
		metric(MetricMDRManagedDevices, mdr, all, "devices", route+"/devices",
			map[string]any{"mdr_managed": true}, nil),
		metric(MetricTamperDisabled, tamperOff, all, "devices", route+"/devices",
			map[string]any{"tamper_protection": false}, &thresholds{Warn: 0.01, Critical: 0.1}),
	}
}
