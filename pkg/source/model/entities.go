package model

import (
	"time"

	"gorm.io/datatypes"
)

type IdentityType string

const (
	IdentityTypeMember IdentityType = "member"
	IdentityTypeGuest  IdentityType = "guest"
)

type EnforcementType string

const (
	EnforcementSecurityDefaults  EnforcementType = "security_defaults"
	EnforcementConditionalAccess EnforcementType = "conditional_access"
	EnforcementNone              EnforcementType = "none"
)

// SourceIdentity is a user or account mirrored from a source.
type SourceIdentity struct {
	Base
	Scope
	ExternalID      string          `gorm:"not null" json:"external_id"`
	Email           string          `json:"email"`
	Name            string          `json:"name"`
	Type            IdentityType    `json:"type"`
	Enabled         bool            `json:"enabled"`
	MFAEnforced     bool            `gorm:"column:mfa_enforced" json:"mfa_enforced"`
	EnforcementType EnforcementType `json:"enforcement_type"`
	MFAMethods      StringArray     `gorm:"column:mfa_methods" json:"mfa_methods"`
	RoleIDs         StringArray     `gorm:"column:role_ids" json:"role_ids"`
	GroupIDs        StringArray     `gorm:"column:group_ids" json:"group_ids"`
	LicenseSkus     StringArray     `gorm:"column:license_skus" json:"license_skus"`
	LastActivity    *time.Time      `json:"last_activity"`
	Metadata        datatypes.JSON  `gorm:"default:'{}'" json:"metadata"`
}

func (SourceIdentity) TableName() string {
	return "source_identities"
}

func (i *SourceIdentity) GetExternalID() string {
	return i.ExternalID
}

type PolicyStatus string

const (
	PolicyStatusEnabled    PolicyStatus = "enabled"
	PolicyStatusDisabled   PolicyStatus = "disabled"
	PolicyStatusReportOnly PolicyStatus = "report_only"
)

// SourcePolicy is a security or configuration policy mirrored from a source.
type SourcePolicy struct {
	Base
	Scope
	ExternalID string         `gorm:"not null" json:"external_id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Status     PolicyStatus   `json:"status"`
	Metadata   datatypes.JSON `gorm:"default:'{}'" json:"metadata"`
}

func (SourcePolicy) TableName() string {
	return "source_policies"
}

func (p *SourcePolicy) GetExternalID() string {
	return p.ExternalID
}

// SourceDevice is a managed endpoint mirrored from a source.
type SourceDevice struct {
	Base
	Scope
	ExternalID string         `gorm:"not null" json:"external_id"`
	Hostname   string         `json:"hostname"`
	OS         string         `gorm:"column:os" json:"os"`
	Serial     string         `json:"serial"`
	Metadata   datatypes.JSON `gorm:"default:'{}'" json:"metadata"`
}

func (SourceDevice) TableName() string {
	return "source_devices"
}

func (d *SourceDevice) GetExternalID() string {
	return d.ExternalID
}

// SourceMetric is a derived rollup counter. Metrics are replaced wholesale
// on every sync and are read by (source_id, site_id, name).
type SourceMetric struct {
	Base
	Scope
	Name       string         `gorm:"not null" json:"name"`
	Metric     float64        `json:"metric"`
	Total      *float64       `json:"total"`
	Unit       string         `json:"unit"`
	Route      string         `json:"route"`
	Filters    datatypes.JSON `gorm:"default:'{}'" json:"filters"`
	Thresholds datatypes.JSON `gorm:"default:'{}'" json:"thresholds"`
	IsHistoric bool           `json:"is_historic"`
}

func (SourceMetric) TableName() string {
	return "source_metrics"
}
