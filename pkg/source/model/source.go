package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SourceMicrosoft365  = "microsoft-365"
	SourceSophosPartner = "sophos-partner"
	defaultConfigSchema = `{}`
)

// Source is an immutable catalog entry describing a vendor integration.
type Source struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	Description  string
	ConfigSchema datatypes.JSON `gorm:"default:'{}'"`
	CreatedAt    time.Time
}

func (Source) TableName() string {
	return "sources"
}

// Catalog is the set of sources the sync service knows how to run.
func Catalog() []Source {
	return []Source{
		{
			ID:           SourceMicrosoft365,
			Name:         "Microsoft 365",
			Description:  "Entra ID identities, conditional access policies and licenses through Microsoft Graph",
			ConfigSchema: datatypes.JSON(`{"client_id":"string","client_secret":"string","tenant_id":"string"}`),
		},
		{
			ID:           SourceSophosPartner,
			Name:         "Sophos Partner",
			Description:  "Sophos Central managed endpoints through the partner API",
			ConfigSchema: datatypes.JSON(`{"client_id":"string","client_secret":"string"}`),
		},
	}
}

type IntegrationStatus string

const (
	IntegrationStatusActive   IntegrationStatus = "active"
	IntegrationStatusInactive IntegrationStatus = "inactive"
)

// SourceIntegration is a tenant's connection to a source: credentials plus
// the cached bearer token.
type SourceIntegration struct {
	Base
	TenantID        uuid.UUID         `gorm:"type:uuid;not null" json:"tenant_id"`
	SourceID        string            `gorm:"not null" json:"source_id"`
	Config          datatypes.JSON    `gorm:"default:'{}'" json:"-"`
	Token           string            `json:"-"`
	TokenExpiration *time.Time        `json:"token_expiration"`
	TokenScope      string            `json:"-"`
	LastSyncAt      *time.Time        `json:"last_sync_at"`
	Status          IntegrationStatus `gorm:"not null;default:'active'" json:"status"`
}

func (SourceIntegration) TableName() string {
	return "source_integrations"
}

// DecodeConfig unmarshals the credential blob into v.
func (i *SourceIntegration) DecodeConfig(v any) error {
	raw := []byte(i.Config)
	if len(raw) == 0 {
		raw = []byte(defaultConfigSchema)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode integration %s config: %w", i.ID, err)
	}
	return nil
}

// SourceTenant maps one internal site to one external tenant of a source.
type SourceTenant struct {
	Base
	Scope
	ExternalID   string         `gorm:"not null" json:"external_id"`
	ExternalName string         `json:"external_name"`
	Metadata     datatypes.JSON `gorm:"default:'{}'" json:"metadata"`
}

func (SourceTenant) TableName() string {
	return "source_tenants"
}

// MetadataMap returns the metadata blob as a map; a malformed or empty blob
// yields an empty map.
func (t *SourceTenant) MetadataMap() map[string]any {
	m := map[string]any{}
	if len(t.Metadata) > 0 {
		_ = json.Unmarshal(t.Metadata, &m)
	}
	return m
}

func (t *SourceTenant) MetadataString(key string) string {
	v, _ := t.MetadataMap()[key].(string)
	return v
}
