package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base holds the generated identity and bookkeeping timestamps shared by
// every synced table.
type Base struct {
	ID        uuid.UUID `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) GetID() uuid.UUID {
	return b.ID
}

func (b *Base) SetID(id uuid.UUID) {
	b.ID = id
}

func (b *Base) GetCreatedAt() time.Time {
	return b.CreatedAt
}

func (b *Base) SetCreatedAt(t time.Time) {
	b.CreatedAt = t
}

func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Scope binds a row to one site's view of one source.
type Scope struct {
	TenantID uuid.UUID `gorm:"type:uuid;index" json:"tenant_id"`
	SiteID   uuid.UUID `gorm:"type:uuid;index" json:"site_id"`
	SourceID string    `gorm:"index" json:"source_id"`
}

func (s *Scope) GetScope() Scope {
	return *s
}

func (s *Scope) SetScope(scope Scope) {
	*s = scope
}
