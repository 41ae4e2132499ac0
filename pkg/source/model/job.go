package model

import (
	"time"

	"github.com/google/uuid"
)

type SyncJobStatus string

const (
	SyncJobStatusPending    SyncJobStatus = "pending"
	SyncJobStatusInProgress SyncJobStatus = "in_progress"
	SyncJobStatusCompleted  SyncJobStatus = "completed"
	SyncJobStatusFailed     SyncJobStatus = "failed"
)

// SyncJob is one scheduled synchronization of a site against a source.
type SyncJob struct {
	Base
	TenantID    uuid.UUID     `gorm:"type:uuid" json:"tenant_id"`
	SourceID    string        `gorm:"not null;index" json:"source_id"`
	SiteID      uuid.UUID     `gorm:"type:uuid;not null" json:"site_id"`
	Status      SyncJobStatus `gorm:"not null;default:'pending';index" json:"status"`
	RetryCount  int           `gorm:"not null;default:0" json:"retry_count"`
	Error       string        `json:"error"`
	EstDuration int           `gorm:"not null;default:1" json:"est_duration"`
	ScheduledAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"scheduled_at"`
	StartedAt   *time.Time    `json:"started_at"`

	// column name matches the existing schema
	LastAttemptAt *time.Time `gorm:"column:last_attemt_at" json:"last_attemt_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

func (SyncJob) TableName() string {
	return "source_sync_jobs"
}
