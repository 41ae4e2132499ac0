// Package db owns the sync schema and hands out typed row store tables.
package db

import (
	"fmt"

	"github.com/Mythidas/MSPByte-sub000/pkg/rowstore"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimProcedure is the server-side function the job runner calls to claim
// a batch of due jobs.
const ClaimProcedure = "claim_sync_jobs"

const claimFunction = `
CREATE OR REPLACE FUNCTION claim_sync_jobs(max_est_duration integer)
RETURNS SETOF source_sync_jobs
LANGUAGE plpgsql
AS $$
DECLARE
	budget integer := 0;
	job source_sync_jobs%ROWTYPE;
BEGIN
	FOR job IN
		SELECT * FROM source_sync_jobs
		WHERE status = 'pending' AND scheduled_at <= now()
		ORDER BY scheduled_at, created_at
		FOR UPDATE SKIP LOCKED
	LOOP
		EXIT WHEN budget > 0 AND budget + job.est_duration > max_est_duration;
		budget := budget + job.est_duration;

		UPDATE source_sync_jobs
		SET status = 'in_progress', started_at = now(), updated_at = now()
		WHERE id = job.id
		RETURNING * INTO job;

		RETURN NEXT job;
	END LOOP;
	RETURN;
END;
$$;
`

// uniqueIndexes enforces one row per external id within a site-source pair.
var uniqueIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS source_identities_external_key ON source_identities (source_id, site_id, external_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS source_policies_external_key ON source_policies (source_id, site_id, external_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS source_devices_external_key ON source_devices (source_id, site_id, external_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS source_tenants_site_key ON source_tenants (source_id, site_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS source_integrations_tenant_key ON source_integrations (tenant_id, source_id)`,
}

type Database struct {
	orm    *gorm.DB
	logger *zap.Logger
}

func New(orm *gorm.DB, logger *zap.Logger) Database {
	return Database{orm: orm, logger: logger.Named("db")}
}

// Models lists every table the sync schema owns.
func Models() []any {
	return []any{
		&model.Source{},
		&model.SourceIntegration{},
		&model.SourceTenant{},
		&model.SourceIdentity{},
		&model.SourcePolicy{},
		&model.SourceDevice{},
		&model.SourceMetric{},
		&model.SyncJob{},
	}
}

// Migrate creates or alters every sync table. It runs on any gorm dialect.
func (db Database) Migrate() error {
	if err := db.orm.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Initialize migrates every table, installs the claim procedure and seeds
// the source catalog.
func (db Database) Initialize() error {
	if err := db.Migrate(); err != nil {
		return err
	}

	for _, stmt := range uniqueIndexes {
		if err := db.orm.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	if err := db.orm.Exec(claimFunction).Error; err != nil {
		return fmt.Errorf("create %s: %w", ClaimProcedure, err)
	}

	catalog := model.Catalog()
	err := db.orm.Clauses(clause.OnConflict{DoNothing: true}).Create(&catalog).Error
	if err != nil {
		return fmt.Errorf("seed sources: %w", err)
	}

	db.logger.Info("schema initialized", zap.Int("sources", len(catalog)))
	return nil
}

// Tables groups the typed tables the sync pipeline works with.
type Tables struct {
	Integrations rowstore.Table[*model.SourceIntegration]
	Tenants      rowstore.Table[*model.SourceTenant]
	Identities   rowstore.Table[*model.SourceIdentity]
	Policies     rowstore.Table[*model.SourcePolicy]
	Devices      rowstore.Table[*model.SourceDevice]
	Metrics      rowstore.Table[*model.SourceMetric]
	Jobs         rowstore.Table[*model.SyncJob]
}

func (db Database) Tables() Tables {
	return Tables{
		Integrations: rowstore.NewGormTable[*model.SourceIntegration](db.orm),
		Tenants:      rowstore.NewGormTable[*model.SourceTenant](db.orm),
		Identities:   rowstore.NewGormTable[*model.SourceIdentity](db.orm),
		Policies:     rowstore.NewGormTable[*model.SourcePolicy](db.orm),
		Devices:      rowstore.NewGormTable[*model.SourceDevice](db.orm),
		Metrics:      rowstore.NewGormTable[*model.SourceMetric](db.orm),
		Jobs:         rowstore.NewGormTable[*model.SyncJob](db.orm),
	}
}

func (db Database) Store() rowstore.Store {
	return rowstore.NewGormStore(db.orm)
}
