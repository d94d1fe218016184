/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Migration represents an applied migration record stored in the database.
type Migration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at,notnull"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

// MigrationManager creates model tables and applies versioned migrations
// exactly once, recording them in schema_migrations.
type MigrationManager struct {
	db       *bun.DB
	registry *ModelRegistry
	logger   Logger
	extra    []MigrationItem
}

// NewMigrationManager constructs a MigrationManager for the models in registry.
func NewMigrationManager(db *bun.DB, registry *ModelRegistry, logger Logger) *MigrationManager {
	if registry == nil {
		registry = NewModelRegistry()
	}
	if logger == nil {
		logger = NopLogger{}
	}
	return &MigrationManager{db: db, registry: registry, logger: logger}
}

// Add appends a migration to run after the built-in ones.
func (mm *MigrationManager) Add(item MigrationItem) {
	mm.extra = append(mm.extra, item)
}

// RunMigrations creates missing model tables, then executes all pending
// migrations in ascending version order.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := mm.createMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	if err := mm.createModelTables(ctx, mm.db); err != nil {
		return err
	}

	migrations := mm.getAllMigrations()
	sort.SliceStable(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if err := mm.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}

	mm.logger.Debug("Database migrations completed", "models", len(mm.registry.Models()))
	return nil
}

// Applied returns the recorded migrations ordered by version.
func (mm *MigrationManager) Applied(ctx context.Context) ([]Migration, error) {
	var applied []Migration
	err := mm.db.NewSelect().Model(&applied).Order("version ASC").Scan(ctx)
	return applied, err
}

func (mm *MigrationManager) createMigrationTable(ctx context.Context) error {
	_, err := mm.db.NewCreateTable().
		Model((*Migration)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (mm *MigrationManager) getAllMigrations() []MigrationItem {
	migrations := []MigrationItem{
		{
			Version:     "001",
			Name:        "create_dual",
			Description: "Single-row dual view for dialects without one",
			Up:          mm.createDual,
		},
	}
	return append(migrations, mm.extra...)
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := migration.Up(ctx, tx); err != nil {
			return err
		}
		record := &Migration{
			Version:     migration.Version,
			Name:        migration.Name,
			AppliedAt:   time.Now(),
			Description: migration.Description,
		}
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return err
		}
		mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
		return nil
	})
}

func (mm *MigrationManager) createModelTables(ctx context.Context, db bun.IDB) error {
	for _, model := range mm.registry.Instances() {
		_, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, err)
		}
	}
	return nil
}

// createDual lets "select 1 from dual" run on every supported store.
func (mm *MigrationManager) createDual(ctx context.Context, db bun.IDB) error {
	var stmt string
	switch db.Dialect().Name() {
	case dialect.SQLite:
		stmt = "CREATE VIEW IF NOT EXISTS dual AS SELECT 'X' AS dummy"
	case dialect.PG:
		stmt = "CREATE OR REPLACE VIEW dual AS SELECT 'X'::varchar AS dummy"
	default:
		return nil
	}
	_, err := db.ExecContext(ctx, stmt)
	return err
}
