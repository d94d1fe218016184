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
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/userstore/model"
)

// Manager owns one connection pool to the store. Both the session and the
// persistence APIs are built on top of it. A Manager is safe for concurrent
// use.
type Manager struct {
	config     ConnectionConfig
	schema     SchemaConfig
	db         *bun.DB
	sqlDB      *sql.DB
	logger     Logger
	registry   *ModelRegistry
	migrations []MigrationItem
	showSQLOut io.Writer
	pinned     *sql.Conn

	mu     sync.RWMutex
	closed bool
}

// Option configures a Manager before it connects.
type Option func(*Manager)

func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithModels registers models whose tables are created on migration, in the
// given order, after the user store's own models. Models already registered
// are skipped.
func WithModels(models ...interface{}) Option {
	return func(m *Manager) {
		m.registerModels(models...)
	}
}

func (m *Manager) registerModels(models ...interface{}) {
	base := len(m.registry.Models())
	for _, instance := range models {
		if m.registry.Contains(instance) {
			continue
		}
		m.registry.Register(NewModelAdapter(instance, base))
		base++
	}
}

func WithMigrations(items ...MigrationItem) Option {
	return func(m *Manager) {
		m.migrations = append(m.migrations, items...)
	}
}

// WithShowSQLWriter sets where show_sql prints statements (stdout by default).
func WithShowSQLWriter(w io.Writer) Option {
	return func(m *Manager) {
		m.showSQLOut = w
	}
}

// Open connects to the store described by cfg, verifies the connection and,
// when schema.auto_migrate is set, creates the schema: the users table plus
// any WithModels tables. The caller must Close the returned Manager.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewError(ErrConnection, "database.Open", err)
	}

	m := &Manager{
		config:     cfg.Connection,
		schema:     cfg.Schema,
		logger:     GetLogger(),
		registry:   NewModelRegistry(),
		showSQLOut: os.Stdout,
	}
	m.registerModels(model.Models()...)
	for _, opt := range opts {
		opt(m)
	}

	if err := m.connect(ctx); err != nil {
		return nil, NewError(ErrConnection, "database.Open", err)
	}

	if m.schema.AutoMigrate {
		if err := m.Migrations().RunMigrations(ctx); err != nil {
			_ = m.Close()
			return nil, StoreError("database.Migrate", err)
		}
	}
	return m, nil
}

func (m *Manager) connect(ctx context.Context) error {
	if m.config.ConnectTimeout <= 0 {
		m.config.ConnectTimeout = 30 * time.Second
	}

	sqlDB, err := sql.Open(m.config.driverName(), m.config.dataSourceName())
	if err != nil {
		return err
	}
	m.sqlDB = sqlDB
	m.db = bun.NewDB(sqlDB, m.newDialect())
	m.configureConnectionPool()
	m.installHooks()

	ctxTimeout, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()

	if err := m.db.PingContext(ctxTimeout); err != nil {
		_ = m.db.Close()
		return fmt.Errorf("database connection test failed: %w", err)
	}

	if m.config.sharesMemory() {
		// A shared in-memory database is dropped with its last connection.
		m.pinned, err = m.sqlDB.Conn(ctxTimeout)
		if err != nil {
			_ = m.db.Close()
			return fmt.Errorf("database connection test failed: %w", err)
		}
	}

	m.logger.Info("Database connected successfully",
		"type", m.config.Type,
		"host", m.config.Host,
		"in_memory", m.config.isInMemory(),
	)
	return nil
}

func (m *Manager) newDialect() schema.Dialect {
	switch m.config.Type {
	case TypePostgres:
		return pgdialect.New()
	case TypeMySQL:
		return mysqldialect.New()
	default:
		return sqlitedialect.New()
	}
}

func (m *Manager) configureConnectionPool() {
	if m.config.isInMemory() && !m.config.sharesMemory() {
		// A private :memory: database exists on one connection only.
		m.sqlDB.SetMaxOpenConns(1)
		m.sqlDB.SetMaxIdleConns(1)
		m.sqlDB.SetConnMaxLifetime(0)
		m.sqlDB.SetConnMaxIdleTime(0)
		return
	}
	m.sqlDB.SetMaxIdleConns(m.config.MaxIdleConns)
	m.sqlDB.SetMaxOpenConns(m.config.MaxOpenConns)
	m.sqlDB.SetConnMaxLifetime(m.config.ConnMaxLifetime)
	m.sqlDB.SetConnMaxIdleTime(m.config.ConnMaxIdleTime)
}

func (m *Manager) installHooks() {
	if m.config.ShowSQL {
		m.db.AddQueryHook(newShowSQLHook(m.showSQLOut))
	}
	if m.config.LogSQL {
		m.db.AddQueryHook(NewSQLLogHook(m.logger))
	}
	if m.config.SlowQueryTime > 0 {
		m.db.AddQueryHook(NewSlowQueryHook(m.config.SlowQueryTime, m.logger))
	}
}

// DB returns the bun handle.
func (m *Manager) DB() *bun.DB {
	return m.db
}

// SQLDB returns the underlying pool, shared with the persistence API.
func (m *Manager) SQLDB() *sql.DB {
	return m.sqlDB
}

// Dialect returns the normalized store type (sqlite, postgres or mysql).
func (m *Manager) Dialect() string {
	return m.config.Type
}

// Config returns the connection settings the manager was opened with.
func (m *Manager) Config() ConnectionConfig {
	return m.config
}

func (m *Manager) InMemory() bool {
	return m.config.isInMemory()
}

func (m *Manager) Logger() Logger {
	return m.logger
}

// ShowSQLWriter returns where show_sql prints statements, or nil when
// show_sql is off.
func (m *Manager) ShowSQLWriter() io.Writer {
	if !m.config.ShowSQL {
		return nil
	}
	return m.showSQLOut
}

// Migrations returns a migration manager for the registered models.
func (m *Manager) Migrations() *MigrationManager {
	mm := NewMigrationManager(m.db, m.registry, m.logger)
	for _, item := range m.migrations {
		mm.Add(item)
	}
	return mm
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Ping checks the connection, honouring ctx.
func (m *Manager) Ping(ctx context.Context) error {
	if m.isClosed() {
		return NewError(ErrConnection, "database.Ping", sql.ErrConnDone)
	}
	if err := m.db.PingContext(ctx); err != nil {
		return NewError(ErrConnection, "database.Ping", err)
	}
	return nil
}

// validTimeout bounds IsValid regardless of the caller's deadline.
const validTimeout = 500 * time.Millisecond

// IsValid is an immediate liveness check. It reports false on any failure,
// including no connection becoming free within a short internal timeout.
func (m *Manager) IsValid(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, validTimeout)
	defer cancel()
	return m.Ping(ctx) == nil
}

// HealthCheck pings the store and reports pool usage.
func (m *Manager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	err := m.Ping(ctx)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
	}

	stats := m.sqlDB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	return status
}

// Stats returns connection pool statistics.
func (m *Manager) Stats() *DBStats {
	stats := m.sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// Close releases the pool. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	if m.pinned != nil {
		_ = m.pinned.Close()
	}
	if err := m.db.Close(); err != nil {
		m.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	m.logger.Info("Database connection closed", "type", m.config.Type)
	return nil
}
