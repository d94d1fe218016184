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

package persistence

import (
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/tomoncle/userstore/database"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// EntityManagerFactory creates entity managers over the pool of a
// database.Manager. It is safe for concurrent use.
type EntityManagerFactory struct {
	manager *database.Manager
	db      *gorm.DB
	logger  database.Logger
	closed  atomic.Bool
}

// Option configures an EntityManagerFactory.
type Option func(*EntityManagerFactory)

func WithLogger(logger database.Logger) Option {
	return func(f *EntityManagerFactory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewEntityManagerFactory opens GORM on the manager's existing connection
// pool. The schema is owned by the manager's migrations, so nothing is
// migrated here.
func NewEntityManagerFactory(manager *database.Manager, opts ...Option) (*EntityManagerFactory, error) {
	f := &EntityManagerFactory{manager: manager, logger: manager.Logger()}
	for _, opt := range opts {
		opt(f)
	}

	db, err := gorm.Open(newDialector(manager), &gorm.Config{
		Logger:                 newGormLogger(f.logger, manager.Config(), manager.ShowSQLWriter()),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, database.NewError(database.ErrConnection, "persistence.NewEntityManagerFactory", err)
	}
	f.db = db
	return f, nil
}

func newDialector(manager *database.Manager) gorm.Dialector {
	switch manager.Dialect() {
	case database.TypePostgres:
		return postgres.New(postgres.Config{Conn: manager.SQLDB()})
	case database.TypeMySQL:
		return mysql.New(mysql.Config{Conn: manager.SQLDB()})
	default:
		return &sqlite.Dialector{Conn: manager.SQLDB()}
	}
}

// DB returns the GORM handle, for queries outside an entity manager.
func (f *EntityManagerFactory) DB() *gorm.DB {
	return f.db
}

func (f *EntityManagerFactory) IsOpen() bool {
	return !f.closed.Load()
}

// CreateEntityManager returns a new open entity manager.
func (f *EntityManagerFactory) CreateEntityManager() (*EntityManager, error) {
	if f.closed.Load() {
		return nil, database.Errorf(database.ErrInvalidState, "persistence.CreateEntityManager", "entity manager factory is closed")
	}
	em := &EntityManager{id: uuid.NewString(), factory: f, open: true}
	f.logger.Debug("Entity manager opened", "entity_manager", em.id)
	return em, nil
}

// Close stops the factory from creating entity managers. The shared pool
// stays open; it belongs to the database.Manager.
func (f *EntityManagerFactory) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.logger.Info("Entity manager factory closed")
	return nil
}
