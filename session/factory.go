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

package session

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tomoncle/userstore/database"
)

// Statistics is a snapshot of the factory counters.
type Statistics struct {
	SessionsOpened         int64 `json:"sessions_opened"`
	SessionsClosed         int64 `json:"sessions_closed"`
	TransactionsCommitted  int64 `json:"transactions_committed"`
	TransactionsRolledBack int64 `json:"transactions_rolled_back"`
}

// Factory opens sessions against one database.Manager. It is safe for
// concurrent use; the sessions it opens are not.
type Factory struct {
	manager *database.Manager
	logger  database.Logger
	closed  atomic.Bool

	sessionsOpened atomic.Int64
	sessionsClosed atomic.Int64
	txCommitted    atomic.Int64
	txRolledBack   atomic.Int64
}

// Option configures a Factory.
type Option func(*Factory)

func WithLogger(logger database.Logger) Option {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFactory returns a Factory over manager. Closing the factory does not
// close the manager.
func NewFactory(manager *database.Manager, opts ...Option) *Factory {
	f := &Factory{manager: manager, logger: manager.Logger()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Manager returns the connection provider the factory was built on.
func (f *Factory) Manager() *database.Manager {
	return f.manager
}

// OpenSession returns a new open session. It fails with
// database.ErrInvalidState once the factory is closed.
func (f *Factory) OpenSession() (*Session, error) {
	if f.closed.Load() {
		return nil, database.Errorf(database.ErrInvalidState, "session.OpenSession", "session factory is closed")
	}
	s := &Session{
		id:      uuid.NewString(),
		factory: f,
		open:    true,
	}
	f.sessionsOpened.Add(1)
	f.logger.Debug("Session opened", "session", s.id)
	return s, nil
}

// InTransaction runs fn in a fresh session and transaction. The transaction
// commits when fn returns nil and rolls back otherwise; the session is always
// closed.
func (f *Factory) InTransaction(ctx context.Context, fn func(ctx context.Context, s *Session) error) (err error) {
	s, err := f.OpenSession()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); err == nil {
			err = closeErr
		}
	}()

	tx, err := s.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	if err = fn(ctx, s); err != nil {
		if tx.IsActive() {
			if rbErr := tx.Rollback(); rbErr != nil {
				f.logger.Warn("Rollback failed", "session", s.id, "error", rbErr)
			}
		}
		return err
	}
	if !tx.IsActive() {
		return nil
	}
	return tx.Commit()
}

// Statistics returns the current counters.
func (f *Factory) Statistics() Statistics {
	return Statistics{
		SessionsOpened:         f.sessionsOpened.Load(),
		SessionsClosed:         f.sessionsClosed.Load(),
		TransactionsCommitted:  f.txCommitted.Load(),
		TransactionsRolledBack: f.txRolledBack.Load(),
	}
}

func (f *Factory) IsClosed() bool {
	return f.closed.Load()
}

// Close stops the factory from opening new sessions. Sessions already open
// keep working until they are closed.
func (f *Factory) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	stats := f.Statistics()
	f.logger.Info("Session factory closed",
		"sessions_opened", stats.SessionsOpened,
		"transactions_committed", stats.TransactionsCommitted,
		"transactions_rolled_back", stats.TransactionsRolledBack,
	)
	return nil
}
