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

	"github.com/tomoncle/userstore/database"
	"github.com/tomoncle/userstore/model"
	"github.com/tomoncle/userstore/repository"
	"github.com/tomoncle/userstore/types"
	"github.com/uptrace/bun"
)

// Session is a short-lived conversation with the store. It is not safe for
// concurrent use.
type Session struct {
	id      string
	factory *Factory
	tx      *Transaction
	open    bool
}

// ID identifies the session in log output.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) IsOpen() bool {
	return s.open
}

// Transaction returns the current transaction, or nil if none was begun.
func (s *Session) Transaction() *Transaction {
	return s.tx
}

// BeginTransaction starts a new transaction on the session. Only one
// transaction may be active at a time.
func (s *Session) BeginTransaction(ctx context.Context) (*Transaction, error) {
	const op = "session.BeginTransaction"
	if !s.open {
		return nil, database.Errorf(database.ErrInvalidState, op, "session is closed")
	}
	if s.tx != nil && s.tx.IsActive() {
		return nil, database.Errorf(database.ErrInvalidState, op, "transaction already active")
	}
	tx := &Transaction{session: s, state: types.TxNotStarted}
	if err := tx.begin(ctx); err != nil {
		return nil, err
	}
	s.tx = tx
	s.factory.logger.Debug("Transaction begun", "session", s.id)
	return tx, nil
}

func (s *Session) activeTx(op string) (bun.Tx, error) {
	if !s.open {
		return bun.Tx{}, database.Errorf(database.ErrInvalidState, op, "session is closed")
	}
	if s.tx == nil || !s.tx.IsActive() {
		return bun.Tx{}, database.Errorf(database.ErrInvalidState, op, "no active transaction")
	}
	return s.tx.tx, nil
}

// DB returns the active transaction as a bun handle, for repositories and
// query builders that should join the unit of work.
func (s *Session) DB() (bun.IDB, error) {
	tx, err := s.activeTx("session.DB")
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// conn returns the active transaction or, outside one, the pool.
func (s *Session) conn(op string) (bun.IDB, error) {
	if !s.open {
		return nil, database.Errorf(database.ErrInvalidState, op, "session is closed")
	}
	if s.tx != nil && s.tx.IsActive() {
		return s.tx.tx, nil
	}
	return s.factory.manager.DB(), nil
}

func (s *Session) users(op string) (*repository.UserRepository, error) {
	tx, err := s.activeTx(op)
	if err != nil {
		return nil, err
	}
	return repository.NewUserRepository(tx), nil
}

// Save inserts a transient user and returns a copy carrying the generated
// id. The argument is not modified.
func (s *Session) Save(ctx context.Context, user model.User) (model.User, error) {
	const op = "session.Save"
	repo, err := s.users(op)
	if err != nil {
		return model.User{}, err
	}
	if !user.IsTransient() {
		return model.User{}, database.Errorf(database.ErrInvalidState, op, "user already has id %d", user.ID)
	}
	if err := user.Validate(); err != nil {
		return model.User{}, database.NewError(database.ErrInvalidEntity, op, err)
	}

	saved := user
	if err := repo.Create(ctx, &saved); err != nil {
		return model.User{}, err
	}
	return saved, nil
}

// Get loads the user with id.
func (s *Session) Get(ctx context.Context, id int64) (model.User, error) {
	repo, err := s.users("session.Get")
	if err != nil {
		return model.User{}, err
	}
	user, err := repo.GetOne(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	return *user, nil
}

// FindByEmail loads the only user with email.
func (s *Session) FindByEmail(ctx context.Context, email string) (model.User, error) {
	repo, err := s.users("session.FindByEmail")
	if err != nil {
		return model.User{}, err
	}
	user, err := repo.FindByEmail(ctx, email)
	if err != nil {
		return model.User{}, err
	}
	return *user, nil
}

// Update overwrites the stored attributes of a persisted user.
func (s *Session) Update(ctx context.Context, user model.User) error {
	const op = "session.Update"
	repo, err := s.users(op)
	if err != nil {
		return err
	}
	if user.IsTransient() {
		return database.Errorf(database.ErrInvalidState, op, "user has no id")
	}
	if err := user.Validate(); err != nil {
		return database.NewError(database.ErrInvalidEntity, op, err)
	}
	return repo.Update(ctx, &user)
}

// DeleteByID removes the user with id. Deleting a missing user succeeds.
func (s *Session) DeleteByID(ctx context.Context, id int64) error {
	repo, err := s.users("session.DeleteByID")
	if err != nil {
		return err
	}
	return repo.Delete(ctx, id)
}

// ExecuteRawQuery runs query verbatim. A 1x1 result is returned as the bare
// value, any other result as []map[string]any. The query joins the active
// transaction when there is one.
func (s *Session) ExecuteRawQuery(ctx context.Context, query string) (any, error) {
	const op = "session.ExecuteRawQuery"
	db, err := s.conn(op)
	if err != nil {
		return nil, err
	}
	var rows []map[string]interface{}
	if err := db.NewRaw(query).Scan(ctx, &rows); err != nil {
		return nil, database.StoreError(op, err)
	}
	return database.CollapseResult(rows), nil
}

// CreateQuery prepares a statement with :name parameters.
func (s *Session) CreateQuery(query string) *Query {
	return &Query{session: s, query: query, params: make(map[string]any)}
}

// Close ends the session, rolling back a transaction that is still active.
// Closing twice is a no-op.
func (s *Session) Close() error {
	if !s.open {
		return nil
	}
	var err error
	if s.tx != nil && s.tx.IsActive() {
		err = s.tx.Rollback()
	}
	s.open = false
	s.factory.sessionsClosed.Add(1)
	s.factory.logger.Debug("Session closed", "session", s.id)
	return err
}
