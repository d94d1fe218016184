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
	"context"
	"database/sql"
	"errors"

	"github.com/tomoncle/userstore/database"
	"github.com/tomoncle/userstore/types"
	"gorm.io/gorm"
)

// EntityTransaction is the resource-local transaction of an EntityManager.
// It starts NotStarted and must be begun explicitly.
type EntityTransaction struct {
	em    *EntityManager
	state types.TxState
	tx    *gorm.DB
}

func (t *EntityTransaction) State() types.TxState {
	return t.state
}

func (t *EntityTransaction) IsActive() bool {
	return t.state == types.TxActive
}

func (t *EntityTransaction) transition(op string, next types.TxState) error {
	if !t.em.open {
		return database.Errorf(database.ErrInvalidState, op, "entity manager is closed")
	}
	if !t.state.CanTransition(next) {
		return database.Errorf(database.ErrInvalidState, op,
			"transaction is %s, cannot move to %s", t.state.Name(), next.Name())
	}
	return nil
}

// Begin starts the transaction on a pooled connection.
func (t *EntityTransaction) Begin(ctx context.Context) error {
	const op = "persistence.Begin"
	if err := t.transition(op, types.TxActive); err != nil {
		return err
	}
	tx := t.em.factory.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return database.NewError(database.ErrConnection, op, tx.Error)
	}
	t.tx = tx
	t.state = types.TxActive
	t.em.factory.logger.Debug("Transaction begun", "entity_manager", t.em.id)
	return nil
}

// Commit makes the work durable. When the store rejects the commit the
// transaction ends rolled back and the error wraps database.ErrCommit.
func (t *EntityTransaction) Commit() error {
	const op = "persistence.Commit"
	if err := t.transition(op, types.TxCommitted); err != nil {
		return err
	}
	if err := t.tx.Commit().Error; err != nil {
		t.tx.Rollback()
		t.state = types.TxRolledBack
		t.em.factory.logger.Error("Transaction commit failed", "entity_manager", t.em.id, "error", err)
		return database.NewError(database.ErrCommit, op, err)
	}
	t.state = types.TxCommitted
	t.em.factory.logger.Debug("Transaction committed", "entity_manager", t.em.id)
	return nil
}

// Rollback discards the work of the transaction.
func (t *EntityTransaction) Rollback() error {
	const op = "persistence.Rollback"
	if err := t.transition(op, types.TxRolledBack); err != nil {
		return err
	}
	t.state = types.TxRolledBack
	if err := t.tx.Rollback().Error; err != nil && !errors.Is(err, sql.ErrTxDone) {
		return database.StoreError(op, err)
	}
	t.em.factory.logger.Debug("Transaction rolled back", "entity_manager", t.em.id)
	return nil
}
