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
	"database/sql"
	"errors"

	"github.com/tomoncle/userstore/database"
	"github.com/tomoncle/userstore/types"
	"github.com/uptrace/bun"
)

// Transaction is a unit of work on one pooled connection. Its state moves
// from Active to Committed or RolledBack exactly once.
type Transaction struct {
	session *Session
	state   types.TxState
	tx      bun.Tx
}

func (t *Transaction) begin(ctx context.Context) error {
	tx, err := t.session.factory.manager.DB().BeginTx(ctx, nil)
	if err != nil {
		return database.NewError(database.ErrConnection, "session.BeginTransaction", err)
	}
	t.tx = tx
	t.state = types.TxActive
	return nil
}

// State returns the current state of the transaction.
func (t *Transaction) State() types.TxState {
	return t.state
}

func (t *Transaction) IsActive() bool {
	return t.state == types.TxActive
}

func (t *Transaction) transition(op string, next types.TxState) error {
	if !t.state.CanTransition(next) {
		return database.Errorf(database.ErrInvalidState, op,
			"transaction is %s, cannot move to %s", t.state.Name(), next.Name())
	}
	return nil
}

// Commit makes the work of the transaction durable. When the store rejects
// the commit the transaction ends rolled back and the error wraps
// database.ErrCommit.
func (t *Transaction) Commit() error {
	const op = "session.Commit"
	if err := t.transition(op, types.TxCommitted); err != nil {
		return err
	}
	f := t.session.factory
	if err := t.tx.Commit(); err != nil {
		_ = t.tx.Rollback()
		t.state = types.TxRolledBack
		f.txRolledBack.Add(1)
		f.logger.Error("Transaction commit failed", "session", t.session.id, "error", err)
		return database.NewError(database.ErrCommit, op, err)
	}
	t.state = types.TxCommitted
	f.txCommitted.Add(1)
	f.logger.Debug("Transaction committed", "session", t.session.id)
	return nil
}

// Rollback discards the work of the transaction.
func (t *Transaction) Rollback() error {
	const op = "session.Rollback"
	if err := t.transition(op, types.TxRolledBack); err != nil {
		return err
	}
	f := t.session.factory
	t.state = types.TxRolledBack
	f.txRolledBack.Add(1)
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return database.StoreError(op, err)
	}
	f.logger.Debug("Transaction rolled back", "session", t.session.id)
	return nil
}
