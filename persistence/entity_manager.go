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
	"errors"

	"github.com/tomoncle/userstore/database"
	"github.com/tomoncle/userstore/model"
	"github.com/tomoncle/userstore/types"
	"gorm.io/gorm"
)

// EntityManager manages users inside its EntityTransaction. It is not safe
// for concurrent use.
type EntityManager struct {
	id      string
	factory *EntityManagerFactory
	tx      *EntityTransaction
	open    bool
}

func (em *EntityManager) ID() string {
	return em.id
}

func (em *EntityManager) IsOpen() bool {
	return em.open
}

// Transaction returns the current transaction, or a new NotStarted one once
// the previous transaction has ended.
func (em *EntityManager) Transaction() *EntityTransaction {
	if em.tx == nil || em.tx.state.IsTerminal() {
		em.tx = &EntityTransaction{em: em, state: types.TxNotStarted}
	}
	return em.tx
}

func (em *EntityManager) active(ctx context.Context, op string) (*gorm.DB, error) {
	if !em.open {
		return nil, database.Errorf(database.ErrInvalidState, op, "entity manager is closed")
	}
	if em.tx == nil || !em.tx.IsActive() {
		return nil, database.Errorf(database.ErrInvalidState, op, "no active transaction")
	}
	return em.tx.tx.WithContext(ctx), nil
}

func storeError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return database.NewError(database.ErrNotFound, op, err)
	}
	return database.StoreError(op, err)
}

// Persist inserts a transient user and returns a copy carrying the
// generated id.
func (em *EntityManager) Persist(ctx context.Context, user model.User) (model.User, error) {
	const op = "persistence.Persist"
	db, err := em.active(ctx, op)
	if err != nil {
		return model.User{}, err
	}
	if !user.IsTransient() {
		return model.User{}, database.Errorf(database.ErrInvalidState, op, "user already has id %d", user.ID)
	}
	if err := user.Validate(); err != nil {
		return model.User{}, database.NewError(database.ErrInvalidEntity, op, err)
	}

	persisted := user
	if err := db.Create(&persisted).Error; err != nil {
		return model.User{}, storeError(op, err)
	}
	return persisted, nil
}

// Find loads the user with id.
func (em *EntityManager) Find(ctx context.Context, id int64) (model.User, error) {
	const op = "persistence.Find"
	db, err := em.active(ctx, op)
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := db.First(&user, id).Error; err != nil {
		return model.User{}, storeError(op, err)
	}
	return user, nil
}

// FindByEmail loads the only user with email.
func (em *EntityManager) FindByEmail(ctx context.Context, email string) (model.User, error) {
	const op = "persistence.FindByEmail"
	db, err := em.active(ctx, op)
	if err != nil {
		return model.User{}, err
	}
	var users []model.User
	if err := db.Where("email = ?", email).Limit(2).Find(&users).Error; err != nil {
		return model.User{}, storeError(op, err)
	}
	switch len(users) {
	case 0:
		return model.User{}, database.NewError(database.ErrNotFound, op, nil)
	case 1:
		return users[0], nil
	default:
		return model.User{}, database.NewError(database.ErrNonUniqueResult, op, nil)
	}
}

// Merge writes the attributes of a persisted user back to the store.
func (em *EntityManager) Merge(ctx context.Context, user model.User) error {
	const op = "persistence.Merge"
	db, err := em.active(ctx, op)
	if err != nil {
		return err
	}
	if user.IsTransient() {
		return database.Errorf(database.ErrInvalidState, op, "user has no id")
	}
	if err := user.Validate(); err != nil {
		return database.NewError(database.ErrInvalidEntity, op, err)
	}
	res := db.Model(&model.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"email": user.Email, "password": user.Password})
	if res.Error != nil {
		return storeError(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NewError(database.ErrNotFound, op, nil)
	}
	return nil
}

// Remove deletes the user with id. Removing a missing user succeeds.
func (em *EntityManager) Remove(ctx context.Context, id int64) error {
	const op = "persistence.Remove"
	db, err := em.active(ctx, op)
	if err != nil {
		return err
	}
	if err := db.Delete(&model.User{}, id).Error; err != nil {
		return storeError(op, err)
	}
	return nil
}

// NativeQuery runs query verbatim, inside the active transaction when there
// is one. A 1x1 result is returned as the bare value, any other result as
// []map[string]any.
func (em *EntityManager) NativeQuery(ctx context.Context, query string) (any, error) {
	const op = "persistence.NativeQuery"
	if !em.open {
		return nil, database.Errorf(database.ErrInvalidState, op, "entity manager is closed")
	}
	db := em.factory.db
	if em.tx != nil && em.tx.IsActive() {
		db = em.tx.tx
	}
	var rows []map[string]any
	if err := db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return nil, storeError(op, err)
	}
	return database.CollapseResult(rows), nil
}

// Close ends the entity manager, rolling back a transaction that is still
// active. Closing twice is a no-op.
func (em *EntityManager) Close() error {
	if !em.open {
		return nil
	}
	var err error
	if em.tx != nil && em.tx.IsActive() {
		err = em.tx.Rollback()
	}
	em.open = false
	em.factory.logger.Debug("Entity manager closed", "entity_manager", em.id)
	return err
}
