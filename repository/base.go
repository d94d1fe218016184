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

package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomoncle/userstore/database"
	"github.com/tomoncle/userstore/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any] struct {
	db bun.IDB
}

// NewRepository returns a generic repository bound to db, which may be a
// *bun.DB, a bun.Conn or a bun.Tx.
func NewRepository[T any](db bun.IDB) Repository[T] {
	return &baseRepositoryImpl[T]{db: db}
}

func (r *baseRepositoryImpl[T]) DB() bun.IDB { return r.db }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.db.NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.db.NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.db.NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.db.NewDelete() }

func (r *baseRepositoryImpl[T]) ValsToSlice(entity ...*T) []*T {
	entities := make([]*T, len(entity))
	copy(entities, entity)
	return entities
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, id any) (*T, error) {
	var entity T
	err := r.db.NewSelect().Model(&entity).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, database.StoreError("repository.GetOne", err)
	}
	return &entity, nil
}

// FindOne returns the single entity matching filter. It fails with
// database.ErrNotFound when nothing matches and database.ErrNonUniqueResult
// when more than one row does.
func (r *baseRepositoryImpl[T]) FindOne(ctx context.Context, filter *types.QueryFilter) (*T, error) {
	const op = "repository.FindOne"
	var entities []*T
	query := r.db.NewSelect().Model(&entities).Limit(2)
	if !filter.Empty() {
		query = query.Where(filter.Schema, filter.Args...)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, database.StoreError(op, err)
	}
	switch len(entities) {
	case 0:
		return nil, database.NewError(database.ErrNotFound, op, nil)
	case 1:
		return entities[0], nil
	default:
		return nil, database.NewError(database.ErrNonUniqueResult, op, nil)
	}
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	var entities []*T
	err := r.db.NewSelect().Model(&entities).Scan(ctx)
	if err != nil {
		return nil, database.StoreError("repository.GetAll", err)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	var entities []*T
	query := r.db.NewSelect().Model(&entities)
	if !filter.Empty() {
		query = query.Where(filter.Schema, filter.Args...)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, database.StoreError("repository.List", err)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	return r.List(ctx, types.NewQueryFilter(query, args...))
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	query := r.db.NewSelect().Model((*T)(nil))
	if !filter.Empty() {
		query = query.Where(filter.Schema, filter.Args...)
	}
	total, err := query.Count(ctx)
	if err != nil {
		return 0, database.StoreError("repository.Count", err)
	}
	return total, nil
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	const op = "repository.Page"
	var entities []*T
	query := r.db.NewSelect().Model(&entities)
	if filter := pageRequest.GetFilter(); !filter.Empty() {
		query = query.Where(filter.Schema, filter.Args...)
	}
	pagination := types.NewPagination[T](pageRequest)
	total, err := query.Count(ctx)
	if err != nil {
		return nil, database.StoreError(op, err)
	}
	if total == 0 {
		return pagination, nil
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Order(pageRequest.GetOrders()...).
		Scan(ctx)
	if err != nil {
		return nil, database.StoreError(op, err)
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

// Create inserts the entities and sets their generated primary keys.
func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := r.ValsToSlice(entity...)
	if _, err := r.db.NewInsert().Model(&entities).Exec(ctx); err != nil {
		return database.StoreError("repository.Create", err)
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error {
	const op = "repository.Upsert"
	if len(fields) == 0 {
		return database.Errorf(database.ErrInvalidEntity, op, "fields cannot be empty")
	}

	entities := r.ValsToSlice(entity...)
	features := r.db.Dialect().Features()

	var err error
	if features.Has(feature.InsertOnConflict) {
		err = r.upsertWithPostgresqlOrSQLite(ctx, fields, duplicateKeys, entities)
	} else if features.Has(feature.InsertOnDuplicateKey) {
		err = r.upsertWithMySQL(ctx, fields, entities)
	} else {
		err = r.upsertFallback(ctx, entities)
	}
	return database.StoreError(op, err)
}

// Update overwrites every column of the row with the entity's primary key.
// It fails with database.ErrNotFound when no such row exists.
func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	const op = "repository.Update"
	res, err := r.db.NewUpdate().Model(entity).WherePK().Exec(ctx)
	if err != nil {
		return database.StoreError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return database.StoreError(op, err)
	}
	if affected == 0 {
		return database.NewError(database.ErrNotFound, op, nil)
	}
	return nil
}

// Delete removes the row with id. Deleting a missing row is not an error.
func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	_, err := r.db.NewDelete().Model((*T)(nil)).Where("id = ?", id).Exec(ctx)
	return database.StoreError("repository.Delete", err)
}

func (r *baseRepositoryImpl[T]) upsertWithMySQL(ctx context.Context, fields []string, entities []*T) error {
	var queryArgs []string
	for _, field := range fields {
		queryArgs = append(queryArgs, fmt.Sprintf("%s = VALUES(%s)", field, field))
	}
	_, err := r.db.NewInsert().
		Model(&entities).
		On("DUPLICATE KEY UPDATE " + strings.Join(queryArgs, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertWithPostgresqlOrSQLite(ctx context.Context, fields []string, duplicateKeys []string, entities []*T) error {
	if len(duplicateKeys) == 0 {
		duplicateKeys = []string{"id"}
	}
	keyNames := strings.Join(duplicateKeys, ",")
	var queryArgs []string
	for _, field := range fields {
		queryArgs = append(queryArgs, fmt.Sprintf("%s = EXCLUDED.%s", field, field))
	}
	_, err := r.db.NewInsert().
		Model(&entities).
		On("CONFLICT (" + keyNames + ") DO UPDATE").
		Set(strings.Join(queryArgs, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, entities []*T) error {
	for _, entity := range entities {
		_, err := r.db.NewInsert().Model(entity).Exec(ctx)
		if err != nil {
			_, updateErr := r.db.NewUpdate().Model(entity).WherePK().Exec(ctx)
			if updateErr != nil {
				return fmt.Errorf("upsert failed for entity: insert error: %v, update error: %v", err, updateErr)
			}
		}
	}
	return nil
}
