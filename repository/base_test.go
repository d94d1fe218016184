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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/userstore/database"
	"github.com/tomoncle/userstore/model"
	"github.com/tomoncle/userstore/types"
	"github.com/uptrace/bun"
)

func newStore(t *testing.T) *database.Manager {
	t.Helper()
	m, err := database.Open(context.Background(), database.InMemoryConfig(),
		database.WithLogger(database.NopLogger{}),
		database.WithModels(model.Models()...),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func seed(t *testing.T, repo Repository[model.User], emails ...string) []*model.User {
	t.Helper()
	users := make([]*model.User, len(emails))
	for i, email := range emails {
		users[i] = &model.User{Email: email, Password: "secret"}
	}
	require.NoError(t, repo.Create(context.Background(), users...))
	return users
}

func TestRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[model.User](newStore(t).DB())

	users := seed(t, repo, "arya@stark.com", "sansa@stark.com")
	assert.NotZero(t, users[0].ID)
	assert.NotEqual(t, users[0].ID, users[1].ID)

	got, err := repo.GetOne(ctx, users[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "sansa@stark.com", got.Email)

	_, err = repo.GetOne(ctx, 999)
	assert.ErrorIs(t, err, database.ErrNotFound)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.NoError(t, repo.Create(ctx))
}

func TestRepository_FindOne(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newStore(t).DB())
	seed(t, repo, "hans@dampf.com", "hans@dampf.com", "jon@snow.com")

	user, err := repo.FindByEmail(ctx, "jon@snow.com")
	require.NoError(t, err)
	assert.Equal(t, "jon@snow.com", user.Email)

	_, err = repo.FindByEmail(ctx, "nobody@nowhere.com")
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = repo.FindByEmail(ctx, "hans@dampf.com")
	assert.ErrorIs(t, err, database.ErrNonUniqueResult)
}

func TestRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[model.User](newStore(t).DB())
	user := seed(t, repo, "tywin@lannister.com")[0]

	user.Email = "tywin@paidhisdebts.com"
	require.NoError(t, repo.Update(ctx, user))

	got, err := repo.GetOne(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "tywin@paidhisdebts.com", got.Email)

	missing := &model.User{ID: 12345, Email: "ghost@castle.com", Password: "x"}
	assert.ErrorIs(t, repo.Update(ctx, missing), database.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, user.ID))
	require.NoError(t, repo.Delete(ctx, user.ID))
	_, err = repo.GetOne(ctx, user.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRepository_ListCountPage(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[model.User](newStore(t).DB())
	seed(t, repo, "a@stark.com", "b@stark.com", "c@stark.com", "d@lannister.com", "e@stark.com")

	starks := types.NewQueryFilter("email LIKE ?", "%@stark.com")
	list, err := repo.List(ctx, starks)
	require.NoError(t, err)
	assert.Len(t, list, 4)

	queried, err := repo.Query(ctx, "email = ?", "d@lannister.com")
	require.NoError(t, err)
	assert.Len(t, queried, 1)

	count, err := repo.Count(ctx, starks)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	page, err := repo.Page(ctx, types.NewPageRequest(2, 3, starks, "email ASC"))
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.Pages())
	require.Len(t, page.Items, 1)
	assert.Equal(t, "e@stark.com", page.Items[0].Email)

	empty, err := repo.Page(ctx, types.NewPageRequest(1, 10, types.NewQueryFilter("email = ?", "none")))
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Items)
}

func TestRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[model.User](newStore(t).DB())
	user := seed(t, repo, "old@stark.com")[0]

	changed := &model.User{ID: user.ID, Email: "new@stark.com", Password: "secret"}
	fresh := &model.User{ID: user.ID + 100, Email: "fresh@stark.com", Password: "secret"}
	require.NoError(t, repo.Upsert(ctx, []string{"email"}, nil, changed, fresh))

	got, err := repo.GetOne(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@stark.com", got.Email)

	count, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.ErrorIs(t, repo.Upsert(ctx, nil, nil, changed), database.ErrInvalidEntity)
}

func TestRepository_InTransaction(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	err := store.DB().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo := NewRepository[model.User](tx)
		seed(t, repo, "rolled@back.com")
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	count, err := NewRepository[model.User](store.DB()).Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStoreErrorClassification(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository[model.User](newStore(t).DB())

	_, err := repo.Query(ctx, "no_such_column = ?", 1)
	require.ErrorIs(t, err, database.ErrStore)

	var dbErr *database.Error
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, database.NoColumnErr, dbErr.SQL)
	assert.Equal(t, "repository.List", dbErr.Op)
}
