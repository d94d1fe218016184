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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/userstore/database"
	"github.com/tomoncle/userstore/model"
	"github.com/tomoncle/userstore/session"
	"github.com/tomoncle/userstore/types"
)

func newStore(t *testing.T) *database.Manager {
	t.Helper()
	m, err := database.Open(context.Background(), database.InMemoryConfig(),
		database.WithLogger(database.NopLogger{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newFactory(t *testing.T) *EntityManagerFactory {
	t.Helper()
	f, err := NewEntityManagerFactory(newStore(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// inTransaction runs fn in a fresh entity manager and commits on success.
func inTransaction(t *testing.T, f *EntityManagerFactory, fn func(ctx context.Context, em *EntityManager) error) error {
	t.Helper()
	ctx := context.Background()
	em, err := f.CreateEntityManager()
	require.NoError(t, err)
	defer func() { _ = em.Close() }()

	tx := em.Transaction()
	require.NoError(t, tx.Begin(ctx))
	if err := fn(ctx, em); err != nil {
		return err
	}
	return tx.Commit()
}

func TestEntityManager_Persist(t *testing.T) {
	f := newFactory(t)
	input := model.User{Email: "hans@dampf.com", Password: "hans"}

	var persisted model.User
	err := inTransaction(t, f, func(ctx context.Context, em *EntityManager) error {
		var err error
		persisted, err = em.Persist(ctx, input)
		return err
	})
	require.NoError(t, err)
	assert.NotZero(t, persisted.ID)
	assert.Zero(t, input.ID)

	err = inTransaction(t, f, func(ctx context.Context, em *EntityManager) error {
		found, err := em.Find(ctx, persisted.ID)
		require.NoError(t, err)
		assert.Equal(t, persisted, found)

		byEmail, err := em.FindByEmail(ctx, "hans@dampf.com")
		require.NoError(t, err)
		assert.Equal(t, persisted, byEmail)

		_, err = em.Find(ctx, persisted.ID+1)
		assert.ErrorIs(t, err, database.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestEntityManager_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t)
	em, err := f.CreateEntityManager()
	require.NoError(t, err)
	defer func() { _ = em.Close() }()
	assert.True(t, em.IsOpen())

	tx := em.Transaction()
	assert.Equal(t, types.TxNotStarted, tx.State())
	assert.Same(t, tx, em.Transaction())

	_, err = em.Persist(ctx, model.User{Email: "a@b.com", Password: "x"})
	assert.ErrorIs(t, err, database.ErrInvalidState, "not begun")
	assert.ErrorIs(t, tx.Commit(), database.ErrInvalidState)

	require.NoError(t, tx.Begin(ctx))
	assert.ErrorIs(t, tx.Begin(ctx), database.ErrInvalidState)

	_, err = em.Persist(ctx, model.User{ID: 1, Email: "a@b.com", Password: "x"})
	assert.ErrorIs(t, err, database.ErrInvalidState)
	_, err = em.Persist(ctx, model.User{Email: "", Password: "x"})
	assert.ErrorIs(t, err, database.ErrInvalidEntity)
	assert.ErrorIs(t, em.Merge(ctx, model.User{Email: "a@b.com", Password: "x"}), database.ErrInvalidState)
	assert.ErrorIs(t, em.Merge(ctx, model.User{ID: 42, Email: "a@b.com", Password: "x"}), database.ErrNotFound)

	require.NoError(t, tx.Rollback())
	assert.ErrorIs(t, tx.Rollback(), database.ErrInvalidState)
	assert.Equal(t, types.TxNotStarted, em.Transaction().State(), "a new transaction after the old one ended")
}

func TestEntityManager_MergeAndRemove(t *testing.T) {
	f := newFactory(t)

	var tywin model.User
	require.NoError(t, inTransaction(t, f, func(ctx context.Context, em *EntityManager) error {
		var err error
		tywin, err = em.Persist(ctx, model.User{Email: "tywin@lannister.com", Password: "lion"})
		return err
	}))

	require.NoError(t, inTransaction(t, f, func(ctx context.Context, em *EntityManager) error {
		user, err := em.FindByEmail(ctx, "tywin@lannister.com")
		if err != nil {
			return err
		}
		user.Email = "tywin@paidhisdebts.com"
		return em.Merge(ctx, user)
	}))

	require.NoError(t, inTransaction(t, f, func(ctx context.Context, em *EntityManager) error {
		_, err := em.FindByEmail(ctx, "tywin@lannister.com")
		assert.ErrorIs(t, err, database.ErrNotFound)

		user, err := em.FindByEmail(ctx, "tywin@paidhisdebts.com")
		require.NoError(t, err)
		assert.Equal(t, tywin.ID, user.ID, "merge keeps the identity")
		assert.Equal(t, "lion", user.Password)

		require.NoError(t, em.Remove(ctx, user.ID))
		return em.Remove(ctx, user.ID)
	}))

	require.NoError(t, inTransaction(t, f, func(ctx context.Context, em *EntityManager) error {
		_, err := em.Find(ctx, tywin.ID)
		assert.ErrorIs(t, err, database.ErrNotFound)
		return nil
	}))
}

func TestEntityManager_NativeQuery(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t)
	em, err := f.CreateEntityManager()
	require.NoError(t, err)

	one, err := em.NativeQuery(ctx, "select 1 from dual")
	require.NoError(t, err)
	assert.EqualValues(t, 1, one)

	require.NoError(t, em.Close())
	require.NoError(t, em.Close())
	_, err = em.NativeQuery(ctx, "select 1 from dual")
	assert.ErrorIs(t, err, database.ErrInvalidState)
}

func TestEntityManager_CloseRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFactory(t)
	em, err := f.CreateEntityManager()
	require.NoError(t, err)

	tx := em.Transaction()
	require.NoError(t, tx.Begin(ctx))
	_, err = em.Persist(ctx, model.User{Email: "arya@stark.com", Password: "needle"})
	require.NoError(t, err)

	count, err := em.NativeQuery(ctx, "select count(*) from users")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "visible inside its own transaction")

	require.NoError(t, em.Close())
	assert.Equal(t, types.TxRolledBack, tx.State())

	var total int64
	require.NoError(t, f.DB().Model(&model.User{}).Count(&total).Error)
	assert.Zero(t, total)
}

func TestEntityTransaction_CommitFailure(t *testing.T) {
	f := newFactory(t)
	em, err := f.CreateEntityManager()
	require.NoError(t, err)
	defer func() { _ = em.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	tx := em.Transaction()
	require.NoError(t, tx.Begin(ctx))
	_, err = em.Persist(ctx, model.User{Email: "lost@commit.com", Password: "x"})
	require.NoError(t, err)

	cancel()
	assert.ErrorIs(t, tx.Commit(), database.ErrCommit)
	assert.Equal(t, types.TxRolledBack, tx.State())
}

func TestFactory_Close(t *testing.T) {
	f := newFactory(t)
	assert.True(t, f.IsOpen())
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	assert.False(t, f.IsOpen())

	_, err := f.CreateEntityManager()
	assert.ErrorIs(t, err, database.ErrInvalidState)
}

func TestSharedStoreAcrossAPIs(t *testing.T) {
	store := newStore(t)
	emf, err := NewEntityManagerFactory(store)
	require.NoError(t, err)
	sessions := session.NewFactory(store)

	err = sessions.InTransaction(context.Background(), func(ctx context.Context, s *session.Session) error {
		_, err := s.Save(ctx, model.User{Email: "hans@dampf.com", Password: "session"})
		return err
	})
	require.NoError(t, err)

	var persisted model.User
	require.NoError(t, inTransaction(t, emf, func(ctx context.Context, em *EntityManager) error {
		found, err := em.FindByEmail(ctx, "hans@dampf.com")
		require.NoError(t, err)
		assert.Equal(t, "session", found.Password)

		persisted, err = em.Persist(ctx, model.User{Email: "jon@snow.com", Password: "entity"})
		return err
	}))

	err = sessions.InTransaction(context.Background(), func(ctx context.Context, s *session.Session) error {
		found, err := s.Get(ctx, persisted.ID)
		require.NoError(t, err)
		assert.Equal(t, persisted, found)
		return nil
	})
	require.NoError(t, err)
}

func TestShowSQLCoversBothAPIs(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	cfg := database.InMemoryConfig()
	cfg.Connection.ShowSQL = true
	store, err := database.Open(ctx, cfg,
		database.WithLogger(database.NopLogger{}),
		database.WithShowSQLWriter(&out),
	)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	emf, err := NewEntityManagerFactory(store)
	require.NoError(t, err)
	require.NoError(t, inTransaction(t, emf, func(ctx context.Context, em *EntityManager) error {
		_, err := em.Persist(ctx, model.User{Email: "jaime@lannister.com", Password: "gold"})
		return err
	}))
	assert.Contains(t, out.String(), "INSERT INTO `users`")
	assert.Contains(t, out.String(), "jaime@lannister.com")

	out.Reset()
	err = session.NewFactory(store).InTransaction(ctx, func(ctx context.Context, s *session.Session) error {
		_, err := s.Save(ctx, model.User{Email: "cersei@lannister.com", Password: "wine"})
		return err
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `INSERT INTO "users"`)
}

func TestEntityTransaction_BeginWhileSessionActive(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	emf, err := NewEntityManagerFactory(store)
	require.NoError(t, err)

	s, err := session.NewFactory(store).OpenSession()
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	sessionTx, err := s.BeginTransaction(ctx)
	require.NoError(t, err)

	em, err := emf.CreateEntityManager()
	require.NoError(t, err)
	defer func() { _ = em.Close() }()

	begin, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	tx := em.Transaction()
	require.NoError(t, tx.Begin(begin))
	assert.True(t, store.IsValid(context.Background()))

	one, err := em.NativeQuery(ctx, "select 1 from dual")
	require.NoError(t, err)
	assert.EqualValues(t, 1, one)

	require.NoError(t, tx.Commit())
	require.NoError(t, sessionTx.Commit())
}
