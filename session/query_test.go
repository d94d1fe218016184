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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/userstore/database"
)

func TestBindNamed(t *testing.T) {
	query, args, err := bindNamed("op",
		"select * from users where id = :id and email = :email or id = :id",
		map[string]any{"id": 7, "email": "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, "select * from users where id = ? and email = ? or id = ?", query)
	assert.Equal(t, []any{7, "a@b.com", 7}, args)

	query, args, err = bindNamed("op", "select ':skip', \"a:b\", x::text from t where y = :y", map[string]any{"y": 1})
	require.NoError(t, err)
	assert.Equal(t, "select ':skip', \"a:b\", x::text from t where y = ?", query)
	assert.Equal(t, []any{1}, args)

	_, _, err = bindNamed("op", "delete from users where id = :id", nil)
	assert.ErrorIs(t, err, database.ErrStore)
	assert.ErrorContains(t, err, `"id"`)
}

func TestQuery_Results(t *testing.T) {
	f := newFactory(t)
	jon := saveUser(t, f, "jon@snow.com", "ghost")
	saveUser(t, f, "sam@tarly.com", "books")

	s, err := f.OpenSession()
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	email, err := s.CreateQuery("select email from users where id = :id").
		SetParameter("id", jon.ID).
		UniqueResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jon@snow.com", email)

	row, err := s.CreateQuery("select id, email from users where email = :email").
		SetParameter("email", "jon@snow.com").
		UniqueResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": jon.ID, "email": "jon@snow.com"}, row)

	_, err = s.CreateQuery("select email from users").UniqueResult(ctx)
	assert.ErrorIs(t, err, database.ErrNonUniqueResult)

	_, err = s.CreateQuery("select email from users where id = :id").SetParameter("id", -1).UniqueResult(ctx)
	assert.ErrorIs(t, err, database.ErrNotFound)

	rows, err := s.CreateQuery("select email from users order by email").List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"email": "jon@snow.com"}, {"email": "sam@tarly.com"}}, rows)

	_, err = s.CreateQuery("delete from users").ExecuteUpdate(ctx)
	assert.ErrorIs(t, err, database.ErrInvalidState, "updates need a transaction")
}
