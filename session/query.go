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
	"strings"

	"github.com/tomoncle/userstore/database"
)

// Query is a statement with :name parameters bound through SetParameter.
type Query struct {
	session *Session
	query   string
	params  map[string]any
}

// SetParameter binds value to every :name occurrence in the statement.
func (q *Query) SetParameter(name string, value any) *Query {
	q.params[name] = value
	return q
}

// ExecuteUpdate runs a data-changing statement inside the active
// transaction and returns the number of affected rows.
func (q *Query) ExecuteUpdate(ctx context.Context) (int64, error) {
	const op = "session.ExecuteUpdate"
	tx, err := q.session.activeTx(op)
	if err != nil {
		return 0, err
	}
	query, args, err := bindNamed(op, q.query, q.params)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, database.StoreError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, database.StoreError(op, err)
	}
	return affected, nil
}

// List runs the statement and returns every row.
func (q *Query) List(ctx context.Context) ([]map[string]any, error) {
	const op = "session.List"
	rows, err := q.rows(ctx, op)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = make([]map[string]any, 0)
	}
	return rows, nil
}

// UniqueResult runs the statement and returns its only row: the bare value
// when the row has one column, the row map otherwise. No row yields
// database.ErrNotFound, several rows database.ErrNonUniqueResult.
func (q *Query) UniqueResult(ctx context.Context) (any, error) {
	const op = "session.UniqueResult"
	rows, err := q.rows(ctx, op)
	if err != nil {
		return nil, err
	}
	switch {
	case len(rows) == 0:
		return nil, database.NewError(database.ErrNotFound, op, nil)
	case len(rows) > 1:
		return nil, database.NewError(database.ErrNonUniqueResult, op, nil)
	}
	if v, ok := database.SingleValue(rows[0]); ok {
		return v, nil
	}
	return rows[0], nil
}

func (q *Query) rows(ctx context.Context, op string) ([]map[string]interface{}, error) {
	db, err := q.session.conn(op)
	if err != nil {
		return nil, err
	}
	query, args, err := bindNamed(op, q.query, q.params)
	if err != nil {
		return nil, err
	}
	var rows []map[string]interface{}
	if err := db.NewRaw(query, args...).Scan(ctx, &rows); err != nil {
		return nil, database.StoreError(op, err)
	}
	return rows, nil
}

// bindNamed rewrites :name placeholders to positional ones and collects the
// arguments in order. Quoted text and :: casts are left alone.
func bindNamed(op, query string, params map[string]any) (string, []any, error) {
	var (
		sb    strings.Builder
		args  []any
		quote byte
	)
	sb.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			sb.WriteByte(c)
		case c == '\'' || c == '"':
			quote = c
			sb.WriteByte(c)
		case c == ':' && i+1 < len(query) && query[i+1] == ':':
			sb.WriteString("::")
			i++
		case c == ':' && i+1 < len(query) && isNameStart(query[i+1]):
			j := i + 1
			for j < len(query) && isNamePart(query[j]) {
				j++
			}
			name := query[i+1 : j]
			value, ok := params[name]
			if !ok {
				return "", nil, database.Errorf(database.ErrStore, op, "no value bound for parameter %q", name)
			}
			sb.WriteByte('?')
			args = append(args, value)
			i = j - 1
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), args, nil
}

func isNameStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isNamePart(c byte) bool {
	return isNameStart(c) || ('0' <= c && c <= '9')
}
