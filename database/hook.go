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

package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
)

var (
	selectColor = color.New(color.FgGreen)
	insertColor = color.New(color.FgBlue)
	updateColor = color.New(color.FgYellow)
	deleteColor = color.New(color.FgMagenta)
	otherColor  = color.New(color.FgRed)
	slowColor   = color.New(color.BgYellow, color.FgHiWhite)
	errorColor  = color.New(color.BgRed, color.FgHiWhite)
)

// colorizeQuery paints a statement by its operation. fatih/color drops the
// escape codes when output is not a terminal.
func colorizeQuery(operation, query string) string {
	switch operation {
	case "SELECT":
		return selectColor.Sprint(query)
	case "INSERT":
		return insertColor.Sprint(query)
	case "UPDATE":
		return updateColor.Sprint(query)
	case "DELETE":
		return deleteColor.Sprint(query)
	default:
		return otherColor.Sprint(query)
	}
}

// SQLLogHook writes every statement through the Logger at debug level and
// failed statements at error level.
type SQLLogHook struct {
	logger Logger
}

var _ bun.QueryHook = (*SQLLogHook)(nil)

func NewSQLLogHook(logger Logger) *SQLLogHook {
	return &SQLLogHook{logger: logger}
}

func (h *SQLLogHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SQLLogHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	dur := time.Since(event.StartTime).Round(time.Microsecond)
	query := colorizeQuery(event.Operation(), event.Query)

	switch {
	case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
		h.logger.Debug("sql", "duration", dur, "query", query)
	default:
		h.logger.Error("sql failed", "duration", dur, "query", query, "error", errorColor.Sprint(event.Err.Error()))
	}
}

// SlowQueryHook warns about statements slower than the threshold.
type SlowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func NewSlowQueryHook(threshold time.Duration, logger Logger) *SlowQueryHook {
	return &SlowQueryHook{slowTime: threshold, logger: logger}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if event.Err != nil {
		return
	}
	duration := time.Since(event.StartTime)
	if duration > h.slowTime {
		h.logger.Warn("slow query detected",
			"duration", duration,
			"slow_threshold", h.slowTime,
			"query", slowColor.Sprint(event.Query),
		)
	}
}

// newShowSQLHook prints every statement to w, like show_sql in other ORMs.
// BUNDEBUG=0 in the environment silences it.
func newShowSQLHook(w io.Writer) bun.QueryHook {
	return bundebug.NewQueryHook(
		bundebug.WithVerbose(true),
		bundebug.WithWriter(w),
		bundebug.FromEnv("BUNDEBUG"),
	)
}
