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
	"fmt"
	"io"
	"log"
	"time"

	"github.com/tomoncle/userstore/database"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// gormLogger bridges GORM logging into database.Logger. With show_sql on,
// every statement is also printed to the manager's show_sql writer.
type gormLogger struct {
	logger        database.Logger
	slowThreshold time.Duration
	level         gormlogger.LogLevel
	show          gormlogger.Interface
}

var _ gormlogger.Interface = (*gormLogger)(nil)

func newGormLogger(logger database.Logger, cfg database.ConnectionConfig, showOut io.Writer) *gormLogger {
	level := gormlogger.Warn
	if cfg.LogSQL || cfg.ShowSQL {
		level = gormlogger.Info
	}
	l := &gormLogger{logger: logger, slowThreshold: cfg.SlowQueryTime, level: level}
	if cfg.ShowSQL && showOut != nil {
		l.show = gormlogger.New(log.New(showOut, "\r\n", log.LstdFlags), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Info,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		})
	}
	return l
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.level = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger.Error(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	if l.show != nil {
		l.show.Trace(ctx, begin, fc, err)
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.logger.Error("gorm query error", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.logger.Warn("gorm slow query", "sql", sql, "rows", rows, "elapsed", elapsed, "threshold", l.slowThreshold)
	case l.level >= gormlogger.Info:
		l.logger.Debug("gorm query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
