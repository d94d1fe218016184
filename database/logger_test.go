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
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tomoncle/userstore/utils"
)

func TestNamedLogger(t *testing.T) {
	var buf bytes.Buffer
	utils.ConfigureConsoleOutput(&buf)
	t.Cleanup(func() { utils.ConfigureConsoleOutput(os.Stdout) })

	l := NewNamedLogger("DB_TEST")
	l.SetLevel(LogLevelWarn)
	l.Info("hidden")
	l.Warn("pool exhausted", "in_use", 10, "dangling")
	l.SetLevel(LogLevelDebug)
	l.Debug("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "pool exhausted in_use=10")
	assert.NotContains(t, out, "dangling")
	assert.Contains(t, out, "shown")
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger())

	previous := GetLogger()
	t.Cleanup(func() { InitLogger(previous) })

	InitLogger(NopLogger{})
	assert.Equal(t, NopLogger{}, GetLogger())
	InitLogger(nil)
	assert.Equal(t, NopLogger{}, GetLogger())

	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "DEBUG", LogLevel(42).String())
}
