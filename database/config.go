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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tomoncle/userstore/utils"
	"gopkg.in/yaml.v3"
)

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Type:            TypeSQLite,
		DBName:          "userstore",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		ConnectTimeout:  time.Second * 10,
		SlowQueryTime:   time.Second * 2,
	}
}

// DefaultConfig returns a file-backed sqlite configuration that creates its
// schema on open.
func DefaultConfig() *Config {
	return &Config{
		Connection: DefaultConnectionConfig(),
		Schema:     SchemaConfig{AutoMigrate: true},
	}
}

// InMemoryConfig returns a configuration for an embedded, empty store. Every
// Manager opened from it gets its own database, with the users table created
// by Open; WithModels only adds further tables.
func InMemoryConfig() *Config {
	cfg := DefaultConfig()
	cfg.Connection.InMemory = true
	cfg.Connection.DBName = ""
	return cfg
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig and
// applies DB_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath.Base(path), err)
	}

	overrideFromEnv(&cfg.Connection)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration names a supported store.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("database configuration cannot be empty")
	}
	c.Connection.Type = normalizeType(c.Connection.Type)
	switch c.Connection.Type {
	case TypeSQLite:
		if !c.Connection.InMemory && c.Connection.DSN == "" && c.Connection.DBName == "" {
			return fmt.Errorf("sqlite requires dbname, dsn or in_memory")
		}
	case TypePostgres, TypeMySQL:
		if c.Connection.DSN == "" && c.Connection.Host == "" {
			return fmt.Errorf("%s requires host or dsn", c.Connection.Type)
		}
	default:
		return fmt.Errorf("unsupported database type: %q, supported types: %v",
			c.Connection.Type, []string{TypeSQLite, TypePostgres, TypeMySQL})
	}
	return nil
}

func normalizeType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "sqlite", "sqlite3":
		return TypeSQLite
	case "postgres", "postgresql", "pg":
		return TypePostgres
	case "mysql", "mariadb":
		return TypeMySQL
	default:
		return t
	}
}

// overrideFromEnv overrides configuration values from environment variables.
func overrideFromEnv(cfg *ConnectionConfig) {
	if t := os.Getenv("DB_TYPE"); t != "" {
		cfg.Type = t
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		cfg.DSN = dsn
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if username := os.Getenv("DB_USERNAME"); username != "" {
		cfg.Username = username
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.SSLMode = sslmode
	}
	if maxOpen := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpen != "" {
		if val, err := strconv.Atoi(maxOpen); err == nil {
			cfg.MaxOpenConns = val
		}
	}
	cfg.ShowSQL = utils.EnvDefaultBool("DB_SHOW_SQL", cfg.ShowSQL)
	cfg.LogSQL = utils.EnvDefaultBool("DB_LOG_SQL", cfg.LogSQL)
	cfg.ConnectTimeout = utils.EnvDefaultDuration("DB_CONNECT_TIMEOUT", cfg.ConnectTimeout)
	cfg.SlowQueryTime = utils.EnvDefaultDuration("DB_SLOW_QUERY_TIME", cfg.SlowQueryTime)
}

// driverName returns the database/sql driver registered for the store type.
func (c *ConnectionConfig) driverName() string {
	switch c.Type {
	case TypePostgres:
		return "postgres"
	case TypeMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// dataSourceName builds the driver DSN. In-memory sqlite gets a fresh,
// uniquely named memdb database on every call; every pooled connection opens
// the same database and waits on its locks like a file store.
func (c *ConnectionConfig) dataSourceName() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Type {
	case TypePostgres:
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
			c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode,
			int(c.ConnectTimeout.Seconds()))
	case TypeMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true&timeout=%s",
			c.Username, c.Password, c.Host, c.Port, c.DBName, c.ConnectTimeout)
	default:
		if c.InMemory {
			return fmt.Sprintf("file:/%s?vfs=memdb&_pragma=busy_timeout(5000)", uuid.NewString())
		}
		name := c.DBName
		if filepath.Ext(name) == "" {
			name += ".db"
		}
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", name)
	}
}

// isInMemory reports whether the store lives only inside this process.
func (c *ConnectionConfig) isInMemory() bool {
	if c.Type != TypeSQLite {
		return false
	}
	return c.InMemory || strings.Contains(c.DSN, ":memory:") || strings.Contains(c.DSN, "mode=memory") ||
		strings.Contains(c.DSN, "vfs=memdb")
}

// sharesMemory reports whether every connection of the pool sees the same
// in-memory database.
func (c *ConnectionConfig) sharesMemory() bool {
	if !c.isInMemory() {
		return false
	}
	if c.DSN == "" {
		return true
	}
	return strings.Contains(c.DSN, "cache=shared") || strings.Contains(c.DSN, "vfs=memdb")
}
