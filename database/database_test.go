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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.Connection.MaxIdleConns)
	assert.Equal(t, 100, cfg.Connection.MaxOpenConns)
	assert.Equal(t, 2*time.Second, cfg.Connection.SlowQueryTime)
	assert.True(t, cfg.Connection.CreateTablesOnInit)
	assert.True(t, cfg.Connection.EnableReconnect)

	// both session knobs default to off
	assert.False(t, cfg.Session.DetectChanges)
	assert.False(t, cfg.Session.LoadRelations)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finch.yaml")
	content := `
connection:
  type: sqlite
  dbname: app
  max_idle_conns: 3
session:
  detect_changes: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Connection.Type)
	assert.Equal(t, "app", cfg.Connection.DBName)
	assert.Equal(t, 3, cfg.Connection.MaxIdleConns)
	// unset values keep their defaults
	assert.Equal(t, 100, cfg.Connection.MaxOpenConns)
	assert.Equal(t, 2*time.Second, cfg.Connection.SlowQueryTime)

	assert.True(t, cfg.Session.DetectChanges)
	assert.False(t, cfg.Session.LoadRelations)
}

func TestConfigExportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "finch.yaml")

	cfg := DefaultConfig()
	cfg.Connection.Type = "postgres"
	cfg.Connection.Host = "db.internal"
	cfg.Connection.Port = 5432
	cfg.Session.LoadRelations = true
	require.NoError(t, cfg.Export(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Connection.Type, loaded.Connection.Type)
	assert.Equal(t, cfg.Connection.Host, loaded.Connection.Host)
	assert.Equal(t, cfg.Connection.Port, loaded.Connection.Port)
	assert.True(t, loaded.Session.LoadRelations)
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN(""))
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN(":memory:"))
	assert.Equal(t, "file:app.db?cache=shared", sqliteDSN("file:app.db?cache=shared"))
	assert.Equal(t, "app.db", sqliteDSN("app.db"))
	assert.Equal(t, "app.db", sqliteDSN("app"))
}

func TestIsSQLError(t *testing.T) {
	ok, _ := IsSQLError(nil)
	assert.False(t, ok)

	ok, kind := IsSQLError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'users.email'"})
	assert.True(t, ok)
	assert.Equal(t, DuplicateKeyErr, kind)

	// wrapped driver errors still classify
	ok, kind = IsSQLError(fmt.Errorf("exec failed: %w", &mysql.MySQLError{Number: 1146, Message: "Table 'who.users' doesn't exist"}))
	assert.True(t, ok)
	assert.Equal(t, NoTableErr, kind)

	ok, kind = IsSQLError(&mysql.MySQLError{Number: 9999, Message: "strange"})
	assert.True(t, ok)
	assert.Equal(t, UnknownErr, kind)

	tests := []struct {
		err  string
		kind SQLError
	}{
		{"SQLite error: UNIQUE constraint failed: users.email", DuplicateKeyErr},
		{`ERROR: duplicate key value violates unique constraint "users_email_key" (SQLSTATE 23505)`, DuplicateKeyErr},
		{"SQLite error: no such table: users", NoTableErr},
		{"SQLite error: no such column: nickname", NoColumnErr},
		{"SQLite error: NOT NULL constraint failed: users.name", NotNullViolationErr},
		{"SQLite error: FOREIGN KEY constraint failed", ForeignKeyViolationErr},
		{"SQLite error: datatype mismatch", InvalidTypeCastErr},
	}
	for _, tt := range tests {
		ok, kind := IsSQLError(errors.New(tt.err))
		assert.True(t, ok, tt.err)
		assert.Equal(t, tt.kind, kind, tt.err)
	}

	ok, _ = IsSQLError(errors.New("connection refused"))
	assert.False(t, ok)
}

func TestSQLErrorString(t *testing.T) {
	assert.Equal(t, "duplicate key", DuplicateKeyErr.String())
	assert.Equal(t, "unknown", UnknownErr.String())
}

func TestModelRegistryOrdersByPriority(t *testing.T) {
	registry := newModelRegistry()
	registry.Register(NewModelAdapter("third", 30))
	registry.Register(NewModelAdapter("first", 10))
	registry.Register(NewModelAdapter("second", 20))

	models := registry.Models()
	require.Len(t, models, 3)
	assert.Equal(t, "first", models[0].Instance())
	assert.Equal(t, "second", models[1].Instance())
	assert.Equal(t, "third", models[2].Instance())
}

func TestManagerSQLiteConnect(t *testing.T) {
	manager := NewDatabaseManager(&ConnectionConfig{
		Type:           "sqlite",
		DBName:         filepath.Join(t.TempDir(), "manager.db"),
		ConnectTimeout: 5 * time.Second,
	})
	ctx := context.Background()

	require.NoError(t, manager.Connect(ctx))
	require.NotNil(t, manager.GetDB())
	require.NotNil(t, manager.GetSQLDB())
	require.NoError(t, manager.Ping(ctx))

	status := manager.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Empty(t, status.LastError)

	stats := manager.GetStats()
	require.NotNil(t, stats)
	assert.GreaterOrEqual(t, stats.OpenConns, 0)

	require.NoError(t, manager.Disconnect())
	require.Error(t, manager.Ping(ctx))
}

func TestManagerRejectsUnsupportedType(t *testing.T) {
	manager := NewDatabaseManager(&ConnectionConfig{Type: "oracle"})
	err := manager.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestFactoryCreateFromConfig(t *testing.T) {
	factory := NewDatabaseFactory()

	_, err := factory.CreateFromConfig(&ConnectionConfig{Type: "mongodb"})
	require.Error(t, err)

	t.Setenv("DB_MAX_IDLE_CONNS", "7")
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = filepath.Join(t.TempDir(), "factory.db")
	manager, err := factory.CreateFromConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, manager)
	assert.Equal(t, 7, cfg.MaxIdleConns)

	require.NoError(t, factory.InitializeDatabase(context.Background(), false))
	require.NotNil(t, factory.GetDB())
	require.NoError(t, factory.Close())
}

type regModel struct {
	bun.BaseModel `bun:"table:reg_models"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name"`
}

func TestInitDBCreatesRegisteredTables(t *testing.T) {
	RegisterModel((*regModel)(nil), 1)
	t.Setenv("DB_SESSION_DETECT_CHANGES", "true")

	cfg := DefaultConfig()
	cfg.Connection.Type = "sqlite"
	cfg.Connection.DBName = filepath.Join(t.TempDir(), "global.db")
	cfg.Connection.HealthCheckInterval = 0

	db, err := InitDB(cfg)
	require.NoError(t, err)
	require.NotNil(t, db)
	defer func() { _ = CloseDB() }()

	assert.Same(t, db, GetDB())
	assert.True(t, SessionDefaults().DetectChanges)
	assert.False(t, SessionDefaults().LoadRelations)

	// the registered model's table was created on init
	count, err := db.NewSelect().Model((*regModel)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	status := GetHealthStatus(context.Background())
	assert.True(t, status.Healthy)
	require.NotNil(t, GetDatabaseStats())
}

type widget struct {
	bun.BaseModel `bun:"table:widgets"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name"`
	Tag  string `bun:"tag"`
}

func TestBootstrapAddsMissingColumns(t *testing.T) {
	manager := NewDatabaseManager(&ConnectionConfig{
		Type:           "sqlite",
		DBName:         filepath.Join(t.TempDir(), "columns.db"),
		ConnectTimeout: 5 * time.Second,
	})
	ctx := context.Background()
	require.NoError(t, manager.Connect(ctx))
	defer func() { _ = manager.Disconnect() }()
	db := manager.GetDB()

	// the table predates the model's tag column
	_, err := db.ExecContext(ctx, "CREATE TABLE widgets (id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, name VARCHAR)")
	require.NoError(t, err)

	RegisterModel((*widget)(nil), 10)
	require.NoError(t, CreateRegisteredTables(ctx, db, nil))

	_, err = db.NewInsert().Model(&widget{Name: "w", Tag: "fresh"}).Exec(ctx)
	require.NoError(t, err)

	var tags []string
	require.NoError(t, db.NewRaw("SELECT tag FROM widgets").Scan(ctx, &tags))
	assert.Equal(t, []string{"fresh"}, tags)
}
