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
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/schema"
)

// CreateRegisteredTables brings the schema of every registered model up:
// missing tables are created (ordered by ascending priority, so referenced
// tables exist before their dependents) and columns the model gained since
// the table was created are added. Only additive changes are applied here;
// renames, drops and type changes are left to external migration tooling.
func CreateRegisteredTables(ctx context.Context, db bun.IDB, logger Logger) error {
	// keep startup DDL out of the query log unless explicitly requested
	if _, ok := os.LookupEnv("FINCH_SQL_LOG_BOOTSTRAP"); !ok {
		EnableBunSqlSilent(true)
		defer EnableBunSqlSilent(false)
	}

	instances := RegisteredModelInstances()
	for _, model := range instances {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().WithForeignKeys().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, err)
		}
		if err := syncMissingColumns(ctx, db, model, logger); err != nil {
			return err
		}
	}

	if logger != nil && len(instances) > 0 {
		logger.Info("Table bootstrap completed", "tables", len(instances))
	}
	return nil
}

// syncMissingColumns adds the columns present on the model but absent from
// its table.
func syncMissingColumns(ctx context.Context, db bun.IDB, model interface{}, logger Logger) error {
	table := db.Dialect().Tables().Get(reflect.TypeOf(model).Elem())

	existing, err := tableColumns(ctx, db, table.Name)
	if err != nil {
		return fmt.Errorf("failed to inspect columns of %s: %w", table.Name, err)
	}

	for _, field := range table.Fields {
		if _, ok := existing[strings.ToLower(field.Name)]; ok {
			continue
		}
		if _, err := db.NewAddColumn().Model(model).ColumnExpr(columnDDL(field)).Exec(ctx); err != nil {
			// another process may have added the column first
			if ok, kind := IsSQLError(err); ok && kind == ExistColumnErr {
				continue
			}
			return fmt.Errorf("failed to add column %s.%s: %w", table.Name, field.Name, err)
		}
		if logger != nil {
			logger.Info("Added missing column", "table", table.Name, "column", field.Name)
		}
	}
	return nil
}

// tableColumns returns the lowercased column names of a table, keyed for
// membership tests.
func tableColumns(ctx context.Context, db bun.IDB, tableName string) (map[string]struct{}, error) {
	var query string
	switch db.Dialect().Name() {
	case dialect.SQLite:
		query = "SELECT name FROM pragma_table_info(?)"
	case dialect.MySQL:
		query = "SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?"
	case dialect.PG:
		query = "SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ?"
	default:
		return nil, fmt.Errorf("unsupported dialect for schema inspection: %s", db.Dialect().Name())
	}

	var names []string
	if err := db.NewRaw(query, tableName).Scan(ctx, &names); err != nil {
		return nil, err
	}

	columns := make(map[string]struct{}, len(names))
	for _, name := range names {
		columns[strings.ToLower(name)] = struct{}{}
	}
	return columns, nil
}

// columnDDL renders the ADD COLUMN fragment for a model field. NOT NULL is
// only emitted together with a default so existing rows stay valid.
func columnDDL(field *schema.Field) string {
	ddl := fmt.Sprintf("%s %s", field.Name, field.CreateTableSQLType)
	if field.SQLDefault != "" {
		ddl += " DEFAULT " + field.SQLDefault
		if field.NotNull {
			ddl += " NOT NULL"
		}
	}
	return ddl
}
