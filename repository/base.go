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
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/finch/session"
	"github.com/tomoncle/finch/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any, ID comparable] struct {
	sessions *session.Factory
}

// NewRepository returns a generic repository for entity type T keyed by ID.
// Sessions for the self-managed operations are drawn from the given factory,
// which also fixes the change detection and relation loading behavior.
func NewRepository[T any, ID comparable](sessions *session.Factory) Repository[T, ID] {
	return &baseRepositoryImpl[T, ID]{sessions: sessions}
}

func (r *baseRepositoryImpl[T, ID]) Sessions() *session.Factory { return r.sessions }

func (r *baseRepositoryImpl[T, ID]) Dialect() schema.Dialect { return r.sessions.DB().Dialect() }

func (r *baseRepositoryImpl[T, ID]) table() *schema.Table {
	return r.sessions.DB().Table(reflect.TypeOf((*T)(nil)).Elem())
}

func (r *baseRepositoryImpl[T, ID]) valsToSlice(entity ...*T) []*T {
	entities := make([]*T, len(entity))
	copy(entities, entity)
	return entities
}

// pkColumn resolves the single primary key column of T. Composite keys are
// rejected because the ID type parameter carries one value.
func (r *baseRepositoryImpl[T, ID]) pkColumn() (string, error) {
	table := r.table()
	if len(table.PKs) != 1 {
		return "", fmt.Errorf("entity %s must have exactly one primary key column, found %d", table.TypeName, len(table.PKs))
	}
	return table.PKs[0].Name, nil
}

// withRelations appends a Relation clause for every mapped relation of T when
// the session was configured to load related objects.
func (r *baseRepositoryImpl[T, ID]) withRelations(query *bun.SelectQuery, opts session.Options) *bun.SelectQuery {
	if !opts.LoadRelations {
		return query
	}
	for name := range r.table().Relations {
		query = query.Relation(name)
	}
	return query
}

// Get opens a session, looks up the entity by primary key and releases the
// session. Returns nil without error when no row matches.
func (r *baseRepositoryImpl[T, ID]) Get(ctx context.Context, id ID) (*T, error) {
	sess, err := r.sessions.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	return r.GetWithSession(ctx, sess, id)
}

func (r *baseRepositoryImpl[T, ID]) GetWithSession(ctx context.Context, sess *session.Session, id ID) (*T, error) {
	column, err := r.pkColumn()
	if err != nil {
		return nil, err
	}
	var entity T
	query := sess.NewSelect().Model(&entity).Where("? = ?", bun.Ident(column), id)
	if err := r.withRelations(query, sess.Options()).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &entity, nil
}

func (r *baseRepositoryImpl[T, ID]) GetAll(ctx context.Context) ([]*T, error) {
	return r.Find(ctx, nil)
}

// GetAllWithSession returns the collection view bound to sess. Callers
// compose and scan it themselves; nothing runs until then.
func (r *baseRepositoryImpl[T, ID]) GetAllWithSession(sess *session.Session) *bun.SelectQuery {
	return r.withRelations(sess.NewSelect().Model((*T)(nil)), sess.Options())
}

func (r *baseRepositoryImpl[T, ID]) Find(ctx context.Context, filter Filter) ([]*T, error) {
	sess, err := r.sessions.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	var entities []*T
	query := r.withRelations(sess.NewSelect().Model(&entities), sess.Options())
	if filter != nil {
		query = query.Apply(filter)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T, ID]) Query(ctx context.Context, where string, args ...interface{}) ([]*T, error) {
	return r.Find(ctx, func(query *bun.SelectQuery) *bun.SelectQuery {
		return query.Where(where, args...)
	})
}

func (r *baseRepositoryImpl[T, ID]) Count(ctx context.Context) (int, error) {
	sess, err := r.sessions.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = sess.Close() }()

	return sess.NewSelect().Model((*T)(nil)).Count(ctx)
}

func (r *baseRepositoryImpl[T, ID]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	sess, err := r.sessions.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	var entities []*T
	query := r.withRelations(sess.NewSelect().Model(&entities), sess.Options())
	if condition := page.Condition(); condition != nil {
		query = query.Where(condition.Expr, condition.Args...)
	}
	pagination := types.NewPagination[T](page.Page(), page.Size())
	total, err := query.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	err = query.
		Offset(page.Offset()).
		Limit(page.Size()).
		Order(page.Sorts()...).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

// Add inserts the entity in a session of its own and commits. The entity
// comes back with generated columns populated.
func (r *baseRepositoryImpl[T, ID]) Add(ctx context.Context, entity *T) (*T, error) {
	sess, err := r.sessions.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	if _, err := r.AddWithSession(ctx, sess, entity); err != nil {
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T, ID]) AddWithSession(ctx context.Context, sess *session.Session, entity *T) (*T, error) {
	if _, err := sess.NewInsert().Model(entity).Exec(ctx); err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T, ID]) AddAll(ctx context.Context, entities ...*T) error {
	sess, err := r.sessions.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	if err := r.AddAllWithSession(ctx, sess, entities...); err != nil {
		return err
	}
	return sess.Commit()
}

func (r *baseRepositoryImpl[T, ID]) AddAllWithSession(ctx context.Context, sess *session.Session, entities ...*T) error {
	if len(entities) == 0 {
		return nil
	}
	models := r.valsToSlice(entities...)
	_, err := sess.NewInsert().Model(&models).Exec(ctx)
	return err
}

// Update writes the entity in a session of its own and commits. With change
// detection enabled on the factory only the modified columns are written.
func (r *baseRepositoryImpl[T, ID]) Update(ctx context.Context, entity *T) (*T, error) {
	sess, err := r.sessions.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	if _, err := r.UpdateWithSession(ctx, sess, entity); err != nil {
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T, ID]) UpdateWithSession(ctx context.Context, sess *session.Session, entity *T) (*T, error) {
	if sess.Options().DetectChanges {
		columns, found, err := r.changedColumns(ctx, sess, entity)
		if err != nil {
			return nil, err
		}
		if found {
			if len(columns) == 0 {
				// nothing changed, no statement to issue
				return entity, nil
			}
			if _, err := sess.NewUpdate().Model(entity).Column(columns...).WherePK().Exec(ctx); err != nil {
				return nil, err
			}
			return entity, nil
		}
		// no stored row to diff against, fall back to a full update
	}
	if _, err := sess.NewUpdate().Model(entity).WherePK().Exec(ctx); err != nil {
		return nil, err
	}
	return entity, nil
}

// changedColumns loads the stored row for entity inside the session and
// reports the data columns whose values differ. found is false when the row
// does not exist.
func (r *baseRepositoryImpl[T, ID]) changedColumns(ctx context.Context, sess *session.Session, entity *T) (columns []string, found bool, err error) {
	table := r.table()
	if len(table.PKs) != 1 {
		return nil, false, fmt.Errorf("entity %s must have exactly one primary key column, found %d", table.TypeName, len(table.PKs))
	}
	pk := table.PKs[0]
	id := pk.Value(reflect.ValueOf(entity).Elem()).Interface()

	var stored T
	err = sess.NewSelect().Model(&stored).Where("? = ?", bun.Ident(pk.Name), id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	storedValue := reflect.ValueOf(&stored).Elem()
	entityValue := reflect.ValueOf(entity).Elem()
	columns = make([]string, 0, len(table.DataFields))
	for _, field := range table.DataFields {
		if !reflect.DeepEqual(field.Value(storedValue).Interface(), field.Value(entityValue).Interface()) {
			columns = append(columns, field.Name)
		}
	}
	return columns, true, nil
}

func (r *baseRepositoryImpl[T, ID]) Upsert(ctx context.Context, fields []string, conflictColumns []string, entities ...*T) error {
	sess, err := r.sessions.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	if err := r.UpsertWithSession(ctx, sess, fields, conflictColumns, entities...); err != nil {
		return err
	}
	return sess.Commit()
}

func (r *baseRepositoryImpl[T, ID]) UpsertWithSession(ctx context.Context, sess *session.Session, fields []string, conflictColumns []string, entities ...*T) error {
	return r.multipleUpsert(ctx, sess, fields, conflictColumns, entities...)
}

// Delete removes the entity's row in a session of its own and commits.
func (r *baseRepositoryImpl[T, ID]) Delete(ctx context.Context, entity *T) error {
	sess, err := r.sessions.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	if err := r.DeleteWithSession(ctx, sess, entity); err != nil {
		return err
	}
	return sess.Commit()
}

func (r *baseRepositoryImpl[T, ID]) DeleteWithSession(ctx context.Context, sess *session.Session, entity *T) error {
	_, err := sess.NewDelete().Model(entity).WherePK().Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T, ID]) DeleteByID(ctx context.Context, id ID) error {
	sess, err := r.sessions.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	if err := r.DeleteByIDWithSession(ctx, sess, id); err != nil {
		return err
	}
	return sess.Commit()
}

func (r *baseRepositoryImpl[T, ID]) DeleteByIDWithSession(ctx context.Context, sess *session.Session, id ID) error {
	column, err := r.pkColumn()
	if err != nil {
		return err
	}
	_, err = sess.NewDelete().Model((*T)(nil)).Where("? = ?", bun.Ident(column), id).Exec(ctx)
	return err
}

// multipleUpsert picks the conflict clause the dialect supports: ON CONFLICT
// DO UPDATE for PostgreSQL and SQLite, ON DUPLICATE KEY UPDATE for MySQL, and
// a per-row insert-then-update fallback everywhere else.
func (r *baseRepositoryImpl[T, ID]) multipleUpsert(ctx context.Context, sess *session.Session, fields []string, conflictColumns []string, entity ...*T) error {
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}
	if len(entity) == 0 {
		return nil
	}
	entities := r.valsToSlice(entity...)

	db := r.sessions.DB()
	if db.HasFeature(feature.InsertOnConflict) {
		return r.upsertWithPostgresqlOrSQLite(ctx, sess.NewInsert(), fields, conflictColumns, entities)
	} else if db.HasFeature(feature.InsertOnDuplicateKey) {
		return r.upsertWithMySQL(ctx, sess.NewInsert(), fields, entities)
	} else {
		// Fallback: Separate insert/update logic
		return r.upsertFallback(ctx, sess, entities)
	}
}

func (r *baseRepositoryImpl[T, ID]) upsertWithMySQL(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, entities []*T) error {
	var queryArgs []string
	for _, field := range fields {
		queryArgs = append(queryArgs, fmt.Sprintf("%s = VALUES(%s)", bun.Ident(field), bun.Ident(field)))
	}
	_, err := insertQuery.
		Model(&entities).
		On("DUPLICATE KEY UPDATE " + strings.Join(queryArgs, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T, ID]) upsertWithPostgresqlOrSQLite(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, conflictColumns []string, entities []*T) error {
	if len(conflictColumns) == 0 {
		column, err := r.pkColumn()
		if err != nil {
			return err
		}
		conflictColumns = []string{column}
	}
	keyNames := strings.Join(conflictColumns, ",")
	var queryArgs []string
	for _, field := range fields {
		queryArgs = append(queryArgs, fmt.Sprintf("%s = EXCLUDED.%s", bun.Ident(field), bun.Ident(field)))
	}
	_, err := insertQuery.
		Model(&entities).
		On("CONFLICT (" + keyNames + ") DO UPDATE").
		Set(strings.Join(queryArgs, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T, ID]) upsertFallback(ctx context.Context, sess *session.Session, entities []*T) error {
	for _, entity := range entities {
		if _, err := sess.NewInsert().Model(entity).Exec(ctx); err != nil {
			if _, updateErr := sess.NewUpdate().Model(entity).WherePK().Exec(ctx); updateErr != nil {
				return fmt.Errorf("upsert failed for entity: insert error: %v, update error: %v", err, updateErr)
			}
		}
	}
	return nil
}
