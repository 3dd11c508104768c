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

package finch

import (
	"context"
	"sync"

	"github.com/tomoncle/finch/database"
	"github.com/tomoncle/finch/repository"
	"github.com/tomoncle/finch/session"
	"github.com/tomoncle/finch/types"
	"github.com/uptrace/bun"
)

type Service[T any, ID comparable] interface {
	// Get returns a single entity by its identifier, or nil when it does
	// not exist.
	Get(ctx context.Context, id ID) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// Find returns entities that match the provided filter. A nil filter
	// matches everything.
	Find(ctx context.Context, filter repository.Filter) ([]*T, error)

	// Query executes a raw WHERE clause and maps the results to entities.
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	// Count returns the number of stored entities.
	Count(ctx context.Context) (int, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Save inserts a new entity.
	Save(ctx context.Context, model *T) (*T, error)

	// SaveAll inserts the entities in one statement.
	SaveAll(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts entities, updating fields on conflict.
	SaveOrUpdate(ctx context.Context, fields []string, conflictColumns []string, model ...*T) error

	// Update modifies an existing entity.
	Update(ctx context.Context, model *T) (*T, error)

	// Delete removes an entity.
	Delete(ctx context.Context, model *T) error

	// DeleteByID removes an entity by its identifier.
	DeleteByID(ctx context.Context, id ID) error

	// Begin opens a session for callers composing several operations into
	// one unit of work. The caller must Commit and Close it.
	Begin(ctx context.Context) (*session.Session, error)

	// GetWithSession looks up an entity within an existing session.
	GetWithSession(ctx context.Context, sess *session.Session, id ID) (*T, error)

	// AllWithSession returns the collection view bound to an existing
	// session for the caller to compose and scan.
	AllWithSession(sess *session.Session) *bun.SelectQuery

	// SaveWithSession inserts an entity within an existing session.
	SaveWithSession(ctx context.Context, sess *session.Session, model *T) (*T, error)

	// SaveAllWithSession inserts entities within an existing session.
	SaveAllWithSession(ctx context.Context, sess *session.Session, model ...*T) error

	// SaveOrUpdateWithSession upserts entities within an existing session.
	SaveOrUpdateWithSession(ctx context.Context, sess *session.Session, fields []string, conflictColumns []string, model ...*T) error

	// UpdateWithSession updates an entity within an existing session.
	UpdateWithSession(ctx context.Context, sess *session.Session, model *T) (*T, error)

	// DeleteWithSession removes an entity within an existing session.
	DeleteWithSession(ctx context.Context, sess *session.Session, model *T) error

	// DeleteByIDWithSession removes an entity by identifier within an
	// existing session.
	DeleteByIDWithSession(ctx context.Context, sess *session.Session, id ID) error

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery

	// InsertBuilder returns a Bun insert query builder for the entity.
	InsertBuilder() *bun.InsertQuery

	// UpdateBuilder returns a Bun update query builder for the entity.
	UpdateBuilder() *bun.UpdateQuery

	// DeleteBuilder returns a Bun delete query builder for the entity.
	DeleteBuilder() *bun.DeleteQuery
}

type baseServiceImpl[T any, ID comparable] struct {
	repo repository.Repository[T, ID]
	opts *session.Options
	once sync.Once
}

// NewService returns a default Service implementation using the generic
// repository backed by the global database connection. Sessions use the
// defaults from the database configuration.
func NewService[T any, ID comparable]() Service[T, ID] {
	return &baseServiceImpl[T, ID]{}
}

// NewServiceWithOptions returns a Service whose sessions use the given
// options instead of the configured defaults.
func NewServiceWithOptions[T any, ID comparable](opts session.Options) Service[T, ID] {
	return &baseServiceImpl[T, ID]{opts: &opts}
}

// Sessions returns a session factory over the global database connection
// using the configured session defaults.
func Sessions() *session.Factory {
	return session.NewFactory(database.GetDB(), sessionOptions())
}

// SessionsWithOptions returns a session factory over the global database
// connection using the given options.
func SessionsWithOptions(opts session.Options) *session.Factory {
	return session.NewFactory(database.GetDB(), opts)
}

func sessionOptions() session.Options {
	defaults := database.SessionDefaults()
	return session.Options{
		DetectChanges: defaults.DetectChanges,
		LoadRelations: defaults.LoadRelations,
	}
}

// baseRepo binds the repository on first use so services can be declared
// before InitDB has run.
func (s *baseServiceImpl[T, ID]) baseRepo() repository.Repository[T, ID] {
	s.once.Do(func() {
		opts := sessionOptions()
		if s.opts != nil {
			opts = *s.opts
		}
		s.repo = repository.NewRepository[T, ID](session.NewFactory(database.GetDB(), opts))
	})
	return s.repo
}

func (s *baseServiceImpl[T, ID]) Get(ctx context.Context, id ID) (*T, error) {
	return s.baseRepo().Get(ctx, id)
}

func (s *baseServiceImpl[T, ID]) All(ctx context.Context) ([]*T, error) {
	return s.baseRepo().GetAll(ctx)
}

func (s *baseServiceImpl[T, ID]) Find(ctx context.Context, filter repository.Filter) ([]*T, error) {
	return s.baseRepo().Find(ctx, filter)
}

func (s *baseServiceImpl[T, ID]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	return s.baseRepo().Query(ctx, query, args...)
}

func (s *baseServiceImpl[T, ID]) Count(ctx context.Context) (int, error) {
	return s.baseRepo().Count(ctx)
}

func (s *baseServiceImpl[T, ID]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	return s.baseRepo().Page(ctx, page)
}

func (s *baseServiceImpl[T, ID]) Save(ctx context.Context, model *T) (*T, error) {
	return s.baseRepo().Add(ctx, model)
}

func (s *baseServiceImpl[T, ID]) SaveAll(ctx context.Context, model ...*T) error {
	return s.baseRepo().AddAll(ctx, model...)
}

func (s *baseServiceImpl[T, ID]) SaveOrUpdate(ctx context.Context, fields []string, conflictColumns []string, model ...*T) error {
	return s.baseRepo().Upsert(ctx, fields, conflictColumns, model...)
}

func (s *baseServiceImpl[T, ID]) Update(ctx context.Context, model *T) (*T, error) {
	return s.baseRepo().Update(ctx, model)
}

func (s *baseServiceImpl[T, ID]) Delete(ctx context.Context, model *T) error {
	return s.baseRepo().Delete(ctx, model)
}

func (s *baseServiceImpl[T, ID]) DeleteByID(ctx context.Context, id ID) error {
	return s.baseRepo().DeleteByID(ctx, id)
}

func (s *baseServiceImpl[T, ID]) Begin(ctx context.Context) (*session.Session, error) {
	return s.baseRepo().Sessions().Begin(ctx)
}

func (s *baseServiceImpl[T, ID]) GetWithSession(ctx context.Context, sess *session.Session, id ID) (*T, error) {
	return s.baseRepo().GetWithSession(ctx, sess, id)
}

func (s *baseServiceImpl[T, ID]) AllWithSession(sess *session.Session) *bun.SelectQuery {
	return s.baseRepo().GetAllWithSession(sess)
}

func (s *baseServiceImpl[T, ID]) SaveWithSession(ctx context.Context, sess *session.Session, model *T) (*T, error) {
	return s.baseRepo().AddWithSession(ctx, sess, model)
}

func (s *baseServiceImpl[T, ID]) SaveAllWithSession(ctx context.Context, sess *session.Session, model ...*T) error {
	return s.baseRepo().AddAllWithSession(ctx, sess, model...)
}

func (s *baseServiceImpl[T, ID]) SaveOrUpdateWithSession(ctx context.Context, sess *session.Session, fields []string, conflictColumns []string, model ...*T) error {
	return s.baseRepo().UpsertWithSession(ctx, sess, fields, conflictColumns, model...)
}

func (s *baseServiceImpl[T, ID]) UpdateWithSession(ctx context.Context, sess *session.Session, model *T) (*T, error) {
	return s.baseRepo().UpdateWithSession(ctx, sess, model)
}

func (s *baseServiceImpl[T, ID]) DeleteWithSession(ctx context.Context, sess *session.Session, model *T) error {
	return s.baseRepo().DeleteWithSession(ctx, sess, model)
}

func (s *baseServiceImpl[T, ID]) DeleteByIDWithSession(ctx context.Context, sess *session.Session, id ID) error {
	return s.baseRepo().DeleteByIDWithSession(ctx, sess, id)
}

func (s *baseServiceImpl[T, ID]) SelectBuilder() *bun.SelectQuery {
	return s.baseRepo().Sessions().DB().NewSelect()
}

func (s *baseServiceImpl[T, ID]) InsertBuilder() *bun.InsertQuery {
	return s.baseRepo().Sessions().DB().NewInsert()
}

func (s *baseServiceImpl[T, ID]) UpdateBuilder() *bun.UpdateQuery {
	return s.baseRepo().Sessions().DB().NewUpdate()
}

func (s *baseServiceImpl[T, ID]) DeleteBuilder() *bun.DeleteQuery {
	return s.baseRepo().Sessions().DB().NewDelete()
}
