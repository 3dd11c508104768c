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

	"github.com/tomoncle/finch/session"
	"github.com/tomoncle/finch/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Filter restricts a collection view before it is materialized. A nil Filter
// leaves the view unrestricted.
type Filter func(*bun.SelectQuery) *bun.SelectQuery

// CrudRepository defines entity operations that manage their own session:
// each call opens a session, performs one operation, commits mutations, and
// releases the session on every path, including failed commits.
//
// Lookups that find no row return a nil entity and a nil error. All other
// errors surface from the database layer unmodified.
type CrudRepository[T any, ID comparable] interface {
	// Get returns the entity with the given primary key, or nil when no such
	// row exists.
	Get(ctx context.Context, id ID) (*T, error)

	// GetAll returns every entity, in no particular order.
	GetAll(ctx context.Context) ([]*T, error)

	// Find returns the entities matching filter, or every entity when filter
	// is nil.
	Find(ctx context.Context, filter Filter) ([]*T, error)

	// Query returns the entities matching a raw WHERE clause.
	Query(ctx context.Context, where string, args ...interface{}) ([]*T, error)

	// Count returns the number of stored entities.
	Count(ctx context.Context) (int, error)

	// Add inserts the entity and returns it with generated columns populated.
	Add(ctx context.Context, entity *T) (*T, error)

	// AddAll inserts the entities in one statement.
	AddAll(ctx context.Context, entities ...*T) error

	// Update writes the entity's row, keyed by primary key.
	Update(ctx context.Context, entity *T) (*T, error)

	// Upsert inserts the entities, updating the given fields on conflict.
	Upsert(ctx context.Context, fields []string, conflictColumns []string, entities ...*T) error

	// Delete removes the entity's row, keyed by primary key.
	Delete(ctx context.Context, entity *T) error

	// DeleteByID removes the row with the given primary key.
	DeleteByID(ctx context.Context, id ID) error
}

// SessionRepository defines the same operations against a caller-supplied
// session. Nothing is committed or released here: the pending operations
// become durable only when the caller commits the session.
type SessionRepository[T any, ID comparable] interface {
	GetWithSession(ctx context.Context, sess *session.Session, id ID) (*T, error)

	// GetAllWithSession returns the collection view over all entities as a
	// composable query bound to the session. The view is not materialized
	// until the caller scans it.
	GetAllWithSession(sess *session.Session) *bun.SelectQuery

	AddWithSession(ctx context.Context, sess *session.Session, entity *T) (*T, error)
	AddAllWithSession(ctx context.Context, sess *session.Session, entities ...*T) error
	UpdateWithSession(ctx context.Context, sess *session.Session, entity *T) (*T, error)
	UpsertWithSession(ctx context.Context, sess *session.Session, fields []string, conflictColumns []string, entities ...*T) error
	DeleteWithSession(ctx context.Context, sess *session.Session, entity *T) error
	DeleteByIDWithSession(ctx context.Context, sess *session.Session, id ID) error
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines self-managed and session-scoped operations with
// pagination and exposes the session factory for callers composing their own
// units of work.
type Repository[T any, ID comparable] interface {
	CrudRepository[T, ID]
	PageQueryRepository[T]
	SessionRepository[T, ID]
	Sessions() *session.Factory
	Dialect() schema.Dialect
}
