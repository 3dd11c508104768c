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
	"fmt"

	"github.com/google/uuid"
	"github.com/tomoncle/finch/database"
	"github.com/uptrace/bun"
)

// Factory opens sessions over an injected database handle. The options are
// fixed at construction and apply to every session the factory opens.
type Factory struct {
	db     *bun.DB
	opts   Options
	logger database.Logger
}

// NewFactory builds a session factory over db with the given options.
func NewFactory(db *bun.DB, opts Options) *Factory {
	return &Factory{db: db, opts: opts, logger: database.GetLogger()}
}

// Begin opens a new session. Errors from the underlying database surface
// unchanged.
func (f *Factory) Begin(ctx context.Context) (*Session, error) {
	if f.db == nil {
		return nil, fmt.Errorf("session factory has no database handle")
	}
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	s := &Session{
		id:     uuid.NewString(),
		tx:     tx,
		opts:   f.opts,
		logger: f.logger,
	}
	if f.logger != nil {
		f.logger.Debug("Session started", "session_id", s.id)
	}
	return s, nil
}

// Options returns the fixed options applied to every session.
func (f *Factory) Options() Options {
	return f.opts
}

// DB returns the database handle the factory opens sessions on.
func (f *Factory) DB() *bun.DB {
	return f.db
}

// SetLogger replaces the logger used by the factory and the sessions it
// opens from now on.
func (f *Factory) SetLogger(logger database.Logger) {
	f.logger = logger
}
