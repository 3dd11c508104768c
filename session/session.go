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
	"database/sql"
	"errors"

	"github.com/tomoncle/finch/database"
	"github.com/uptrace/bun"
)

// Session is a single unit of work over one Bun transaction. Statements run
// through the session stay pending until Commit makes them durable; Close
// rolls back whatever was not committed. A Session is not safe for
// concurrent use.
type Session struct {
	id        string
	tx        bun.Tx
	opts      Options
	logger    database.Logger
	committed bool
	closed    bool
}

// ID returns the session identifier used for log correlation.
func (s *Session) ID() string {
	return s.id
}

// Options returns the options the session was opened with.
func (s *Session) Options() Options {
	return s.opts
}

// DB exposes the session transaction as a bun.IDB for query composition.
func (s *Session) DB() bun.IDB {
	return s.tx
}

// Tx returns the underlying Bun transaction.
func (s *Session) Tx() bun.Tx {
	return s.tx
}

// NewSelect builds a SELECT bound to the session transaction.
func (s *Session) NewSelect() *bun.SelectQuery {
	return s.tx.NewSelect()
}

// NewInsert builds an INSERT bound to the session transaction.
func (s *Session) NewInsert() *bun.InsertQuery {
	return s.tx.NewInsert()
}

// NewUpdate builds an UPDATE bound to the session transaction.
func (s *Session) NewUpdate() *bun.UpdateQuery {
	return s.tx.NewUpdate()
}

// NewDelete builds a DELETE bound to the session transaction.
func (s *Session) NewDelete() *bun.DeleteQuery {
	return s.tx.NewDelete()
}

// NewRaw builds a raw query bound to the session transaction.
func (s *Session) NewRaw(query string, args ...interface{}) *bun.RawQuery {
	return s.tx.NewRaw(query, args...)
}

// Commit makes the session's pending operations durable. Committing a
// finished session reports sql.ErrTxDone.
func (s *Session) Commit() error {
	if s.committed || s.closed {
		return sql.ErrTxDone
	}
	if err := s.tx.Commit(); err != nil {
		return err
	}
	s.committed = true
	if s.logger != nil {
		s.logger.Debug("Session committed", "session_id", s.id)
	}
	return nil
}

// Close releases the session. Pending operations that were not committed are
// rolled back. Close is idempotent and is a no-op after Commit, so it can be
// deferred on every path.
func (s *Session) Close() error {
	if s.committed || s.closed {
		return nil
	}
	s.closed = true
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		if s.logger != nil {
			s.logger.Error("Failed to rollback session", "session_id", s.id, "error", err)
		}
		return err
	}
	if s.logger != nil {
		s.logger.Debug("Session rolled back", "session_id", s.id)
	}
	return nil
}

// Done reports whether the session has been committed or closed.
func (s *Session) Done() bool {
	return s.committed || s.closed
}
