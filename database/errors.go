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
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// SQLError classifies driver errors across the supported dialects. The
// classification is for caller inspection only: nothing in the library
// rewrites or replaces driver errors on the way out.
type SQLError int

const (
	UnknownErr SQLError = iota
	NoColumnErr
	NoIndexErr
	NoTableErr
	ExistColumnErr
	ExistIndexErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
)

func (e SQLError) String() string {
	switch e {
	case NoColumnErr:
		return "no such column"
	case NoIndexErr:
		return "no such index"
	case NoTableErr:
		return "no such table"
	case ExistColumnErr:
		return "column already exists"
	case ExistIndexErr:
		return "index already exists"
	case ExistTableErr:
		return "table already exists"
	case DuplicateKeyErr:
		return "duplicate key"
	case NotNullViolationErr:
		return "not null violation"
	case ForeignKeyViolationErr:
		return "foreign key violation"
	case CheckConstraintViolationErr:
		return "check constraint violation"
	case DataTruncatedErr:
		return "data truncated"
	case InvalidTypeCastErr:
		return "invalid type cast"
	default:
		return "unknown"
	}
}

var mysqlErrorNumbers = map[uint16]SQLError{
	1054: NoColumnErr,
	1091: NoIndexErr,
	1060: ExistColumnErr,
	1061: ExistIndexErr,
	1050: ExistTableErr,
	1146: NoTableErr,
	1062: DuplicateKeyErr,
	1048: NotNullViolationErr,
	1216: ForeignKeyViolationErr,
	1217: ForeignKeyViolationErr,
	1451: ForeignKeyViolationErr,
	1452: ForeignKeyViolationErr,
	3819: CheckConstraintViolationErr,
	1265: DataTruncatedErr,
}

// textPatterns maps error substrings used by the postgres and sqlite drivers
// to a classification. Every entry in a group must match.
var textPatterns = []struct {
	kind SQLError
	all  [][]string
}{
	{NoColumnErr, [][]string{{"sqlstate 42703"}, {"undefined column"}, {"no such column"}}},
	{NoIndexErr, [][]string{{"sqlstate 42704"}, {"no such index"}, {"does not exist", "index"}}},
	{NoTableErr, [][]string{{"sqlstate 42p01"}, {"undefined table"}, {"no such table"}}},
	{ExistIndexErr, [][]string{{"already exists", "index"}}},
	{ExistTableErr, [][]string{{"already exists", "table"}, {"already exists", "relation"}}},
	{DuplicateKeyErr, [][]string{{"sqlstate 23505"}, {"duplicate key value"}, {"unique constraint failed"}}},
	{NotNullViolationErr, [][]string{{"sqlstate 23502"}, {"not-null constraint"}, {"not null constraint failed"}}},
	{ForeignKeyViolationErr, [][]string{{"sqlstate 23503"}, {"foreign key violation"}, {"foreign key constraint failed"}}},
	{CheckConstraintViolationErr, [][]string{{"sqlstate 23514"}, {"check constraint"}}},
	{DataTruncatedErr, [][]string{{"sqlstate 22001"}, {"string data right truncation"}, {"data truncated"}}},
	{InvalidTypeCastErr, [][]string{{"sqlstate 42804"}, {"datatype mismatch"}}},
}

// IsSQLError reports whether err is a recognized database error and its
// classification. MySQL errors are matched by number, everything else by the
// message text the postgres and sqlite drivers produce.
func IsSQLError(err error) (bool, SQLError) {
	if err == nil {
		return false, UnknownErr
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if kind, ok := mysqlErrorNumbers[mysqlErr.Number]; ok {
			return true, kind
		}
		return true, UnknownErr
	}

	s := strings.ToLower(err.Error())
	for _, p := range textPatterns {
		for _, group := range p.all {
			if containsAll(s, group) {
				return true, p.kind
			}
		}
	}
	return false, UnknownErr
}

func containsAll(s string, subs []string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
