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

package types

// Condition is a WHERE fragment with placeholder arguments, kept free of any
// ORM types so callers can build page requests without importing bun.
type Condition struct {
	Expr string
	Args []interface{}
}

// NewCondition builds a Condition from an expression and its arguments.
func NewCondition(expr string, args ...interface{}) *Condition {
	return &Condition{Expr: expr, Args: args}
}

// PageRequest describes one page of a listing: page number, page size and
// optional condition and ordering. The zero page/size fall back to page 1
// with 10 items.
type PageRequest struct {
	page  int
	size  int
	cond  *Condition
	sorts []string // "id ASC", "name DESC"
}

// PageOption customizes a PageRequest.
type PageOption func(*PageRequest)

// WithCondition restricts the page to rows matching expr.
func WithCondition(expr string, args ...interface{}) PageOption {
	return func(p *PageRequest) { p.cond = NewCondition(expr, args...) }
}

// WithSorts sets the ordering clauses, applied in the given sequence.
func WithSorts(sorts ...string) PageOption {
	return func(p *PageRequest) { p.sorts = sorts }
}

// NewPageRequest builds a PageRequest for the given page number and size.
func NewPageRequest(page, size int, opts ...PageOption) *PageRequest {
	p := &PageRequest{page: page, size: size}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Page returns the page number, at least 1.
func (p *PageRequest) Page() int {
	if p.page < 1 {
		return 1
	}
	return p.page
}

// Size returns the page size, defaulting to 10.
func (p *PageRequest) Size() int {
	if p.size < 1 {
		return 10
	}
	return p.size
}

// Offset returns the row offset of the first item on the page.
func (p *PageRequest) Offset() int {
	return (p.Page() - 1) * p.Size()
}

// Condition returns the optional row condition, nil when unrestricted.
func (p *PageRequest) Condition() *Condition {
	return p.cond
}

// Sorts returns the ordering clauses.
func (p *PageRequest) Sorts() []string {
	return p.sorts
}

// Pagination carries one page of items together with the total row count of
// the unpaged listing.
type Pagination[T any] struct {
	Page  int
	Size  int
	Total int
	Items []*T
}

// NewPagination builds an empty page container.
func NewPagination[T any](page, size int) *Pagination[T] {
	return &Pagination[T]{Page: page, Size: size, Items: make([]*T, 0)}
}

// Pages returns the number of pages the Total rows span at the page size.
func (p *Pagination[T]) Pages() int {
	if p.Size < 1 || p.Total < 1 {
		return 0
	}
	return (p.Total + p.Size - 1) / p.Size
}
