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

package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/finch/types"
)

func TestPageRequestDefaults(t *testing.T) {
	page := types.NewPageRequest(0, 0)
	assert.Equal(t, 1, page.Page())
	assert.Equal(t, 10, page.Size())
	assert.Equal(t, 0, page.Offset())
	assert.Nil(t, page.Condition())
	assert.Empty(t, page.Sorts())
}

func TestPageRequestOffset(t *testing.T) {
	page := types.NewPageRequest(3, 20)
	assert.Equal(t, 3, page.Page())
	assert.Equal(t, 20, page.Size())
	assert.Equal(t, 40, page.Offset())
}

func TestPageRequestOptions(t *testing.T) {
	page := types.NewPageRequest(1, 5,
		types.WithCondition("age >= ?", 18),
		types.WithSorts("age DESC", "id ASC"))

	cond := page.Condition()
	require.NotNil(t, cond)
	assert.Equal(t, "age >= ?", cond.Expr)
	assert.Equal(t, []interface{}{18}, cond.Args)
	assert.Equal(t, []string{"age DESC", "id ASC"}, page.Sorts())
}

func TestPaginationPages(t *testing.T) {
	page := types.NewPagination[int](1, 3)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Pages())

	page.Total = 10
	assert.Equal(t, 4, page.Pages())

	page.Total = 9
	assert.Equal(t, 3, page.Pages())
}

func TestJsonObjectRoundTrip(t *testing.T) {
	obj := types.JsonObject{"name": "finch", "count": float64(3)}

	value, err := obj.Value()
	require.NoError(t, err)

	var fromBytes types.JsonObject
	require.NoError(t, fromBytes.Scan(value))
	assert.Equal(t, obj, fromBytes)

	// SQLite returns JSON columns as TEXT
	var fromString types.JsonObject
	require.NoError(t, fromString.Scan(`{"name":"finch","count":3}`))
	assert.Equal(t, obj, fromString)
}

func TestJsonObjectScanNil(t *testing.T) {
	var obj types.JsonObject
	require.NoError(t, obj.Scan(nil))
	assert.NotNil(t, obj)
	assert.Empty(t, obj)

	require.Error(t, obj.Scan(42))
}

func TestJsonObjectNilValue(t *testing.T) {
	var obj types.JsonObject
	value, err := obj.Value()
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestJsonArrayRoundTrip(t *testing.T) {
	arr := types.JsonArray{{"id": float64(1)}, {"id": float64(2)}}

	value, err := arr.Value()
	require.NoError(t, err)

	var got types.JsonArray
	require.NoError(t, got.Scan(value))
	assert.Equal(t, arr, got)

	var empty types.JsonArray
	require.NoError(t, empty.Scan(nil))
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

type color int

const (
	red color = iota
	green
)

func (c color) IsValid() bool { return c == red || c == green }

func (c color) Number() int {
	if !c.IsValid() {
		return types.IllegalValue
	}
	return int(c)
}

func (c color) Name() string {
	switch c {
	case red:
		return "red"
	case green:
		return "green"
	default:
		return types.IllegalName
	}
}

func (c color) String() string { return c.Name() }

func (c color) Desc() string {
	if !c.IsValid() {
		return types.IllegalDesc
	}
	return "color " + c.Name()
}

func TestLegal(t *testing.T) {
	assert.True(t, types.Legal(red))
	assert.True(t, types.Legal(green))
	assert.False(t, types.Legal(color(42)))
	assert.False(t, types.Legal(nil))
	assert.Equal(t, types.IllegalName, color(42).Name())
}
