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

package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/finch/repository"
	"github.com/tomoncle/finch/session"
	"github.com/tomoncle/finch/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID      int64    `bun:"id,pk,autoincrement"`
	Name    string   `bun:"name,notnull"`
	Email   string   `bun:"email,notnull,unique"`
	Age     int      `bun:"age"`
	Profile *Profile `bun:"rel:has-one,join:id=user_id"`
}

type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`

	ID     int64  `bun:"id,pk,autoincrement"`
	UserID int64  `bun:"user_id,notnull"`
	Bio    string `bun:"bio"`
}

// queryRecorder collects the SQL issued through a connection so tests can
// assert which statements an operation produced.
type queryRecorder struct {
	mu      sync.Mutex
	queries []string
}

func (r *queryRecorder) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (r *queryRecorder) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, event.Query)
}

func (r *queryRecorder) updates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updates []string
	for _, query := range r.queries {
		if strings.HasPrefix(query, "UPDATE") {
			updates = append(updates, query)
		}
	}
	return updates
}

func openDBAt(t *testing.T, path string) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createTables(t *testing.T, db *bun.DB) {
	t.Helper()
	ctx := context.Background()
	for _, model := range []interface{}{(*User)(nil), (*Profile)(nil)} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
}

func newTestRepo(t *testing.T, opts session.Options) (repository.Repository[User, int64], *bun.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repository.db")
	db := openDBAt(t, path)
	createTables(t, db)
	return repository.NewRepository[User, int64](session.NewFactory(db, opts)), db, path
}

func seedUsers(t *testing.T, repo repository.Repository[User, int64], n int) []*User {
	t.Helper()
	users := make([]*User, 0, n)
	for i := 1; i <= n; i++ {
		user, err := repo.Add(context.Background(), &User{
			Name:  fmt.Sprintf("user-%d", i),
			Email: fmt.Sprintf("user-%d@example.com", i),
			Age:   i,
		})
		require.NoError(t, err)
		users = append(users, user)
	}
	return users
}

func TestAddAndGet(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()

	user, err := repo.Add(ctx, &User{Name: "alice", Email: "alice@example.com", Age: 30})
	require.NoError(t, err)
	require.NotZero(t, user.ID)

	got, err := repo.Get(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, 30, got.Age)
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})

	got, err := repo.Get(context.Background(), 12345)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetAllReturnsEverything(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	seedUsers(t, repo, 3)

	users, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestDeleteRemovesOnlyTargetEntity(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()
	users := seedUsers(t, repo, 3)

	require.NoError(t, repo.Delete(ctx, users[1]))

	remaining, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	ids := []int64{remaining[0].ID, remaining[1].ID}
	assert.ElementsMatch(t, []int64{users[0].ID, users[2].ID}, ids)
}

func TestDeleteByID(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()
	users := seedUsers(t, repo, 2)

	require.NoError(t, repo.DeleteByID(ctx, users[0].ID))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// deleting an id that no longer exists is not an error
	require.NoError(t, repo.DeleteByID(ctx, users[0].ID))
}

func TestSelfManagedOperationsCommitPerCall(t *testing.T) {
	repo, _, path := newTestRepo(t, session.Options{})
	reader := openDBAt(t, path)
	ctx := context.Background()

	_, err := repo.Add(ctx, &User{Name: "dave", Email: "dave@example.com"})
	require.NoError(t, err)

	// durable immediately, observable over an independent connection
	count, err := reader.NewSelect().Model((*User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWithSessionDefersDurabilityUntilCommit(t *testing.T) {
	repo, _, path := newTestRepo(t, session.Options{})
	reader := openDBAt(t, path)
	ctx := context.Background()

	sess, err := repo.Sessions().Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	_, err = repo.AddWithSession(ctx, sess, &User{Name: "erin", Email: "erin@example.com"})
	require.NoError(t, err)
	_, err = repo.AddWithSession(ctx, sess, &User{Name: "frank", Email: "frank@example.com"})
	require.NoError(t, err)

	count, err := reader.NewSelect().Model((*User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, sess.Commit())

	count, err = reader.NewSelect().Model((*User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSessionCloseDiscardsPendingOperations(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()

	sess, err := repo.Sessions().Begin(ctx)
	require.NoError(t, err)

	_, err = repo.AddWithSession(ctx, sess, &User{Name: "gone", Email: "gone@example.com"})
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestFailedOperationReleasesSession(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()

	_, err := repo.Add(ctx, &User{Name: "first", Email: "taken@example.com"})
	require.NoError(t, err)

	// violates the unique email constraint
	_, err = repo.Add(ctx, &User{Name: "second", Email: "taken@example.com"})
	require.Error(t, err)

	// the failed call rolled back and released its session, so new work
	// is not blocked by a leaked write lock
	_, err = repo.Add(ctx, &User{Name: "third", Email: "free@example.com"})
	require.NoError(t, err)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestErrorsSurfaceUnmodified(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})

	_, err := repo.Query(context.Background(), "no_such_column = ?", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such column")
}

func TestGetAllWithSessionReturnsComposableView(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()

	sess, err := repo.Sessions().Begin(ctx)
	require.NoError(t, err)

	_, err = repo.AddWithSession(ctx, sess, &User{Name: "young", Email: "young@example.com", Age: 10})
	require.NoError(t, err)
	_, err = repo.AddWithSession(ctx, sess, &User{Name: "old", Email: "old@example.com", Age: 70})
	require.NoError(t, err)

	// the view is built first and only runs when scanned, and it observes
	// the session's own pending rows
	view := repo.GetAllWithSession(sess).Where("age > ?", 18)
	var older []*User
	require.NoError(t, view.Scan(ctx, &older))
	require.Len(t, older, 1)
	assert.Equal(t, "old", older[0].Name)

	require.NoError(t, sess.Close())

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestFindMatchesFilter(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()
	seedUsers(t, repo, 5)

	filtered, err := repo.Find(ctx, func(query *bun.SelectQuery) *bun.SelectQuery {
		return query.Where("age >= ?", 3)
	})
	require.NoError(t, err)
	assert.Len(t, filtered, 3)

	queried, err := repo.Query(ctx, "age >= ?", 3)
	require.NoError(t, err)
	require.Len(t, queried, 3)

	var filteredEmails, queriedEmails []string
	for i := range filtered {
		filteredEmails = append(filteredEmails, filtered[i].Email)
		queriedEmails = append(queriedEmails, queried[i].Email)
	}
	assert.ElementsMatch(t, filteredEmails, queriedEmails)
}

func TestFindNilFilterReturnsAll(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	seedUsers(t, repo, 4)

	users, err := repo.Find(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, users, 4)
}

func TestCount(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	seedUsers(t, repo, 2)
	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAddAll(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()

	require.NoError(t, repo.AddAll(ctx))

	users := []*User{
		{Name: "a", Email: "a@example.com"},
		{Name: "b", Email: "b@example.com"},
		{Name: "c", Email: "c@example.com"},
	}
	require.NoError(t, repo.AddAll(ctx, users...))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	for _, user := range users {
		assert.NotZero(t, user.ID)
	}
}

func TestUpdatePersistsChanges(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()

	user, err := repo.Add(ctx, &User{Name: "before", Email: "update@example.com", Age: 20})
	require.NoError(t, err)

	user.Name = "after"
	user.Age = 21
	_, err = repo.Update(ctx, user)
	require.NoError(t, err)

	got, err := repo.Get(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "after", got.Name)
	assert.Equal(t, 21, got.Age)
}

func TestUpdateWritesAllColumnsByDefault(t *testing.T) {
	repo, db, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()

	user, err := repo.Add(ctx, &User{Name: "plain", Email: "plain@example.com", Age: 40})
	require.NoError(t, err)

	recorder := &queryRecorder{}
	db.AddQueryHook(recorder)

	user.Name = "renamed"
	_, err = repo.Update(ctx, user)
	require.NoError(t, err)

	updates := recorder.updates()
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0], `"name"`)
	assert.Contains(t, updates[0], `"age"`)
	assert.Contains(t, updates[0], `"email"`)
}

func TestDetectChangesWritesOnlyChangedColumns(t *testing.T) {
	repo, db, _ := newTestRepo(t, session.Options{DetectChanges: true})
	ctx := context.Background()

	user, err := repo.Add(ctx, &User{Name: "tracked", Email: "tracked@example.com", Age: 33})
	require.NoError(t, err)

	recorder := &queryRecorder{}
	db.AddQueryHook(recorder)

	user.Name = "tracked-renamed"
	_, err = repo.Update(ctx, user)
	require.NoError(t, err)

	updates := recorder.updates()
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0], `"name"`)
	assert.NotContains(t, updates[0], `"age"`)
	assert.NotContains(t, updates[0], `"email"`)

	got, err := repo.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "tracked-renamed", got.Name)
	assert.Equal(t, 33, got.Age)
}

func TestDetectChangesIssuesNoUpdateWhenUnchanged(t *testing.T) {
	repo, db, _ := newTestRepo(t, session.Options{DetectChanges: true})
	ctx := context.Background()

	user, err := repo.Add(ctx, &User{Name: "static", Email: "static@example.com", Age: 50})
	require.NoError(t, err)

	got, err := repo.Get(ctx, user.ID)
	require.NoError(t, err)

	recorder := &queryRecorder{}
	db.AddQueryHook(recorder)

	_, err = repo.Update(ctx, got)
	require.NoError(t, err)
	assert.Empty(t, recorder.updates())
}

func TestDetectChangesFallsBackWhenRowMissing(t *testing.T) {
	repo, db, _ := newTestRepo(t, session.Options{DetectChanges: true})
	ctx := context.Background()

	recorder := &queryRecorder{}
	db.AddQueryHook(recorder)

	// no stored row to diff against, a full update still runs
	_, err := repo.Update(ctx, &User{ID: 9999, Name: "ghost", Email: "ghost@example.com"})
	require.NoError(t, err)

	updates := recorder.updates()
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0], `"name"`)
	assert.Contains(t, updates[0], `"age"`)
}

func TestLoadRelationsFetchesRelatedObjects(t *testing.T) {
	repo, db, _ := newTestRepo(t, session.Options{LoadRelations: true})
	ctx := context.Background()

	user, err := repo.Add(ctx, &User{Name: "linked", Email: "linked@example.com"})
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&Profile{UserID: user.ID, Bio: "gopher"}).Exec(ctx)
	require.NoError(t, err)

	got, err := repo.Get(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Profile)
	assert.Equal(t, "gopher", got.Profile.Bio)

	// a factory without relation loading leaves related objects untouched
	plain := repository.NewRepository[User, int64](session.NewFactory(db, session.Options{}))
	got, err = plain.Get(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Profile)
}

func TestPage(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()
	seedUsers(t, repo, 10)

	page, err := repo.Page(ctx, types.NewPageRequest(2, 3, types.WithSorts("id ASC")))
	require.NoError(t, err)
	assert.Equal(t, 10, page.Total)
	assert.Equal(t, 4, page.Pages())
	require.Len(t, page.Items, 3)
	assert.Equal(t, "user-4", page.Items[0].Name)
	assert.Equal(t, "user-6", page.Items[2].Name)
}

func TestPageWithCondition(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()
	seedUsers(t, repo, 10)

	page, err := repo.Page(ctx, types.NewPageRequest(1, 5,
		types.WithCondition("age >= ?", 6),
		types.WithSorts("age DESC")))
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Items, 5)
	assert.Equal(t, 10, page.Items[0].Age)
	assert.Equal(t, 6, page.Items[4].Age)
}

func TestPageEmptyResult(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})

	page, err := repo.Page(context.Background(), types.NewPageRequest(1, 10,
		types.WithCondition("age > ?", 100)))
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Items)
}

func TestUpsert(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()

	existing, err := repo.Add(ctx, &User{Name: "original", Email: "upsert@example.com", Age: 25})
	require.NoError(t, err)

	err = repo.Upsert(ctx, []string{"name"}, nil,
		&User{ID: existing.ID, Name: "replaced", Email: "ignored@example.com", Age: 99},
		&User{Name: "fresh", Email: "fresh@example.com", Age: 18})
	require.NoError(t, err)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := repo.Get(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "replaced", got.Name)
	// only the listed fields change on conflict
	assert.Equal(t, "upsert@example.com", got.Email)
	assert.Equal(t, 25, got.Age)
}

func TestUpsertValidation(t *testing.T) {
	repo, _, _ := newTestRepo(t, session.Options{})
	ctx := context.Background()

	err := repo.Upsert(ctx, nil, nil, &User{Name: "x", Email: "x@example.com"})
	require.Error(t, err)

	// upserting nothing is a no-op
	require.NoError(t, repo.Upsert(ctx, []string{"name"}, nil))
}

func TestUpsertWithSession(t *testing.T) {
	repo, _, path := newTestRepo(t, session.Options{})
	reader := openDBAt(t, path)
	ctx := context.Background()

	sess, err := repo.Sessions().Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	err = repo.UpsertWithSession(ctx, sess, []string{"name"}, nil,
		&User{Name: "pending", Email: "pending@example.com"})
	require.NoError(t, err)

	count, err := reader.NewSelect().Model((*User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, sess.Commit())
	count, err = reader.NewSelect().Model((*User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

type device struct {
	bun.BaseModel `bun:"table:devices"`

	Region string `bun:"region,pk"`
	Serial string `bun:"serial,pk"`
	Label  string `bun:"label"`
}

func TestCompositePrimaryKeyRejected(t *testing.T) {
	_, db, _ := newTestRepo(t, session.Options{})
	repo := repository.NewRepository[device, string](session.NewFactory(db, session.Options{}))

	_, err := repo.Get(context.Background(), "dev-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one primary key")
}
