package recalc

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*bun.DB, RepositoryManager) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	require.NoError(t, Migrate(context.Background(), db))

	t.Cleanup(func() {
		_ = db.Close()
		_ = sqldb.Close()
	})

	repo := NewRepositoryManager(db)
	repo.MustValidate()

	return db, repo
}

var testPasswordHash struct {
	once sync.Once
	hash string
	err  error
}

// hashing is expensive at the configured cost; do it once per test run
func testHash(t *testing.T) string {
	t.Helper()
	testPasswordHash.once.Do(func() {
		testPasswordHash.hash, testPasswordHash.err = HashPassword("Sup3r$ecret")
	})
	require.NoError(t, testPasswordHash.err)
	return testPasswordHash.hash
}

func seedUser(t *testing.T, repo RepositoryManager, username string, role Role, verified bool) *User {
	t.Helper()

	hash := testHash(t)

	user, err := repo.Users().Create(context.Background(), &User{
		ID:           uuid.New(),
		Mail:         username + "@example.com",
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Verified:     verified,
	})
	require.NoError(t, err)

	return user
}

func seedCategory(t *testing.T, repo RepositoryManager, name string, percentage, max float64) *Category {
	t.Helper()

	category, err := repo.Categories().Create(context.Background(), &Category{
		ID:               uuid.New(),
		Name:             name,
		Percentage:       percentage,
		MaxReimbursement: max,
	})
	require.NoError(t, err)

	return category
}
