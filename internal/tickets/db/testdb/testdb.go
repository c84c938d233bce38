// Package testdb opens throwaway SQLite stores for tests.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-checkin/internal/tickets/db"
)

// Open returns a store backed by a private in-memory SQLite database with the
// schema created. A single connection keeps every statement serialized.
func Open(t *testing.T) *db.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = bunDB.Close() })

	store := db.New(bunDB)
	require.NoError(t, store.CreateSchema(context.Background()))
	return store
}
