// Package persisttest opens throwaway in-memory SQLite stores for tests.
package persisttest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/h0rv/kanban/internal/persist"
)

// New returns a migrated store backed by a private in-memory database.
func New(t *testing.T, opts ...persist.Option) *persist.Store {
	t.Helper()

	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := persist.Open(ctx, persist.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = persist.Migrate(ctx, db, persist.DriverSQLite)
	require.NoError(t, err)

	s, err := persist.New(db, persist.DriverSQLite, opts...)
	require.NoError(t, err)
	return s
}
