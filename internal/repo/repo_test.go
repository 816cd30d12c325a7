package repo

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/database"
	"github.com/stretchr/testify/require"
)

var testTiers = []string{"trader", "pro", "enterprise"}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	svc, err := database.New(context.Background(), database.Options{
		Engine:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "licenses.db"),
		Tiers:      testTiers,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc.DB()
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
