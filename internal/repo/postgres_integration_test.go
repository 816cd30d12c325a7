//go:build integration

package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/database"
	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestPostgres_LicenseAndOrderFlow(t *testing.T) {
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("licenses"),
		postgres.WithUsername("licensed"),
		postgres.WithPassword("licensed"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	svc, err := database.New(ctx, database.Options{Engine: "postgres", DSN: dsn, Tiers: testTiers})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	assert.Equal(t, "up", svc.Health()["status"])

	licenses := NewLicenseRepo(svc.DB())
	orders := NewOrderRepo(svc.DB())
	key := "AAAA-BBBB-CCCC-DDDD"

	require.NoError(t, licenses.Create(ctx, newLicense(key, "pro", baseTime)))
	assert.ErrorIs(t, licenses.Create(ctx, newLicense(key, "pro", baseTime)), domain.ErrDuplicateKey)
	assert.ErrorIs(t, licenses.Create(ctx, newLicense("ZZZZ-ZZZZ-ZZZZ-ZZZZ", "gold", baseTime)), domain.ErrInvalidTier)

	// Concurrent binds: exactly one device wins.
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int64
	)
	for _, hw := range []string{"HW-A", "HW-B", "HW-C", "HW-D"} {
		wg.Add(1)
		go func(hw string) {
			defer wg.Done()
			n, err := licenses.BindHardwareIfUnbound(ctx, key, hw, time.Now())
			assert.NoError(t, err)
			mu.Lock()
			wins += n
			mu.Unlock()
		}(hw)
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins)

	require.NoError(t, orders.Create(ctx, newOrder("ORDER-1", "ada@example.com", baseTime)))
	assert.ErrorIs(t, orders.Create(ctx, newOrder("ORDER-1", "ada@example.com", baseTime)), domain.ErrDuplicateOrder)

	completed, err := orders.Complete(ctx, "ORDER-1", key, "TX1", baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, completed.IsCompleted())

	_, err = orders.Complete(ctx, "ORDER-1", "ZZZZ-ZZZZ-ZZZZ-ZZZZ", "TX2", baseTime)
	assert.ErrorIs(t, err, domain.ErrOrderNotPending)

	// Reopening with a wider tier list replaces the constraint.
	wider, err := database.New(ctx, database.Options{Engine: "postgres", DSN: dsn, Tiers: append(testTiers, "platinum")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = wider.Close() })
	require.NoError(t, NewLicenseRepo(wider.DB()).Create(ctx, newLicense("PPPP-QQQQ-RRRR-SSSS", "platinum", baseTime)))
}
