package repo

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/database"
	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLicense(key, tier string, created time.Time) *domain.License {
	return &domain.License{
		Key:        key,
		Tier:       tier,
		Price:      250,
		OwnerEmail: domain.StringPtr("buyer@example.com"),
		IsActive:   true,
		CreatedAt:  created,
	}
}

func TestLicenseRepo_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	licenses := NewLicenseRepo(newTestDB(t))

	expires := baseTime.AddDate(1, 0, 0)
	l := newLicense("ABCD-EFGH-JKLM-NPQR", "pro", baseTime)
	l.ExpiresAt = &expires
	require.NoError(t, licenses.Create(ctx, l))
	assert.NotZero(t, l.ID)

	got, err := licenses.FindByKey(ctx, "ABCD-EFGH-JKLM-NPQR")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "pro", got.Tier)
	assert.Equal(t, 250.0, got.Price)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.HardwareID)
	assert.Nil(t, got.LastValidatedAt)
	assert.Equal(t, "buyer@example.com", got.OwnerEmailValue())
	assert.True(t, got.CreatedAt.Equal(baseTime))
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(expires))

	missing, err := licenses.FindByKey(ctx, "ZZZZ-ZZZZ-ZZZZ-ZZZZ")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLicenseRepo_CreateRejectsDuplicateKey(t *testing.T) {
	ctx := context.Background()
	licenses := NewLicenseRepo(newTestDB(t))

	require.NoError(t, licenses.Create(ctx, newLicense("AAAA-BBBB-CCCC-DDDD", "pro", baseTime)))

	err := licenses.Create(ctx, newLicense("AAAA-BBBB-CCCC-DDDD", "trader", baseTime))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestLicenseRepo_CreateRejectsUnknownTier(t *testing.T) {
	ctx := context.Background()
	licenses := NewLicenseRepo(newTestDB(t))

	err := licenses.Create(ctx, newLicense("AAAA-BBBB-CCCC-DDDD", "platinum", baseTime))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTier)
}

func TestLicenseRepo_BindHardwareIfUnbound(t *testing.T) {
	ctx := context.Background()
	licenses := NewLicenseRepo(newTestDB(t))
	require.NoError(t, licenses.Create(ctx, newLicense("AAAA-BBBB-CCCC-DDDD", "pro", baseTime)))

	bindAt := baseTime.Add(time.Hour)
	n, err := licenses.BindHardwareIfUnbound(ctx, "AAAA-BBBB-CCCC-DDDD", "HW-A", bindAt)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = licenses.BindHardwareIfUnbound(ctx, "AAAA-BBBB-CCCC-DDDD", "HW-B", bindAt.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err := licenses.FindByKey(ctx, "AAAA-BBBB-CCCC-DDDD")
	require.NoError(t, err)
	assert.True(t, got.BoundTo("HW-A"))
	require.NotNil(t, got.LastValidatedAt)
	assert.True(t, got.LastValidatedAt.Equal(bindAt))

	n, err = licenses.BindHardwareIfUnbound(ctx, "NOPE-NOPE-NOPE-NOPE", "HW-A", bindAt)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestLicenseRepo_AdminMutations(t *testing.T) {
	ctx := context.Background()
	licenses := NewLicenseRepo(newTestDB(t))
	key := "AAAA-BBBB-CCCC-DDDD"
	require.NoError(t, licenses.Create(ctx, newLicense(key, "pro", baseTime)))
	_, err := licenses.BindHardwareIfUnbound(ctx, key, "HW-A", baseTime)
	require.NoError(t, err)

	found, err := licenses.SetActive(ctx, key, false)
	require.NoError(t, err)
	assert.True(t, found)

	// Repeating the same state still matches the row.
	found, err = licenses.SetActive(ctx, key, false)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = licenses.ResetHardware(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)

	expires := baseTime.Add(48 * time.Hour)
	found, err = licenses.SetExpiry(ctx, key, &expires)
	require.NoError(t, err)
	assert.True(t, found)

	touchAt := baseTime.Add(2 * time.Hour)
	require.NoError(t, licenses.TouchLastValidated(ctx, key, touchAt))

	got, err := licenses.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.False(t, got.IsBound())
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(expires))
	assert.True(t, got.LastValidatedAt.Equal(touchAt))

	found, err = licenses.SetExpiry(ctx, key, nil)
	require.NoError(t, err)
	assert.True(t, found)
	got, err = licenses.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got.ExpiresAt)

	found, err = licenses.Delete(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)

	got, err = licenses.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	for name, op := range map[string]func() (bool, error){
		"activate": func() (bool, error) { return licenses.SetActive(ctx, key, true) },
		"reset":    func() (bool, error) { return licenses.ResetHardware(ctx, key) },
		"expiry":   func() (bool, error) { return licenses.SetExpiry(ctx, key, nil) },
		"delete":   func() (bool, error) { return licenses.Delete(ctx, key) },
	} {
		found, err := op()
		require.NoError(t, err, name)
		assert.False(t, found, name)
	}
}

func TestLicenseRepo_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	licenses := NewLicenseRepo(newTestDB(t))

	empty, err := licenses.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, licenses.Create(ctx, newLicense("AAAA-AAAA-AAAA-AAAA", "trader", baseTime)))
	require.NoError(t, licenses.Create(ctx, newLicense("CCCC-CCCC-CCCC-CCCC", "enterprise", baseTime.Add(2*time.Hour))))
	require.NoError(t, licenses.Create(ctx, newLicense("BBBB-BBBB-BBBB-BBBB", "pro", baseTime.Add(time.Hour))))

	all, err := licenses.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "CCCC-CCCC-CCCC-CCCC", all[0].Key)
	assert.Equal(t, "BBBB-BBBB-BBBB-BBBB", all[1].Key)
	assert.Equal(t, "AAAA-AAAA-AAAA-AAAA", all[2].Key)
}

func TestLicenseRepo_TierListChangesOnReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "licenses.db")

	open := func(tiers []string) *sql.DB {
		svc, err := database.New(ctx, database.Options{Engine: "sqlite", SQLitePath: path, Tiers: tiers})
		require.NoError(t, err)
		t.Cleanup(func() { _ = svc.Close() })
		return svc.DB()
	}

	first := open([]string{"trader", "pro"})
	require.NoError(t, NewLicenseRepo(first).Create(ctx, newLicense("AAAA-BBBB-CCCC-DDDD", "pro", baseTime)))
	assert.ErrorIs(t, NewLicenseRepo(first).Create(ctx, newLicense("EEEE-FFFF-GGGG-HHHH", "enterprise", baseTime)),
		domain.ErrInvalidTier)
	require.NoError(t, first.Close())

	licenses := NewLicenseRepo(open([]string{"trader", "pro", "enterprise"}))
	require.NoError(t, licenses.Create(ctx, newLicense("EEEE-FFFF-GGGG-HHHH", "enterprise", baseTime)))
	assert.ErrorIs(t, licenses.Create(ctx, newLicense("JJJJ-KKKK-LLLL-MMMM", "gold", baseTime)), domain.ErrInvalidTier)

	kept, err := licenses.FindByKey(ctx, "AAAA-BBBB-CCCC-DDDD")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "pro", kept.Tier)

	fresh := newLicense("NNNN-PPPP-QQQQ-RRRR", "trader", baseTime)
	require.NoError(t, licenses.Create(ctx, fresh))
	assert.Greater(t, fresh.ID, kept.ID)
}

func TestLicenseRepo_ReopenWithDroppedTierInUseFails(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "licenses.db")

	svc, err := database.New(ctx, database.Options{Engine: "sqlite", SQLitePath: path, Tiers: testTiers})
	require.NoError(t, err)
	require.NoError(t, NewLicenseRepo(svc.DB()).Create(ctx, newLicense("AAAA-BBBB-CCCC-DDDD", "enterprise", baseTime)))
	require.NoError(t, svc.Close())

	_, err = database.New(ctx, database.Options{Engine: "sqlite", SQLitePath: path, Tiers: []string{"trader", "pro"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate tiers")
}
