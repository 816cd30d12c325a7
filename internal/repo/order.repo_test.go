package repo

import (
	"context"
	"testing"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(id, email string, created time.Time) *domain.Order {
	return &domain.Order{
		OrderID:       id,
		Tier:          "pro",
		IncludeAddOns: true,
		CustomerEmail: email,
		CustomerName:  domain.StringPtr("Ada"),
		TotalAmount:   400,
		Currency:      "EUR",
		CreatedAt:     created,
	}
}

func TestOrderRepo_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	orders := NewOrderRepo(newTestDB(t))

	require.NoError(t, orders.Create(ctx, newOrder("ORDER-1", "ada@example.com", baseTime)))

	got, err := orders.FindByID(ctx, "ORDER-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.OrderPending, got.Status)
	assert.Equal(t, "pro", got.Tier)
	assert.True(t, got.IncludeAddOns)
	assert.Equal(t, 400.0, got.TotalAmount)
	assert.Equal(t, "Ada", domain.StringValue(got.CustomerName))
	assert.Nil(t, got.LicenseKey)
	assert.Nil(t, got.CompletedAt)
	assert.False(t, got.IsCompleted())

	missing, err := orders.FindByID(ctx, "ORDER-404")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = orders.Create(ctx, newOrder("ORDER-1", "other@example.com", baseTime))
	assert.ErrorIs(t, err, domain.ErrDuplicateOrder)
}

func TestOrderRepo_CompleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	orders := NewOrderRepo(newTestDB(t))
	require.NoError(t, orders.Create(ctx, newOrder("ORDER-1", "ada@example.com", baseTime)))

	doneAt := baseTime.Add(time.Minute)
	completed, err := orders.Complete(ctx, "ORDER-1", "AAAA-BBBB-CCCC-DDDD", "TX1", doneAt)
	require.NoError(t, err)
	assert.True(t, completed.IsCompleted())
	assert.Equal(t, "AAAA-BBBB-CCCC-DDDD", domain.StringValue(completed.LicenseKey))
	assert.Equal(t, "TX1", domain.StringValue(completed.PaymentTransactionID))
	assert.True(t, completed.CompletedAt.Equal(doneAt))

	again, err := orders.Complete(ctx, "ORDER-1", "AAAA-BBBB-CCCC-DDDD", "TX1", doneAt.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, again.CompletedAt.Equal(doneAt), "completion time is set once")

	_, err = orders.Complete(ctx, "ORDER-1", "ZZZZ-ZZZZ-ZZZZ-ZZZZ", "TX2", doneAt)
	assert.ErrorIs(t, err, domain.ErrOrderNotPending)

	stored, err := orders.FindByID(ctx, "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, "AAAA-BBBB-CCCC-DDDD", domain.StringValue(stored.LicenseKey))
	assert.Equal(t, "TX1", domain.StringValue(stored.PaymentTransactionID))

	_, err = orders.Complete(ctx, "ORDER-404", "AAAA-BBBB-CCCC-DDDD", "TX1", doneAt)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepo_CompleteWithoutTransactionID(t *testing.T) {
	ctx := context.Background()
	orders := NewOrderRepo(newTestDB(t))
	require.NoError(t, orders.Create(ctx, newOrder("TEST-1234ABCD", "ada@example.com", baseTime)))

	completed, err := orders.Complete(ctx, "TEST-1234ABCD", "AAAA-BBBB-CCCC-DDDD", "", baseTime)
	require.NoError(t, err)
	assert.Nil(t, completed.PaymentTransactionID)
	assert.True(t, completed.IsCompleted())
}

func TestOrderRepo_ListAndStalePending(t *testing.T) {
	ctx := context.Background()
	orders := NewOrderRepo(newTestDB(t))

	require.NoError(t, orders.Create(ctx, newOrder("O-1", "ada@example.com", baseTime)))
	require.NoError(t, orders.Create(ctx, newOrder("O-2", "bob@example.com", baseTime.Add(time.Hour))))
	require.NoError(t, orders.Create(ctx, newOrder("O-3", "ada@example.com", baseTime.Add(2*time.Hour))))
	_, err := orders.Complete(ctx, "O-1", "AAAA-BBBB-CCCC-DDDD", "TX1", baseTime.Add(3*time.Hour))
	require.NoError(t, err)

	all, err := orders.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"O-3", "O-2", "O-1"}, orderIDs(all))

	byEmail, err := orders.ListByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"O-3", "O-1"}, orderIDs(byEmail))

	none, err := orders.ListByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, none)

	stale, err := orders.FindStalePending(ctx, baseTime.Add(90*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"O-2"}, orderIDs(stale))

	stale, err = orders.FindStalePending(ctx, baseTime.Add(24*time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"O-2"}, orderIDs(stale))
}

func orderIDs(orders []domain.Order) []string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.OrderID
	}
	return ids
}
