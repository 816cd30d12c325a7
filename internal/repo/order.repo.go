package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/database"
	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/pkg/errors"
)

type OrderRepo interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, orderID string) (*domain.Order, error)
	// Complete moves a pending order to completed. Repeating it with the same
	// license key returns the stored order unchanged; a different key yields
	// domain.ErrOrderNotPending.
	Complete(ctx context.Context, orderID, licenseKey, transactionID string, now time.Time) (*domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
	ListByEmail(ctx context.Context, email string) ([]domain.Order, error)
	FindStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Order, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `order_id, tier, include_addons, customer_email, customer_name, total_amount, currency, status, license_key, payment_transaction_id, created_at, completed_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.OrderID,
		&o.Tier,
		&o.IncludeAddOns,
		&o.CustomerEmail,
		&o.CustomerName,
		&o.TotalAmount,
		&o.Currency,
		&o.Status,
		&o.LicenseKey,
		&o.PaymentTransactionID,
		&o.CreatedAt,
		&o.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) Create(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (order_id, tier, include_addons, customer_email, customer_name, total_amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if order.Status == "" {
		order.Status = domain.OrderPending
	}
	order.CreatedAt = order.CreatedAt.UTC()
	_, err := r.db.ExecContext(ctx, query,
		order.OrderID,
		order.Tier,
		order.IncludeAddOns,
		order.CustomerEmail,
		order.CustomerName,
		order.TotalAmount,
		order.Currency,
		string(order.Status),
		order.CreatedAt,
	)
	if database.IsUniqueViolation(err) {
		return domain.ErrDuplicateOrder.Wrap(err)
	}
	if err != nil {
		return errors.Wrap(err, "insert order")
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, orderID string) (*domain.Order, error) {
	return findOrder(ctx, r.db, orderID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findOrder(ctx context.Context, q queryRower, orderID string) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE order_id = $1", orderID))
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	return order, nil
}

func (r *orderRepo) Complete(ctx context.Context, orderID, licenseKey, transactionID string, now time.Time) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin complete order")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    license_key = $3,
		    payment_transaction_id = COALESCE($4, payment_transaction_id),
		    completed_at = COALESCE(completed_at, $5)
		WHERE order_id = $1
		AND (status = $6 OR license_key = $3)
	`,
		orderID,
		string(domain.OrderCompleted),
		licenseKey,
		domain.StringPtr(transactionID),
		now.UTC(),
		string(domain.OrderPending),
	)
	if err != nil {
		return nil, errors.Wrap(err, "complete order")
	}

	order, err := findOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if domain.StringValue(order.LicenseKey) != licenseKey {
		return nil, domain.ErrOrderNotPending
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit complete order")
	}
	return order, nil
}

func (r *orderRepo) List(ctx context.Context) ([]domain.Order, error) {
	return r.query(ctx, "SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC, id DESC")
}

func (r *orderRepo) ListByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	return r.query(ctx, "SELECT "+orderColumns+" FROM orders WHERE customer_email = $1 ORDER BY created_at DESC, id DESC", email)
}

func (r *orderRepo) FindStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE status = $1
		AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	return r.query(ctx, query, string(domain.OrderPending), before.UTC(), limit)
}

func (r *orderRepo) query(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
