package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/database"
	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/pkg/errors"
)

// LicenseRepo is the only writer of the licenses table. Admin mutations
// report whether a row matched so callers can surface NotFound.
type LicenseRepo interface {
	FindByKey(ctx context.Context, key string) (*domain.License, error)
	Create(ctx context.Context, license *domain.License) error
	// BindHardwareIfUnbound sets hardware_id only while it is NULL and
	// returns the number of rows changed (0 or 1).
	BindHardwareIfUnbound(ctx context.Context, key, hardwareID string, now time.Time) (int64, error)
	TouchLastValidated(ctx context.Context, key string, now time.Time) error
	SetActive(ctx context.Context, key string, active bool) (bool, error)
	ResetHardware(ctx context.Context, key string) (bool, error)
	SetExpiry(ctx context.Context, key string, expiresAt *time.Time) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context) ([]domain.License, error)
}

type licenseRepo struct {
	db *sql.DB
}

func NewLicenseRepo(db *sql.DB) LicenseRepo {
	return &licenseRepo{db: db}
}

const licenseColumns = `id, license_key, tier, price, hardware_id, owner_email, owner_name, is_active, created_at, last_validated_at, expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner) (*domain.License, error) {
	var l domain.License
	err := row.Scan(
		&l.ID,
		&l.Key,
		&l.Tier,
		&l.Price,
		&l.HardwareID,
		&l.OwnerEmail,
		&l.OwnerName,
		&l.IsActive,
		&l.CreatedAt,
		&l.LastValidatedAt,
		&l.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *licenseRepo) FindByKey(ctx context.Context, key string) (*domain.License, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+licenseColumns+" FROM licenses WHERE license_key = $1", key)
	license, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, errors.Wrap(err, "find license")
	}
	return license, nil
}

func (r *licenseRepo) Create(ctx context.Context, license *domain.License) error {
	query := `INSERT INTO licenses (license_key, tier, price, hardware_id, owner_email, owner_name, is_active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	license.CreatedAt = license.CreatedAt.UTC()
	err := r.db.QueryRowContext(ctx, query,
		license.Key,
		license.Tier,
		license.Price,
		license.HardwareID,
		license.OwnerEmail,
		license.OwnerName,
		license.IsActive,
		license.CreatedAt,
		utcPtr(license.ExpiresAt),
	).Scan(&license.ID)
	if database.IsUniqueViolation(err) {
		return domain.ErrDuplicateKey.Wrap(err)
	}
	if database.IsCheckViolation(err) {
		return domain.ErrInvalidTier.Wrap(err)
	}
	if err != nil {
		return errors.Wrap(err, "insert license")
	}
	return nil
}

func (r *licenseRepo) BindHardwareIfUnbound(ctx context.Context, key, hardwareID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE licenses SET hardware_id = $2, last_validated_at = $3 WHERE license_key = $1 AND hardware_id IS NULL",
		key, hardwareID, now.UTC(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "bind hardware")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "bind hardware rows affected")
	}
	return n, nil
}

func (r *licenseRepo) TouchLastValidated(ctx context.Context, key string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE licenses SET last_validated_at = $2 WHERE license_key = $1", key, now.UTC())
	if err != nil {
		return errors.Wrap(err, "touch last validated")
	}
	return nil
}

func (r *licenseRepo) SetActive(ctx context.Context, key string, active bool) (bool, error) {
	return r.execMatched(ctx, "set active", "UPDATE licenses SET is_active = $2 WHERE license_key = $1", key, active)
}

func (r *licenseRepo) ResetHardware(ctx context.Context, key string) (bool, error) {
	return r.execMatched(ctx, "reset hardware", "UPDATE licenses SET hardware_id = NULL WHERE license_key = $1", key)
}

func (r *licenseRepo) SetExpiry(ctx context.Context, key string, expiresAt *time.Time) (bool, error) {
	return r.execMatched(ctx, "set expiry", "UPDATE licenses SET expires_at = $2 WHERE license_key = $1", key, utcPtr(expiresAt))
}

func (r *licenseRepo) Delete(ctx context.Context, key string) (bool, error) {
	return r.execMatched(ctx, "delete license", "DELETE FROM licenses WHERE license_key = $1", key)
}

func (r *licenseRepo) List(ctx context.Context) ([]domain.License, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+licenseColumns+" FROM licenses ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, errors.Wrap(err, "list licenses")
	}
	defer rows.Close()

	licenses := make([]domain.License, 0)
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan license")
		}
		licenses = append(licenses, *l)
	}
	return licenses, rows.Err()
}

func (r *licenseRepo) execMatched(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "%s rows affected", op)
	}
	return n > 0, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
