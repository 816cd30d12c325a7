package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// tierConstraint names the CHECK on licenses.tier so it can be replaced when the tier list changes.
const tierConstraint = "licenses_tier_check"

// Migrate creates the licenses and orders tables when they do not exist and
// brings the tier constraint in line with tiers.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, tiers []string) error {
	if len(tiers) == 0 {
		return errors.New("migrate: at least one tier is required")
	}

	for _, stmt := range schema(dialect, tiers) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migrate %s", firstLine(stmt))
		}
	}

	if dialect == DialectSQLite {
		return syncSQLiteTiers(ctx, db, tiers)
	}
	return syncPostgresTiers(ctx, db, tiers)
}

// syncPostgresTiers swaps the named constraint in one transaction. Existing
// rows must satisfy the new list or the migration fails.
func syncPostgresTiers(ctx context.Context, db *sql.DB, tiers []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "migrate tiers: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		fmt.Sprintf(`ALTER TABLE licenses DROP CONSTRAINT IF EXISTS %s`, tierConstraint),
		fmt.Sprintf(`ALTER TABLE licenses ADD CONSTRAINT %s %s`, tierConstraint, tierCheck(tiers)),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migrate tiers %s", firstLine(stmt))
		}
	}
	return errors.Wrap(tx.Commit(), "migrate tiers: commit")
}

// syncSQLiteTiers rebuilds licenses when its stored definition carries a
// different tier list. SQLite cannot alter a CHECK in place.
func syncSQLiteTiers(ctx context.Context, db *sql.DB, tiers []string) error {
	var current string
	err := db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'licenses'`).Scan(&current)
	if err != nil {
		return errors.Wrap(err, "migrate tiers: read licenses definition")
	}
	if strings.Contains(current, tierCheck(tiers)) {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "migrate tiers: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`DROP TABLE IF EXISTS licenses_rebuild`,
		licensesTable("licenses_rebuild", DialectSQLite, tiers),
		fmt.Sprintf(`INSERT INTO licenses_rebuild (%[1]s) SELECT %[1]s FROM licenses`, licenseColumns),
		`DROP TABLE licenses`,
		`ALTER TABLE licenses_rebuild RENAME TO licenses`,
		licensesHardwareIndex,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migrate tiers %s", firstLine(stmt))
		}
	}
	return errors.Wrap(tx.Commit(), "migrate tiers: commit")
}

const licenseColumns = "id, license_key, tier, price, hardware_id, owner_email, owner_name, " +
	"is_active, created_at, last_validated_at, expires_at"

const licensesHardwareIndex = `CREATE INDEX IF NOT EXISTS idx_licenses_hardware_id ON licenses (hardware_id)`

func tierCheck(tiers []string) string {
	return fmt.Sprintf("CHECK (tier IN (%s))", quoteList(tiers))
}

func columnTypes(dialect Dialect) (id, money, ts string) {
	if dialect == DialectSQLite {
		return "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL", "TIMESTAMP"
	}
	return "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION", "TIMESTAMPTZ"
}

func licensesTable(name string, dialect Dialect, tiers []string) string {
	id, money, ts := columnTypes(dialect)
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	id %[2]s,
	license_key TEXT NOT NULL UNIQUE,
	tier TEXT NOT NULL CONSTRAINT %[5]s %[6]s,
	price %[3]s NOT NULL DEFAULT 0,
	hardware_id TEXT,
	owner_email TEXT,
	owner_name TEXT,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at %[4]s NOT NULL,
	last_validated_at %[4]s,
	expires_at %[4]s
)`, name, id, money, ts, tierConstraint, tierCheck(tiers))
}

func schema(dialect Dialect, tiers []string) []string {
	id, money, ts := columnTypes(dialect)

	return []string{
		licensesTable("licenses", dialect, tiers),
		licensesHardwareIndex,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS orders (
	id %[1]s,
	order_id TEXT NOT NULL UNIQUE,
	tier TEXT NOT NULL,
	include_addons BOOLEAN NOT NULL DEFAULT FALSE,
	customer_email TEXT NOT NULL,
	customer_name TEXT,
	total_amount %[2]s NOT NULL,
	currency TEXT NOT NULL DEFAULT 'EUR',
	status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'completed')),
	license_key TEXT,
	payment_transaction_id TEXT,
	created_at %[3]s NOT NULL,
	completed_at %[3]s,
	CHECK ((license_key IS NULL) = (completed_at IS NULL))
)`, id, money, ts),
		`CREATE INDEX IF NOT EXISTS idx_orders_customer_email ON orders (customer_email)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders (status, created_at)`,
	}
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}
