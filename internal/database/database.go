package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Service represents a service that interacts with a database.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string

	// DB exposes the pool for repositories.
	DB() *sql.DB

	Dialect() Dialect

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error
}

type Options struct {
	Engine     string
	SQLitePath string

	DSN      string
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Schema   string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Tiers feeds the CHECK constraint on licenses.tier.
	Tiers []string
}

type service struct {
	db      *sql.DB
	dialect Dialect
	name    string
}

const connectionSetupTimeout = 10 * time.Second

// New opens the configured engine, verifies the connection and applies the schema.
func New(ctx context.Context, opts Options) (Service, error) {
	var (
		s   *service
		err error
	)

	switch Dialect(strings.ToLower(strings.TrimSpace(opts.Engine))) {
	case DialectSQLite:
		s, err = newSQLite(opts)
	case DialectPostgres, "":
		s, err = newPostgres(opts)
	default:
		return nil, fmt.Errorf("unsupported database engine %q", opts.Engine)
	}
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectionSetupTimeout)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		_ = s.db.Close()
		return nil, errors.Wrapf(err, "ping %s", s.dialect)
	}

	if err := Migrate(ctx, s.db, s.dialect, opts.Tiers); err != nil {
		_ = s.db.Close()
		return nil, err
	}

	log.Info().Str("engine", string(s.dialect)).Str("database", s.name).Msg("database ready")
	return s, nil
}

func newPostgres(opts Options) (*service, error) {
	connStr := strings.TrimSpace(opts.DSN)
	if connStr == "" {
		connStr = PostgresDSN(opts)
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres connection")
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := opts.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := opts.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	return &service{db: db, dialect: DialectPostgres, name: opts.Database}, nil
}

// PostgresDSN builds a connection string from discrete settings.
func PostgresDSN(opts Options) string {
	q := url.Values{}
	q.Set("sslmode", "disable")
	if opts.Schema != "" {
		q.Set("search_path", opts.Schema)
	}

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(opts.Username, opts.Password),
		Host:     opts.Host + ":" + opts.Port,
		Path:     "/" + opts.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func newSQLite(opts Options) (*service, error) {
	path := strings.TrimSpace(opts.SQLitePath)
	if path == "" {
		return nil, errors.New("sqlite database path is required")
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}
	// A single writer keeps conditional updates serialized.
	db.SetMaxOpenConns(1)

	return &service{db: db, dialect: DialectSQLite, name: path}, nil
}

func (s *service) DB() *sql.DB {
	return s.db
}

func (s *service) Dialect() Dialect {
	return s.dialect
}

// Health checks the health of the database connection by pinging the database.
// It returns a map with keys indicating various health statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)
	stats["engine"] = string(s.dialect)

	// Ping the database
	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		log.Error().Err(err).Msg("database health check failed")
		return stats
	}

	// Database is up, add more statistics
	stats["status"] = "up"
	stats["message"] = "It's healthy"

	// Get database stats (like open connections, in use, idle, etc.)
	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()
	stats["max_idle_closed"] = strconv.FormatInt(dbStats.MaxIdleClosed, 10)
	stats["max_lifetime_closed"] = strconv.FormatInt(dbStats.MaxLifetimeClosed, 10)

	// Evaluate stats to provide a health message
	if dbStats.OpenConnections > 40 { // Assuming 50 is the max for this example
		stats["message"] = "The database is experiencing heavy load."
	}

	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

// Close closes the database connection.
func (s *service) Close() error {
	log.Info().Str("database", s.name).Msg("disconnected from database")
	return s.db.Close()
}
