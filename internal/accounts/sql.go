package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL
	_ "github.com/lib/pq"              // PostgreSQL

	"github.com/systmms/cloudrunops/internal/config"
	"github.com/systmms/cloudrunops/internal/logging"
)

// DefaultQueryTimeout bounds one CurrentAccounts query.
const DefaultQueryTimeout = 30 * time.Second

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLSource reads accounts stored as (name, definition) rows, where the
// definition is a YAML or JSON account document.
type SQLSource struct {
	db      *sql.DB
	query   string
	timeout time.Duration
	logger  *logging.Logger
}

// OpenSQLSource connects to a postgres or mysql database.
func OpenSQLSource(ctx context.Context, driver, dsn, table string, logger *logging.Logger) (*SQLSource, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		driver = "postgres"
	case "mysql":
		driver = "mysql"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	if err := db.PingContext(ctxWithTimeout); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	source, err := NewSQLSource(db, table, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return source, nil
}

// NewSQLSource creates a source over an open database.
func NewSQLSource(db *sql.DB, table string, logger *logging.Logger) (*SQLSource, error) {
	if table == "" {
		table = config.DefaultAccountsTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid accounts table name %q", table)
	}
	if logger == nil {
		logger = logging.New(false, false)
	}
	return &SQLSource{
		db:      db,
		query:   fmt.Sprintf("SELECT name, definition FROM %s ORDER BY name", table),
		timeout: DefaultQueryTimeout,
		logger:  logger.Named("accounts"),
	}, nil
}

// CurrentAccounts implements Source. Rows whose definition cannot be
// decoded are logged and skipped.
func (s *SQLSource) CurrentAccounts(ctx context.Context) ([]config.AccountDefinition, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctxWithTimeout, s.query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []config.AccountDefinition
	for rows.Next() {
		var name, definition string
		if err := rows.Scan(&name, &definition); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		account, err := config.ParseAccount([]byte(definition))
		if err != nil {
			s.logger.Warn("skipping account %s: %v", name, err)
			continue
		}
		// The row key is authoritative.
		account.Name = name
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read account rows: %w", err)
	}

	s.logger.Debug("read %d accounts from database", len(accounts))
	return accounts, nil
}

// Close closes the database.
func (s *SQLSource) Close() error {
	return s.db.Close()
}
