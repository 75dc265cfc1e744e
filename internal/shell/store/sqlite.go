package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/artpar/vpsfleet/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Server Operations
// =============================================================================

// serverRow represents a server row in the database. Money columns are TEXT
// so decimal values round-trip without float drift.
type serverRow struct {
	ID               string `db:"id"`
	Name             string `db:"name"`
	Host             string `db:"host"`
	Country          string `db:"country"`
	Status           string `db:"status"`
	PricePerMonth    string `db:"price_per_month"`
	PurchaseDate     string `db:"purchase_date"`
	EnabledDate      string `db:"enabled_date"`
	DecommissionDate string `db:"decommission_date"`
	UsesNATPool      bool   `db:"uses_nat_pool"`
	LastUsageLabel   string `db:"last_usage_label"`
	LastTotalPrice   string `db:"last_total_price"`
	CreatedAt        string `db:"created_at"`
	UpdatedAt        string `db:"updated_at"`
}

func (s *SQLiteStore) CreateServer(ctx context.Context, server *domain.ServerRecord) error {
	return createServer(ctx, s.db, server)
}

func (s *SQLiteStore) GetServer(ctx context.Context, name string) (*domain.ServerRecord, error) {
	return getServer(ctx, s.db, name)
}

func (s *SQLiteStore) UpdateServer(ctx context.Context, server *domain.ServerRecord) error {
	return updateServer(ctx, s.db, server)
}

func (s *SQLiteStore) DeleteServer(ctx context.Context, name string) error {
	return deleteServer(ctx, s.db, name)
}

func (s *SQLiteStore) ListServers(ctx context.Context, opts ListOptions) ([]domain.ServerRecord, error) {
	return listServers(ctx, s.db, opts)
}

func (s *SQLiteStore) ListAllServers(ctx context.Context) ([]domain.ServerRecord, error) {
	return listAllServers(ctx, s.db)
}

func (s *SQLiteStore) SetServerStatus(ctx context.Context, name string, status domain.ServerStatus, when time.Time) error {
	return setServerStatus(ctx, s.db, name, status, when)
}

func (s *SQLiteStore) SetServerCharge(ctx context.Context, name string, usageLabel string, total decimal.Decimal) error {
	return setServerCharge(ctx, s.db, name, usageLabel, total)
}

func (s *SQLiteStore) GetBillingPeriod(ctx context.Context) (domain.Period, error) {
	return getBillingPeriod(ctx, s.db)
}

func (s *SQLiteStore) SetBillingPeriod(ctx context.Context, period domain.Period) error {
	return setBillingPeriod(ctx, s.db, period)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateServer(ctx context.Context, server *domain.ServerRecord) error {
	return createServer(ctx, s.tx, server)
}

func (s *txSQLiteStore) GetServer(ctx context.Context, name string) (*domain.ServerRecord, error) {
	return getServer(ctx, s.tx, name)
}

func (s *txSQLiteStore) UpdateServer(ctx context.Context, server *domain.ServerRecord) error {
	return updateServer(ctx, s.tx, server)
}

func (s *txSQLiteStore) DeleteServer(ctx context.Context, name string) error {
	return deleteServer(ctx, s.tx, name)
}

func (s *txSQLiteStore) ListServers(ctx context.Context, opts ListOptions) ([]domain.ServerRecord, error) {
	return listServers(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ListAllServers(ctx context.Context) ([]domain.ServerRecord, error) {
	return listAllServers(ctx, s.tx)
}

func (s *txSQLiteStore) SetServerStatus(ctx context.Context, name string, status domain.ServerStatus, when time.Time) error {
	return setServerStatus(ctx, s.tx, name, status, when)
}

func (s *txSQLiteStore) SetServerCharge(ctx context.Context, name string, usageLabel string, total decimal.Decimal) error {
	return setServerCharge(ctx, s.tx, name, usageLabel, total)
}

func (s *txSQLiteStore) GetBillingPeriod(ctx context.Context) (domain.Period, error) {
	return getBillingPeriod(ctx, s.tx)
}

func (s *txSQLiteStore) SetBillingPeriod(ctx context.Context, period domain.Period) error {
	return setBillingPeriod(ctx, s.tx, period)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func createServer(ctx context.Context, exec executor, server *domain.ServerRecord) error {
	query := `
		INSERT INTO servers (
			id, name, host, country, status, price_per_month,
			purchase_date, enabled_date, decommission_date, uses_nat_pool,
			last_usage_label, last_total_price, created_at, updated_at
		) VALUES (
			:id, :name, :host, :country, :status, :price_per_month,
			:purchase_date, :enabled_date, :decommission_date, :uses_nat_pool,
			:last_usage_label, :last_total_price, :created_at, :updated_at
		)`

	_, err := exec.NamedExecContext(ctx, query, serverToRow(server))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: servers.name") {
			return NewStoreError("CreateServer", "server", server.Name, "server with this name already exists", ErrDuplicateName)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: servers.id") {
			return NewStoreError("CreateServer", "server", server.ID, "server with this ID already exists", ErrDuplicateName)
		}
		return NewStoreError("CreateServer", "server", server.Name, err.Error(), err)
	}

	return nil
}

func getServer(ctx context.Context, exec executor, name string) (*domain.ServerRecord, error) {
	query := `SELECT * FROM servers WHERE name = ?`

	var row serverRow
	err := exec.GetContext(ctx, &row, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetServer", "server", name, "server not found", ErrNotFound)
		}
		return nil, NewStoreError("GetServer", "server", name, err.Error(), err)
	}

	return rowToServer(&row)
}

func updateServer(ctx context.Context, exec executor, server *domain.ServerRecord) error {
	query := `
		UPDATE servers SET
			host = :host,
			country = :country,
			status = :status,
			price_per_month = :price_per_month,
			purchase_date = :purchase_date,
			enabled_date = :enabled_date,
			decommission_date = :decommission_date,
			uses_nat_pool = :uses_nat_pool,
			last_usage_label = :last_usage_label,
			last_total_price = :last_total_price,
			updated_at = :updated_at
		WHERE name = :name`

	result, err := exec.NamedExecContext(ctx, query, serverToRow(server))
	if err != nil {
		return NewStoreError("UpdateServer", "server", server.Name, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateServer", "server", server.Name, "server not found", ErrNotFound)
	}

	return nil
}

func deleteServer(ctx context.Context, exec executor, name string) error {
	query := `DELETE FROM servers WHERE name = ?`

	result, err := exec.ExecContext(ctx, query, name)
	if err != nil {
		return NewStoreError("DeleteServer", "server", name, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteServer", "server", name, "server not found", ErrNotFound)
	}

	return nil
}

func listServers(ctx context.Context, exec executor, opts ListOptions) ([]domain.ServerRecord, error) {
	opts = opts.Normalize()

	var rows []serverRow
	var err error
	if opts.Status != "" {
		query := `SELECT * FROM servers WHERE status = ? ORDER BY name LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, string(opts.Status), opts.Limit, opts.Offset)
	} else {
		query := `SELECT * FROM servers ORDER BY name LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	}
	if err != nil {
		return nil, NewStoreError("ListServers", "server", "", err.Error(), err)
	}

	servers := make([]domain.ServerRecord, 0, len(rows))
	for _, row := range rows {
		server, err := rowToServer(&row)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *server)
	}

	return servers, nil
}

func listAllServers(ctx context.Context, exec executor) ([]domain.ServerRecord, error) {
	query := `SELECT * FROM servers ORDER BY name`

	var rows []serverRow
	if err := exec.SelectContext(ctx, &rows, query); err != nil {
		return nil, NewStoreError("ListAllServers", "server", "", err.Error(), err)
	}

	servers := make([]domain.ServerRecord, 0, len(rows))
	for _, row := range rows {
		server, err := rowToServer(&row)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *server)
	}

	return servers, nil
}

func setServerStatus(ctx context.Context, exec executor, name string, status domain.ServerStatus, when time.Time) error {
	decommissionDate := ""
	if status == domain.StatusDecommissioned {
		decommissionDate = domain.FormatDate(when)
	}

	query := `
		UPDATE servers SET
			status = ?,
			decommission_date = ?,
			updated_at = ?
		WHERE name = ?`

	result, err := exec.ExecContext(ctx, query, string(status), decommissionDate, when.UTC().Format(time.RFC3339), name)
	if err != nil {
		return NewStoreError("SetServerStatus", "server", name, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("SetServerStatus", "server", name, "server not found", ErrNotFound)
	}

	return nil
}

func setServerCharge(ctx context.Context, exec executor, name string, usageLabel string, total decimal.Decimal) error {
	query := `
		UPDATE servers SET
			last_usage_label = ?,
			last_total_price = ?,
			updated_at = ?
		WHERE name = ?`

	result, err := exec.ExecContext(ctx, query, usageLabel, total.String(), time.Now().UTC().Format(time.RFC3339), name)
	if err != nil {
		return NewStoreError("SetServerCharge", "server", name, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("SetServerCharge", "server", name, "server not found", ErrNotFound)
	}

	return nil
}

// =============================================================================
// Billing Period (single-row app state)
// =============================================================================

func getBillingPeriod(ctx context.Context, exec executor) (domain.Period, error) {
	query := `SELECT year, month FROM billing_period WHERE id = 1`

	var row struct {
		Year  int `db:"year"`
		Month int `db:"month"`
	}
	err := exec.GetContext(ctx, &row, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Period{}, NewStoreError("GetBillingPeriod", "billing_period", "", "billing period not set", ErrNotFound)
		}
		return domain.Period{}, NewStoreError("GetBillingPeriod", "billing_period", "", err.Error(), err)
	}

	return domain.Period{Year: row.Year, Month: row.Month}, nil
}

func setBillingPeriod(ctx context.Context, exec executor, period domain.Period) error {
	query := `
		INSERT INTO billing_period (id, year, month, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			year = excluded.year,
			month = excluded.month,
			updated_at = excluded.updated_at`

	_, err := exec.ExecContext(ctx, query, period.Year, period.Month, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return NewStoreError("SetBillingPeriod", "billing_period", period.String(), err.Error(), err)
	}

	return nil
}

// =============================================================================
// Row Conversion Functions
// =============================================================================

func serverToRow(server *domain.ServerRecord) map[string]any {
	return map[string]any{
		"id":                server.ID,
		"name":              server.Name,
		"host":              server.Host,
		"country":           server.Country,
		"status":            string(server.Status),
		"price_per_month":   server.PricePerMonth.String(),
		"purchase_date":     server.PurchaseDate,
		"enabled_date":      server.EnabledDate,
		"decommission_date": server.DecommissionDate,
		"uses_nat_pool":     server.UsesNATPool,
		"last_usage_label":  server.LastUsageLabel,
		"last_total_price":  server.LastTotalPrice.String(),
		"created_at":        server.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":        server.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// rowToServer converts a database row to a domain.ServerRecord.
func rowToServer(row *serverRow) (*domain.ServerRecord, error) {
	price, err := decimal.NewFromString(row.PricePerMonth)
	if err != nil {
		return nil, NewStoreError("rowToServer", "server", row.Name, "failed to parse price_per_month", ErrInvalidData)
	}
	lastTotal := decimal.Zero
	if row.LastTotalPrice != "" {
		lastTotal, err = decimal.NewFromString(row.LastTotalPrice)
		if err != nil {
			return nil, NewStoreError("rowToServer", "server", row.Name, "failed to parse last_total_price", ErrInvalidData)
		}
	}

	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	return &domain.ServerRecord{
		ID:               row.ID,
		Name:             row.Name,
		Host:             row.Host,
		Country:          row.Country,
		Status:           domain.ServerStatus(row.Status),
		PricePerMonth:    price,
		PurchaseDate:     row.PurchaseDate,
		EnabledDate:      row.EnabledDate,
		DecommissionDate: row.DecommissionDate,
		UsesNATPool:      row.UsesNATPool,
		LastUsageLabel:   row.LastUsageLabel,
		LastTotalPrice:   lastTotal,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}
