// Package journal keeps a local postgres record of every sale the
// backend confirmed, so the shop has end-of-day figures even when the
// backend is unreachable. Writes are best-effort from the caller's
// point of view; the sale is already committed upstream.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/tillwise/pos/internal/domain"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// DailySummary aggregates the journal for a reporting window.
type DailySummary struct {
	Receipts  int             `json:"receipts"`
	Gross     decimal.Decimal `json:"gross"`
	Discounts decimal.Decimal `json:"discounts"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

// Record stores a confirmed sale. Recording the same sale twice is a
// no-op, so a retried fan-out cannot duplicate a receipt.
func (r *Repository) Record(ctx context.Context, sale domain.Sale, terminalID string) error {
	record, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("marshal sale record: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO receipts (sale_id, shop_id, terminal_id, total_amount, discount_amount, sale_record)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sale_id) DO NOTHING`,
		sale.ID,
		sale.ShopID,
		terminalID,
		sale.TotalAmount.String(),
		sale.DiscountAmount.String(),
		record,
	)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

// SummarizeSince aggregates receipts recorded at or after the cutoff.
func (r *Repository) SummarizeSince(ctx context.Context, since time.Time) (DailySummary, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(SUM(discount_amount), 0)
		FROM receipts
		WHERE recorded_at >= $1`,
		since,
	)

	var count int
	var gross, discounts string
	if err := row.Scan(&count, &gross, &discounts); err != nil {
		return DailySummary{}, fmt.Errorf("scan summary: %w", err)
	}

	grossDec, err := decimal.NewFromString(gross)
	if err != nil {
		return DailySummary{}, fmt.Errorf("parse gross %q: %w", gross, err)
	}
	discountsDec, err := decimal.NewFromString(discounts)
	if err != nil {
		return DailySummary{}, fmt.Errorf("parse discounts %q: %w", discounts, err)
	}

	return DailySummary{Receipts: count, Gross: grossDec, Discounts: discountsDec}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
