package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ratewatch/ratewatch/internal/domain"
	"github.com/ratewatch/ratewatch/pkg/database"
	apperrors "github.com/ratewatch/ratewatch/pkg/errors"
)

// CurrencyRepository implements repository.CurrencyRepository using PostgreSQL.
type CurrencyRepository struct {
	pool database.DBTX
}

// NewCurrencyRepository creates a new PostgreSQL-backed currency repository.
func NewCurrencyRepository(pool database.DBTX) *CurrencyRepository {
	return &CurrencyRepository{pool: pool}
}

// Upsert inserts the currency or overwrites an existing row with the same ID.
// The write pipeline assigns IDs before enqueue, so redelivered tasks land on
// the same row.
func (r *CurrencyRepository) Upsert(ctx context.Context, c *domain.Currency) error {
	query := `
		INSERT INTO currencies (id, name, high, low, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, high = EXCLUDED.high, low = EXCLUDED.low, updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.Name,
		c.High,
		c.Low,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert currency: %w", err)
	}

	return nil
}

// GetByID retrieves a currency by its ID.
func (r *CurrencyRepository) GetByID(ctx context.Context, id string) (*domain.Currency, error) {
	query := `
		SELECT id, name, high, low, created_at, updated_at
		FROM currencies
		WHERE id = $1`

	var c domain.Currency
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.High,
		&c.Low,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("currency", id)
		}
		return nil, fmt.Errorf("scan currency: %w", err)
	}

	return &c, nil
}

// List returns all currencies ordered by creation time.
func (r *CurrencyRepository) List(ctx context.Context) ([]domain.Currency, error) {
	query := `
		SELECT id, name, high, low, created_at, updated_at
		FROM currencies
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	defer rows.Close()

	currencies := make([]domain.Currency, 0)
	for rows.Next() {
		var c domain.Currency
		if err := rows.Scan(&c.ID, &c.Name, &c.High, &c.Low, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan currency row: %w", err)
		}
		currencies = append(currencies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate currency rows: %w", err)
	}

	return currencies, nil
}

// Update modifies an existing currency.
func (r *CurrencyRepository) Update(ctx context.Context, c *domain.Currency) error {
	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE currencies
		SET name = $1, high = $2, low = $3, updated_at = $4
		WHERE id = $5`

	ct, err := r.pool.Exec(ctx, query,
		c.Name,
		c.High,
		c.Low,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update currency: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("currency", c.ID)
	}

	return nil
}

// Delete removes a currency by its ID.
func (r *CurrencyRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM currencies WHERE id = $1`

	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete currency: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("currency", id)
	}

	return nil
}
