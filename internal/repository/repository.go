package repository

import (
	"context"

	"github.com/ratewatch/ratewatch/internal/domain"
)

// CurrencyRepository defines the interface for currency persistence.
type CurrencyRepository interface {
	// Upsert inserts the currency or, when a row with the same ID already
	// exists, overwrites its fields. Redelivered write tasks are therefore
	// persisted at most once.
	Upsert(ctx context.Context, currency *domain.Currency) error

	// GetByID retrieves a currency by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Currency, error)

	// List returns all currencies ordered by creation time.
	List(ctx context.Context) ([]domain.Currency, error)

	// Update modifies an existing currency.
	Update(ctx context.Context, currency *domain.Currency) error

	// Delete removes a currency from the store by its identifier.
	Delete(ctx context.Context, id string) error
}

// UserRepository defines the interface for user persistence.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}
