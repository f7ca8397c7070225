package domain

import (
	"time"

	"github.com/google/uuid"
)

// Currency represents a tracked currency quote: its name and the daily high
// and low. JSON field names keep the original public contract (nome, alta,
// baixa).
type Currency struct {
	ID        string    `json:"id"`
	Name      string    `json:"nome"`
	High      float64   `json:"alta"`
	Low       float64   `json:"baixa"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCurrency creates a currency record with a generated ID and timestamps.
// The ID is assigned here, before the record enters the write pipeline, so
// redelivered tasks persist to the same row.
func NewCurrency(name string, high, low float64) *Currency {
	now := time.Now().UTC()
	return &Currency{
		ID:        uuid.New().String(),
		Name:      name,
		High:      high,
		Low:       low,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Broadcast event names, kept from the original public contract.
const (
	EventCurrencyCreated = "novamoeda"
	EventCurrencyChanged = "atualizacao"
)
