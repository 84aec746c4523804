package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntry is one transaction row produced from a receipt page.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id"`
	Date          time.Time       `json:"date"`
	Merchant      string          `json:"merchant" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Category      string          `json:"category" validate:"required"`
	PaymentMethod string          `json:"payment_method" validate:"required"`
	CreatedAt     time.Time       `json:"created_at"`
}
