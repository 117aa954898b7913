package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the ledger view of a marketplace account. Balance holds settled
// funds only and is mutated exclusively by the settlement service via atomic
// storage-level increments and decrements.
type User struct {
	ID          int64           `json:"id"`
	PhoneNumber string          `json:"phone_number"`
	Balance     decimal.Decimal `json:"balance"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
