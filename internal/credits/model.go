package credits

import "time"

// Account is a user's credit balance.
type Account struct {
	UserID    string    `json:"userId"`
	Plan      string    `json:"plan"`
	Balance   int       `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entry is one ledger row. Delta is negative for consumption.
type Entry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Delta        int       `json:"delta"`
	BalanceAfter int       `json:"balanceAfter"`
	Reason       string    `json:"reason"`
	Reference    string    `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Ledger reasons.
const (
	ReasonSignup     = "signup"
	ReasonGeneration = "generation"
	ReasonPurchase   = "purchase"
	ReasonAdminGrant = "admin_grant"
	ReasonRefund     = "refund"
)

const defaultPlan = "free"
