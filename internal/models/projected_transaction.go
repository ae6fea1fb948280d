package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectedTransaction is one entry of a balance forecast. It is computed per
// request and never persisted.
type ProjectedTransaction struct {
	Date         time.Time
	ObligationID int64
	Amount       decimal.Decimal // signed
	Title        string
	Description  string
	Balance      decimal.Decimal // running balance after applying Amount
}

// LedgerEvent is the payload published to the message broker when a scheduled
// job fires.
type LedgerEvent struct {
	ObligationID int64           `json:"obligation_id"`
	AccountID    int64           `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	Title        string          `json:"title"`
	FiredAt      time.Time       `json:"fired_at"`
	Effect       string          `json:"effect"`
}
