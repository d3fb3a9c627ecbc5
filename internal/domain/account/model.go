// Package account provides the Account entity and its store contract.
package account

import (
	"strings"

	"ledgertx/internal/core/apperror"
)

// Account is a balance holder identified by a caller-chosen id.
// Balance is in minor units. It may go negative inside a scope that is
// later rolled back, but committed balances are never below zero unless
// overdraft is enabled on the transfer service.
type Account struct {
	ID      string `db:"account_id" json:"id"`
	Balance int64  `db:"balance" json:"balance"`
}

// NewAccount creates an Account.
func NewAccount(id string, balance int64) *Account {
	return &Account{ID: id, Balance: balance}
}

// Validate checks the fields required to open an account.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return apperror.NewValidation("account id is required")
	}
	if a.Balance < 0 {
		return apperror.NewValidation("opening balance must not be negative").
			WithDetail("balance", a.Balance)
	}
	return nil
}
