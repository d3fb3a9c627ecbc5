package dto

import (
	"ledgertx/internal/domain/account"
)

// CreateAccountRequest opens an account with an initial balance.
type CreateAccountRequest struct {
	ID      string `json:"id" binding:"required"`
	Balance int64  `json:"balance" binding:"min=0"`
}

// ToDomain converts the request to an account.
func (r CreateAccountRequest) ToDomain() *account.Account {
	return account.NewAccount(r.ID, r.Balance)
}

// AccountResponse is the account representation.
type AccountResponse struct {
	ID      string `json:"id"`
	Balance int64  `json:"balance"`
}

// FromAccount converts a domain account.
func FromAccount(a *account.Account) AccountResponse {
	return AccountResponse{ID: a.ID, Balance: a.Balance}
}

// FromAccounts converts a list of domain accounts.
func FromAccounts(accs []*account.Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(accs))
	for _, a := range accs {
		out = append(out, FromAccount(a))
	}
	return out
}
