package dto

import (
	"time"

	"ledgertx/internal/domain/transfer"
)

// TransferRequest moves amount from FromID to ToID.
// Amount is checked by the service so that every attempt is counted.
type TransferRequest struct {
	FromID string `json:"fromId" binding:"required"`
	ToID   string `json:"toId" binding:"required"`
	Amount int64  `json:"amount"`
}

// TransferResponse describes a committed transfer.
type TransferResponse struct {
	ID          string    `json:"id"`
	FromID      string    `json:"fromId"`
	ToID        string    `json:"toId"`
	Amount      int64     `json:"amount"`
	FromBalance int64     `json:"fromBalance"`
	ToBalance   int64     `json:"toBalance"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FromTransferResult converts a service result.
func FromTransferResult(r *transfer.Result) TransferResponse {
	return TransferResponse{
		ID:          r.ID.String(),
		FromID:      r.FromID,
		ToID:        r.ToID,
		Amount:      r.Amount,
		FromBalance: r.FromBalance,
		ToBalance:   r.ToBalance,
		CreatedAt:   r.CreatedAt,
	}
}
