package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"ledgertx/internal/domain/transfer"
	"ledgertx/internal/infrastructure/http/v1/dto"
)

// Transferer is satisfied by *transfer.Service.
type Transferer interface {
	Transfer(ctx context.Context, fromID, toID string, amount int64) (*transfer.Result, error)
}

// TransferHandler exposes the transfer operation.
type TransferHandler struct {
	*BaseHandler
	svc Transferer
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(base *BaseHandler, svc Transferer) *TransferHandler {
	return &TransferHandler{BaseHandler: base, svc: svc}
}

// Create runs one transfer.
// POST /api/v1/transfers
func (h *TransferHandler) Create(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.svc.Transfer(c.Request.Context(), req.FromID, req.ToID, req.Amount)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CreatedWith(c, dto.FromTransferResult(result))
}
