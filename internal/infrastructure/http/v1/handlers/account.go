package handlers

import (
	"github.com/gin-gonic/gin"

	"ledgertx/internal/domain/account"
	"ledgertx/internal/infrastructure/http/v1/dto"
)

// AccountHandler exposes account CRUD. Every call is autonomous: the
// repository runs without a transaction scope.
type AccountHandler struct {
	*BaseHandler
	repo account.Repository
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(base *BaseHandler, repo account.Repository) *AccountHandler {
	return &AccountHandler{BaseHandler: base, repo: repo}
}

// Create opens an account.
// POST /api/v1/accounts
func (h *AccountHandler) Create(c *gin.Context) {
	var req dto.CreateAccountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	acc := req.ToDomain()
	if err := acc.Validate(); err != nil {
		h.Error(c, err)
		return
	}
	if err := h.repo.Save(c.Request.Context(), acc); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, acc.ID)
}

// List returns all accounts.
// GET /api/v1/accounts
func (h *AccountHandler) List(c *gin.Context) {
	accs, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(dto.FromAccounts(accs)))
}

// Get returns one account.
// GET /api/v1/accounts/:id
func (h *AccountHandler) Get(c *gin.Context) {
	acc, err := h.repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAccount(acc))
}

// Delete removes an account. Deleting a missing account still returns 204.
// DELETE /api/v1/accounts/:id
func (h *AccountHandler) Delete(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
