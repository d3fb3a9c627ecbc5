// Package transfer moves balance between two accounts inside one
// transaction scope.
package transfer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ledgertx/internal/core/apperror"
	"ledgertx/internal/core/id"
	"ledgertx/internal/core/tx"
	"ledgertx/internal/domain/account"
	"ledgertx/pkg/logger"
)

var tracer = otel.Tracer("ledgertx/transfer")

// Request describes one transfer.
type Request struct {
	FromID string
	ToID   string
	Amount int64
}

// Validate checks the request shape; balances are checked by the service.
func (r Request) Validate() error {
	if strings.TrimSpace(r.FromID) == "" || strings.TrimSpace(r.ToID) == "" {
		return apperror.NewValidation("source and destination account ids are required")
	}
	if r.FromID == r.ToID {
		return apperror.NewValidation("source and destination must differ").
			WithDetail("account_id", r.FromID)
	}
	if r.Amount <= 0 {
		return apperror.NewValidation("amount must be positive").
			WithDetail("amount", r.Amount)
	}
	return nil
}

// Result is returned for a committed transfer.
type Result struct {
	ID          id.ID     `json:"id"`
	FromID      string    `json:"fromId"`
	ToID        string    `json:"toId"`
	Amount      int64     `json:"amount"`
	FromBalance int64     `json:"fromBalance"`
	ToBalance   int64     `json:"toBalance"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Outcome is how a transfer call ended.
type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
)

// Observer is notified once per Transfer call.
type Observer interface {
	TransferFinished(ctx context.Context, req Request, outcome Outcome, err error)
}

// Option configures a Service.
type Option func(*Service)

// WithBeforeCredit adds hooks run between the debit and the credit leg.
func WithBeforeCredit(hooks ...Hook) Option {
	return func(s *Service) {
		s.beforeCredit = append(s.beforeCredit, hooks...)
	}
}

// WithOverdraft lets the source balance go below zero.
func WithOverdraft() Option {
	return func(s *Service) {
		s.allowOverdraft = true
	}
}

// WithObserver registers an Observer.
func WithObserver(obs Observer) Option {
	return func(s *Service) {
		s.observer = obs
	}
}

// Service orchestrates a transfer: both legs run on one scope, which is
// committed when both succeed and rolled back otherwise.
type Service struct {
	txm  tx.Manager
	repo account.Repository

	beforeCredit   []Hook
	allowOverdraft bool
	observer       Observer
	now            func() time.Time
}

// NewService creates a transfer service.
func NewService(txm tx.Manager, repo account.Repository, opts ...Option) *Service {
	s := &Service{
		txm:  txm,
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transfer debits fromID and credits toID by amount.
//
// Errors carry apperror codes: NOT_FOUND for a missing account,
// ILLEGAL_STATE when a hook forbids the transfer, DATABASE_ERROR for
// backend faults, VALIDATION_ERROR and INSUFFICIENT_FUNDS for rejected
// requests. In every error case neither balance changes.
func (s *Service) Transfer(ctx context.Context, fromID, toID string, amount int64) (*Result, error) {
	req := Request{FromID: fromID, ToID: toID, Amount: amount}

	ctx, span := tracer.Start(ctx, "transfer",
		trace.WithAttributes(
			attribute.String("transfer.from", fromID),
			attribute.String("transfer.to", toID),
			attribute.Int64("transfer.amount", amount),
		))
	defer span.End()

	result := &Result{
		ID:     id.New(),
		FromID: fromID,
		ToID:   toID,
		Amount: amount,
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := req.Validate(); err != nil {
			return err
		}

		debited, err := s.debit(ctx, req)
		if err != nil {
			return fmt.Errorf("debit %s: %w", req.FromID, err)
		}

		for _, hook := range s.beforeCredit {
			if err := hook(ctx, req); err != nil {
				if !apperror.IsAppError(err) {
					err = apperror.NewIllegalState("transfer rejected").WithCause(err)
				}
				return err
			}
		}

		credited, err := s.credit(ctx, req)
		if err != nil {
			return fmt.Errorf("credit %s: %w", req.ToID, err)
		}

		result.FromBalance = debited
		result.ToBalance = credited
		return nil
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer rolled back")
		logger.Warn(ctx, "transfer rolled back",
			"transfer_id", result.ID,
			"from", fromID,
			"to", toID,
			"amount", amount,
			"error", err)
		s.notify(ctx, req, OutcomeRolledBack, err)
		return nil, err
	}

	result.CreatedAt = s.now().UTC()
	logger.Info(ctx, "transfer committed",
		"transfer_id", result.ID,
		"from", fromID,
		"to", toID,
		"amount", amount)
	s.notify(ctx, req, OutcomeCommitted, nil)

	return result, nil
}

func (s *Service) debit(ctx context.Context, req Request) (int64, error) {
	from, err := s.repo.FindByID(ctx, req.FromID)
	if err != nil {
		return 0, err
	}

	if from.Balance < math.MinInt64+req.Amount {
		return 0, apperror.NewValidation("debit would underflow balance").
			WithDetail("account_id", from.ID)
	}
	balance := from.Balance - req.Amount
	if balance < 0 && !s.allowOverdraft {
		return 0, apperror.NewInsufficientFunds(from.ID, req.Amount, from.Balance)
	}

	if err := s.repo.Update(ctx, from.ID, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) credit(ctx context.Context, req Request) (int64, error) {
	to, err := s.repo.FindByID(ctx, req.ToID)
	if err != nil {
		return 0, err
	}

	if to.Balance > math.MaxInt64-req.Amount {
		return 0, apperror.NewValidation("credit would overflow balance").
			WithDetail("account_id", to.ID)
	}
	balance := to.Balance + req.Amount

	if err := s.repo.Update(ctx, to.ID, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) notify(ctx context.Context, req Request, outcome Outcome, err error) {
	if s.observer != nil {
		s.observer.TransferFinished(ctx, req, outcome, err)
	}
}
