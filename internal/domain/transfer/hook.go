package transfer

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"ledgertx/internal/core/apperror"
)

// Hook runs after the debit has been written and before the credit leg.
// A non-nil error aborts the transfer and rolls the debit back.
type Hook func(ctx context.Context, req Request) error

// ForbidDestination fails any transfer whose destination is one of ids.
// It is the reserved-identifier fixture used to exercise the rollback path.
func ForbidDestination(ids ...string) Hook {
	forbidden := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		forbidden[id] = struct{}{}
	}

	return func(ctx context.Context, req Request) error {
		if _, ok := forbidden[req.ToID]; ok {
			return apperror.NewIllegalState("transfer to forbidden account").
				WithDetail("to", req.ToID)
		}
		return nil
	}
}

// CompileRule builds a Hook from a CEL expression over from, to and amount.
// The expression must be boolean; true means the transfer is forbidden.
//
//	to == "ex"
//	amount > 1000000 || from.startsWith("frozen-")
func CompileRule(expr string) (Hook, error) {
	env, err := cel.NewEnv(
		cel.Variable("from", cel.StringType),
		cel.Variable("to", cel.StringType),
		cel.Variable("amount", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile rule %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %q must be boolean, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("plan rule %q: %w", expr, err)
	}

	return func(ctx context.Context, req Request) error {
		out, _, err := prg.Eval(map[string]any{
			"from":   req.FromID,
			"to":     req.ToID,
			"amount": req.Amount,
		})
		if err != nil {
			return apperror.NewInternal(fmt.Errorf("evaluate rule %q: %w", expr, err))
		}

		if forbidden, ok := out.Value().(bool); ok && forbidden {
			return apperror.NewIllegalState("transfer forbidden by rule").
				WithDetail("rule", expr).
				WithDetail("to", req.ToID)
		}
		return nil
	}, nil
}
