package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ledgertx/internal/core/apperror"
	"ledgertx/internal/domain/account"
)

func isDuplicate(err error) bool {
	return apperror.HasCode(err, apperror.CodeDuplicate)
}

// formatAmount renders minor units, in major units when --scale is set.
func (s *session) formatAmount(v int64) string {
	if s.flags.scale == 0 {
		return strconv.FormatInt(v, 10)
	}
	return decimal.New(v, -s.flags.scale).StringFixed(s.flags.scale)
}

// parseAmount is the inverse of formatAmount. Fractions finer than the
// scale are rejected.
func (s *session) parseAmount(raw string) (int64, error) {
	invalid := apperror.NewValidation("invalid amount").WithDetail("amount", raw)
	if s.flags.scale == 0 {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, invalid.WithCause(err)
		}
		return v, nil
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, invalid.WithCause(err)
	}
	minor := d.Shift(s.flags.scale)
	if !minor.IsInteger() {
		return 0, invalid.WithDetail("scale", s.flags.scale)
	}
	if !minor.BigInt().IsInt64() {
		return 0, invalid
	}
	return minor.IntPart(), nil
}

func (s *session) print(w io.Writer, v any, text func(io.Writer)) error {
	if s.flags.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func newMigrateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the account table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.app.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
			return nil
		},
	}
}

func newSeedCmd(s *session) *cobra.Command {
	var balance int64

	cmd := &cobra.Command{
		Use:   "seed [id...]",
		Short: "Create accounts with an opening balance",
		Long: `Create the given accounts, or the fixture accounts when none are named.
Existing accounts are reset to the opening balance.

Examples:
  ledgerctl seed
  ledgerctl seed alice bob --balance 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := args
			if len(ids) == 0 {
				ids = FixtureAccounts
			}
			if err := seed(cmd.Context(), s.app.Accounts, ids, balance); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d accounts with balance %s\n", len(ids), s.formatAmount(balance))
			return nil
		},
	}

	cmd.Flags().Int64Var(&balance, "balance", FixtureBalance, "opening balance in minor units")
	return cmd
}

func newTransferCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer FROM TO AMOUNT",
		Short: "Move AMOUNT from one account to another in a single transaction",
		Long: `Debit FROM and credit TO inside one transaction. Either both balances
change or neither does.

Examples:
  ledgerctl transfer memberA memberB 2000
  ledgerctl --forbid ex transfer memberA ex 2000   # rolled back
  ledgerctl --scale 2 transfer memberA memberB 20.00`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := s.parseAmount(args[2])
			if err != nil {
				return err
			}

			res, err := s.app.Transfer.Transfer(cmd.Context(), args[0], args[1], amount)
			if err != nil {
				return err
			}

			return s.print(cmd.OutOrStdout(), res, func(w io.Writer) {
				fmt.Fprintf(w, "transfer %s committed: %s=%s %s=%s\n",
					res.ID, res.FromID, s.formatAmount(res.FromBalance), res.ToID, s.formatAmount(res.ToBalance))
			})
		},
	}
}

func newBalanceCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [id]",
		Short: "Show one account, or every account when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var accs []*account.Account
			if len(args) == 1 {
				acc, err := s.app.Accounts.FindByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				accs = []*account.Account{acc}
			} else {
				var err error
				if accs, err = s.app.Accounts.List(cmd.Context()); err != nil {
					return err
				}
			}

			return s.print(cmd.OutOrStdout(), accs, func(w io.Writer) {
				for _, acc := range accs {
					fmt.Fprintf(w, "%s\t%s\n", acc.ID, s.formatAmount(acc.Balance))
				}
			})
		},
	}
}

func newDeleteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an account (no error if it does not exist)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.app.Accounts.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
