// Package cli implements the ledgerctl command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ledgertx/internal/app"
	"ledgertx/internal/config"
	appctx "ledgertx/internal/core/context"
	"ledgertx/internal/domain/account"
	"ledgertx/internal/domain/transfer"
	"ledgertx/pkg/logger"
)

// FixtureAccounts are the accounts seeded by default.
// Transfers into "ex" are meant to be forbidden by a rule or --forbid.
var FixtureAccounts = []string{"memberA", "memberB", "ex"}

// FixtureBalance is the opening balance of every fixture account.
const FixtureBalance int64 = 10000

// rootFlags holds the persistent flags.
type rootFlags struct {
	configPath string
	store      string
	forbid     []string
	jsonOut    bool
	// scale is the number of decimal places of the currency; amounts are
	// printed and parsed in major units when it is non-zero.
	scale int32
}

// session is the state shared by the subcommands of one invocation.
type session struct {
	flags rootFlags
	app   *app.App
	// owned is false when app was injected and must not be closed here.
	owned bool
}

// NewRoot creates the ledgerctl root command.
func NewRoot() *cobra.Command {
	return newRoot(&session{})
}

func newRoot(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Inspect accounts and run transfers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.open(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			s.close()
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}

	cmd.PersistentFlags().StringVarP(&s.flags.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&s.flags.store, "store", "", "storage backend: postgres or memory (overrides config)")
	cmd.PersistentFlags().StringSliceVar(&s.flags.forbid, "forbid", nil, "destination account ids that transfers must not reach")
	cmd.PersistentFlags().BoolVar(&s.flags.jsonOut, "json", false, "Output in JSON format")
	cmd.PersistentFlags().Int32Var(&s.flags.scale, "scale", 0, "decimal places for amounts (0 prints minor units)")

	cmd.AddCommand(newMigrateCmd(s))
	cmd.AddCommand(newSeedCmd(s))
	cmd.AddCommand(newTransferCmd(s))
	cmd.AddCommand(newBalanceCmd(s))
	cmd.AddCommand(newDeleteCmd(s))
	return cmd
}

// open loads configuration and wires the backend unless one was injected.
func (s *session) open(cmd *cobra.Command) error {
	if s.flags.scale < 0 || s.flags.scale > 18 {
		return fmt.Errorf("--scale must be between 0 and 18")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = appctx.EnsureTrace(ctx)

	if s.app != nil {
		cmd.SetContext(ctx)
		return nil
	}

	cfg, err := config.Load(s.flags.configPath)
	if err != nil {
		return err
	}
	if s.flags.store != "" {
		cfg.Store = s.flags.store
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Name:        "ledgerctl",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	ctx = logger.WithLogger(ctx, log)
	cmd.SetContext(ctx)

	var opts []transfer.Option
	if len(s.flags.forbid) > 0 {
		opts = append(opts, transfer.WithBeforeCredit(transfer.ForbidDestination(s.flags.forbid...)))
	}

	a, err := app.Build(ctx, cfg, cfg.Store, opts...)
	if err != nil {
		return err
	}
	s.app = a
	s.owned = true

	// A fresh memory store is empty; give it the fixture so one-shot
	// commands have something to work on.
	if cfg.Store == app.StoreMemory {
		if err := seed(ctx, a.Accounts, FixtureAccounts, FixtureBalance); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) close() {
	if s.owned && s.app != nil {
		s.app.Close()
		s.app = nil
	}
}

// seed creates each account with balance, resetting the balance of
// accounts that already exist.
func seed(ctx context.Context, repo account.Repository, ids []string, balance int64) error {
	for _, id := range ids {
		acc := account.NewAccount(id, balance)
		if err := acc.Validate(); err != nil {
			return err
		}
		err := repo.Save(ctx, acc)
		if err == nil {
			continue
		}
		if !isDuplicate(err) {
			return fmt.Errorf("seed %s: %w", id, err)
		}
		if err := repo.Update(ctx, id, balance); err != nil {
			return fmt.Errorf("seed %s: %w", id, err)
		}
	}
	return nil
}
