package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/psh-project/psh/internal/cli"
	"github.com/psh-project/psh/internal/client"
	"github.com/psh-project/psh/internal/config"
	"github.com/psh-project/psh/internal/ipc"
	"github.com/psh-project/psh/internal/logging"
)

type loader func() (*config.Config, error)

func newSetenvCmd(code *int) *cobra.Command {
	return &cobra.Command{
		Use:   "setenv KEY VALUE...",
		Short: "Set a variable in the psh this command runs under",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			*code = cli.RunSetenv(ctxOf(cmd), cmd.ErrOrStderr(), os.Getenv(ipc.SockEnv), args)
		},
	}
}

func newPeersCmd(load loader, code *int) *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List the other running shells",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			*code = cli.RunPeers(ctxOf(cmd), cmd.OutOrStdout(), cmd.ErrOrStderr(), client.New(cfg.RuntimeDir), logging.Discard())
			return nil
		},
	}
}

func newJournalCmd(load loader, code *int) *cobra.Command {
	return &cobra.Command{
		Use:       "journal verify|tail [N]",
		Short:     "Check or show the journal of executed lines",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"verify", "tail"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			*code = cli.RunJournal(cmd.OutOrStdout(), cfg.Journal.Path, args)
			return nil
		},
	}
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
