package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/psh-project/psh/internal/client"
	"github.com/psh-project/psh/internal/config"
	"github.com/psh-project/psh/internal/engine"
	"github.com/psh-project/psh/internal/ipc"
	"github.com/psh-project/psh/internal/journal"
	"github.com/psh-project/psh/internal/logging"
	"github.com/psh-project/psh/internal/prompt"
	"github.com/psh-project/psh/internal/repl"
	"github.com/psh-project/psh/internal/service"
	"github.com/psh-project/psh/internal/state"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	code := 0
	root := newRootCmd(afero.NewOsFs(), &code)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "psh: %v\n", err)
		return 1
	}
	return code
}

func newRootCmd(fs afero.Fs, code *int) *cobra.Command {
	var cfgPath string
	load := func() (*config.Config, error) {
		cfg, err := config.LoadFrom(fs, cfgPath)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		return cfg, nil
	}

	root := &cobra.Command{
		Use:           "psh",
		Short:         "An interactive shell that shares its environment with its peers",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			*code = runShell(ctxOf(cmd), fs, cfg)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", config.ConfigPath(), "config file path")

	root.AddCommand(
		newSetenvCmd(code),
		newPeersCmd(load, code),
		newJournalCmd(load, code),
	)
	return root
}

// runShell starts the service socket, the signal forwarder and the
// interactive loop, and returns the process exit code.
func runShell(ctx context.Context, fs afero.Fs, cfg *config.Config) int {
	logger, closer, err := logging.Open(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "psh: log: %v\n", err)
		logger, closer = logging.Discard(), io.NopCloser(nil)
	}
	defer closer.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "psh: history: %v\n", err)
		return 1
	}

	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "psh: %v\n", err)
		return 1
	}
	st := state.New(cfg.History.Path, os.Environ(), dir)

	if removed, err := service.PruneStale(cfg.RuntimeDir); err != nil {
		logger.Warn("prune stale sockets", "err", err)
	} else if len(removed) > 0 {
		logger.Info("pruned stale sockets", "pids", removed)
	}

	ln, err := service.Listen(cfg.RuntimeDir, os.Getpid())
	if err != nil {
		fmt.Fprintf(os.Stderr, "psh: service: %v\n", err)
		return 1
	}
	st.Setenv(ipc.SockEnv, ln.Addr().String())

	sh := engine.New(st, client.New(cfg.RuntimeDir), logger)

	var plugin *prompt.Plugin
	if cfg.Plugin.Path != "" {
		plugin, err = prompt.LoadPluginFile(ctx, fs, cfg.Plugin.Path, st.Getenv, logger)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			logger.Warn("prompt plugin disabled", "path", cfg.Plugin.Path, "err", err)
		default:
			defer plugin.Close(context.Background())
		}
	}

	var j *journal.Journal
	if cfg.Journal.Enabled {
		if j, err = journal.Open(cfg.Journal.Path); err != nil {
			logger.Warn("journal disabled", "err", err)
			j = nil
		}
	}

	loop := repl.New(sh, repl.Options{
		Prompter:     prompt.New(st, plugin, logger),
		Journal:      j,
		Fs:           fs,
		HistoryLimit: cfg.History.Limit,
		Logger:       logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return service.New(st, logger).Serve(gctx, ln)
	})
	g.Go(func() error {
		return client.ForwardSignals(gctx, st, logger)
	})
	g.Go(func() error {
		defer cancel()
		err := loop.Bootstrap(gctx, cfg.AliasPath, cfg.RcPath)
		if errors.Is(err, engine.ErrExit) {
			return nil
		}
		if err != nil {
			return err
		}
		return loop.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "psh: %v\n", err)
		return 1
	}
	return 0
}
