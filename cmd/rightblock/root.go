package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rightblock/internal/config"
	"rightblock/internal/database"
	"rightblock/internal/logger"
	"rightblock/internal/queue"
	"rightblock/internal/search"
	"rightblock/internal/store"
)

// app carries what every subcommand needs after flag parsing
type app struct {
	cfgFile string
	debug   bool
	cfg     *config.Config
	log     *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "rightblock",
		Short:         "Bulk-block Threads accounts from your own browser session",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default $RB_CONFIG or ./config.yaml)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		runCommand(a),
		workerCommand(a),
		probeCommand(a),
		importCommand(a),
		exportCommand(a),
		statusCommand(a),
		stopCommand(a),
		retryCommand(a),
		listenCommand(a),
		versionCommand(),
	)
	return root
}

func (a *app) init() error {
	path := a.cfgFile
	if path == "" {
		path = os.Getenv("RB_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	a.cfg = cfg

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

// openState connects the durable backend and, when configured, the history
// search index. shared commands only make sense against a store other
// processes can reach. The caller closes the store.
func (a *app) openState(ctx context.Context, shared bool) (*queue.State, *search.HistoryIndex, error) {
	if shared {
		if err := database.RequireShared(a.cfg.Store); err != nil {
			return nil, nil, err
		}
	}
	backend, err := database.Open(ctx, a.cfg.Store, a.log.Named("database"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	s := store.New(backend, nil, a.log.Named("store"))
	st := queue.New(s, a.log.Named("queue"))

	var idx *search.HistoryIndex
	if ms := a.cfg.Search.Meilisearch; ms.Host != "" {
		idx = search.NewHistoryIndex(ms.Host, ms.APIKey, ms.Index, a.log.Named("search"))
		if err := idx.InitIndex(); err != nil {
			a.log.Warn("failed to initialize search index", zap.Error(err))
		} else {
			idx.Sync(ctx, st.History(ctx))
		}
		st.SetObserver(idx)
	}
	return st, idx, nil
}
