// retain is a file-backed long-term memory store for coding agents: notes are
// kept as markdown with YAML front-matter, scored by difficulty and access
// patterns, and gradually degraded to hints and abstracts when the store
// fills up.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/retain/pkg/config"
	"github.com/entrhq/retain/pkg/eviction"
	"github.com/entrhq/retain/pkg/logging"
	"github.com/entrhq/retain/pkg/memory"
	"github.com/entrhq/retain/pkg/session"
	"github.com/entrhq/retain/pkg/tokencount"
	"github.com/entrhq/retain/pkg/tools"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	store   *memory.Store
	engine  *eviction.Engine
	tools   *tools.Dispatcher
	session *session.Manager
	counter *tokencount.Counter
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	// On error NewLogger hands back a stderr fallback; the command still
	// works either way.
	log, _ := logging.NewLogger(cfg.LogDir(), "cli")
	a.log = log

	store, err := memory.NewStore(cfg.DataPath,
		memory.WithLogger(log),
		memory.WithDefaultConfig(memory.StateConfig{
			MaxMemories:       cfg.MaxMemories,
			MemoriesToLoad:    cfg.MemoriesToLoad,
			EvictionBatchSize: cfg.EvictionBatchSize,
			TokenCounting: memory.TokenCountingConfig{
				Enabled:      cfg.TokenCounting,
				NormalizeCap: cfg.TokenNormalizeCap,
			},
		}),
	)
	if err != nil {
		return err
	}
	a.store = store

	// Capacity tunables live in the store's state.json once initialized, so
	// an existing data directory keeps its own settings.
	state, err := store.ReadState()
	if err != nil {
		return err
	}
	a.engine = eviction.NewEngine(store, eviction.Config{
		MaxMemories: state.Config.MaxMemories,
		BatchSize:   state.Config.EvictionBatchSize,
	}, eviction.WithLogger(log))

	a.tools = tools.NewDispatcher(store, a.engine, tools.WithLogger(log))
	a.session = session.NewManager(store, a.engine, session.WithLogger(log))
	a.counter = tokencount.NewCounter(state.Config.TokenCounting.Enabled, state.Config.TokenCounting.NormalizeCap)
	return nil
}

func (a *app) close() {
	if a.log != nil {
		_ = a.log.Close()
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "retain",
		Short:         "Persistent long-term memory for coding agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.AddCommand(
		newStoreCmd(a),
		newRecallCmd(a),
		newListCmd(a),
		newGetCmd(a),
		newForgetCmd(a),
		newStatusCmd(a),
		newCheckCmd(a),
		newFixCmd(a),
		newEvictCmd(a),
		newRestoreCmd(a),
		newArchivesCmd(a),
		newSessionCmd(a),
	)
	return root
}
