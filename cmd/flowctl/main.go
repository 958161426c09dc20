// Package main provides flowctl, an operator CLI for validating, registering
// and activating guided-resolution flow definitions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/guided-resolution/internal/config"
	"github.com/capitalize-ai/guided-resolution/internal/service"
	"github.com/capitalize-ai/guided-resolution/internal/store"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
)

// Global flags
var (
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "flowctl",
	Short: "Manage guided-resolution flow definitions",
	Long: `flowctl validates flow documents and manages their versions in the
database configured by DATABASE_DRIVER and DATABASE_URL.

Examples:
  flowctl validate flows/damage.yaml           # Check a document offline
  flowctl register flows/damage.yaml --activate
  flowctl activate 3f1c... 2                   # Switch the active version
  flowctl list --category damage_report
  flowctl outbox --status queued`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(outboxCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

// env is the store and flow service shared by the database commands.
type env struct {
	store *store.Store
	flows *service.FlowService
	log   *logger.Logger
}

func openEnv(ctx context.Context) (*env, error) {
	cfg := config.Load()

	level := "warn"
	if verbose {
		level = "debug"
	}
	log, err := logger.New(level, logger.WithFormat(logger.FormatConsole), logger.WithOutputPaths("stderr"))
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx,
		store.WithDriver(cfg.DatabaseDriver),
		store.WithDSN(cfg.DatabaseURL),
		store.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	flows, err := service.NewFlowService(st, cfg.FlowCacheSize, log)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &env{store: st, flows: flows, log: log}, nil
}

func (e *env) Close() {
	e.store.Close()
	_ = e.log.Sync()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
