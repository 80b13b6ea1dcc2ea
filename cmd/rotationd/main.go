/*
main.go - rotationd entry point

COMMANDS:
  serve    HTTP API + daily cron scheduler
  run      One rotation pass for a date, then exit (for external schedulers)
  version  Print build information

CONFIGURATION:
  --config rotation.yaml (optional; defaults apply when the file is absent)
  --db and --port override the file.

EXAMPLES:
  # Serve with file database
  rotationd serve --db ./data/rotation.db

  # One pass from system cron
  rotationd run --config /etc/rotation.yaml

  # Catch up a missed day (only dates after the last processed run)
  rotationd run --date 2024-03-01

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
*/
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/rotation-engine/config"
	"github.com/warp/rotation-engine/generic"
	"github.com/warp/rotation-engine/notify"
	"github.com/warp/rotation-engine/rotation"
	"github.com/warp/rotation-engine/store/sqlite"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

type globalFlags struct {
	configPath string
	dbPath     string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "rotationd",
		Short:         "Crew rotation scheduler and stand-back ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "rotation.yaml", "path to config file")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides config; \":memory:\" for in-memory)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newRunCmd(flags))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rotationd %s (commit: %s)\n", Version, Commit)
		},
	}
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, err
		}
		cfg = config.Default()
	}
	if flags.dbPath != "" {
		cfg.Database.Path = flags.dbPath
	}
	return cfg, nil
}

// openStore opens the database and builds the notifier chain.
func openStore(cfg *config.Config, logger *slog.Logger) (*sqlite.Store, generic.Notifier, error) {
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize database: %w", err)
	}
	notifiers := notify.Multi{notify.NewLog(logger)}
	if cfg.Notify.SlackWebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlack(cfg.Notify.SlackWebhookURL, cfg.Notify.Channel))
	}
	return store, notifiers, nil
}

func newRunner(cfg *config.Config, store *sqlite.Store, notifier generic.Notifier, logger *slog.Logger) *rotation.Runner {
	runner := rotation.NewRunner(store, notifier, logger)
	runner.Concurrency = cfg.Runner.Concurrency
	return runner
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
