package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/rotation-engine/generic"
	"github.com/warp/rotation-engine/rotation"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one rotation pass and print the summary",
		Long:  `Runs the rotation runner once for --date (default: today in the scheduler timezone).

--date must be later than the last processed run date. A date at or before
it is a no-op, so this cannot replay past days once a later day has run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, flags, date)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to process (YYYY-MM-DD)")
	return cmd
}

func runOnce(cmd *cobra.Command, flags *globalFlags, date string) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	today := generic.Today(cfg.Location())
	if date != "" {
		if today, err = generic.ParseDate(date); err != nil {
			return err
		}
	}

	store, notifier, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	summary, err := newRunner(cfg, store, notifier, logger).RunOnce(ctx, today)
	if err != nil {
		return err
	}
	printSummary(cmd, summary)
	return nil
}

func printSummary(cmd *cobra.Command, s rotation.RunSummary) {
	out := cmd.OutOrStdout()
	if s.AlreadyRan {
		fmt.Fprintf(out, "%s: already processed, nothing to do\n", s.Date)
		return
	}
	fmt.Fprintf(out, "%s: %d change(s), %d worker(s) evaluated\n", s.Date, s.TotalChanges, len(s.Results))
	for _, r := range s.Results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(out, "  %-20s %-12s %v\n", r.WorkerID, r.Outcome, r.Err)
		case r.Outcome == rotation.OutcomeTransitioned:
			fmt.Fprintf(out, "  %-20s %-12s %s -> %s\n", r.WorkerID, r.Outcome, r.From, r.To)
		}
	}
}
