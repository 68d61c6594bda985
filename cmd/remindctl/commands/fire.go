package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/benvon/smart-todo-reminders/internal/logger"
	"github.com/benvon/smart-todo-reminders/internal/reminders"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewFireCmd creates the fire command
func NewFireCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "fire <cadence>",
		Short: "Run one cadence pass now",
		Long: "Run a single synchronous pass of a cadence (timers, digest-HHMM, housekeeping) through the same jobs " +
			"the scheduler runs. Notifications are sent through the configured notifier.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			log, err := logger.NewDevelopmentLogger(debug, zap.String("service", "remindctl"))
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() {
				_ = logger.Sync(log)
			}()

			eng, _, cleanup, err := openEngine(ctx, log)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := eng.Scheduler.RunNow(ctx, args[0])
			if err != nil {
				return err
			}

			printResult(cmd.OutOrStdout(), result)
			if result.Status() == reminders.StatusHardFailure {
				return fmt.Errorf("cadence %s failed: %w", args[0], result.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}

func printResult(w io.Writer, r reminders.RunResult) {
	fmt.Fprintf(w, "Cadence:  %s\n", r.Cadence)
	fmt.Fprintf(w, "Status:   %s\n", r.Status())
	fmt.Fprintf(w, "Duration: %s\n", r.Duration())
	fmt.Fprintf(w, "Sent: %d  Skipped: %d  Failed: %d\n", r.Sent, r.Skipped, r.Failed)
	if r.Purged > 0 {
		fmt.Fprintf(w, "Purged:   %d\n", r.Purged)
	}
	if r.Err != nil {
		fmt.Fprintf(w, "Error:    %v\n", r.Err)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  ✘ %s  %s  %s\n", f.Item, f.Recipient, f.Error)
	}
}
