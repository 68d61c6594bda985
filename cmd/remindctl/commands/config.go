package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/config"
	"github.com/benvon/smart-todo-reminders/internal/engine"
	"github.com/benvon/smart-todo-reminders/internal/reminders"
	"github.com/spf13/cobra"
)

// NewConfigCmd creates the config command
func NewConfigCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the validated cadence configuration",
		Long:  "Validate the configuration and print every cadence with its next occurrences",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			return printConfig(cmd.OutOrStdout(), cfg, time.Now(), count)
		},
	}

	cmd.Flags().IntVar(&count, "count", 3, "Number of upcoming occurrences to show per cadence")

	return cmd
}

func printConfig(w io.Writer, cfg *config.Config, now time.Time, count int) error {
	loc, err := cfg.Reminders.Location()
	if err != nil {
		return err
	}
	cadences, err := engine.Cadences(cfg.Reminders, loc)
	if err != nil {
		return err
	}

	rc := cfg.Reminders
	fmt.Fprintf(w, "Notifier:         %s\n", cfg.Notifier)
	fmt.Fprintf(w, "Timezone:         %s\n", rc.Timezone)
	fmt.Fprintf(w, "Send timeout:     %s\n", rc.SendTimeout())
	fmt.Fprintf(w, "Digest dedup:     %t\n", rc.DigestDedup)
	if rc.HousekeepingSchedule != "" {
		fmt.Fprintf(w, "Timer retention:  %s\n", rc.NotifiedTimerRetention())
	}

	fmt.Fprintln(w, "\nCadences:")
	for _, c := range cadences {
		fmt.Fprintf(w, "  %s  [%s]\n", c.Name, c)
		runs, err := upcoming(c, now, count)
		if err != nil {
			return err
		}
		for _, at := range runs {
			fmt.Fprintf(w, "    next %s  (%s)\n", at.In(loc).Format("Mon 2006-01-02 15:04 MST"), at.UTC().Format(time.RFC3339))
		}
	}
	return nil
}

func upcoming(c reminders.Cadence, from time.Time, count int) ([]time.Time, error) {
	runs := make([]time.Time, 0, count)
	at := from
	for i := 0; i < count; i++ {
		next, err := c.Next(at)
		if err != nil {
			return nil, fmt.Errorf("cadence %s: %w", c.Name, err)
		}
		runs = append(runs, next)
		at = next
	}
	return runs, nil
}
