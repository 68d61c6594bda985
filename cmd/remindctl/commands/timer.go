package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/database"
	"github.com/benvon/smart-todo-reminders/internal/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// NewTimerCmd creates the timer command
func NewTimerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timer <id>",
		Short: "Show a timer's notification state",
		Long:  "Show a timer's target time, whether its expiry notice went out, and any claim held by a pass sending it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid timer id %q: %w", args[0], err)
			}

			ctx := context.Background()

			eng, _, cleanup, err := openEngine(ctx, zap.NewNop())
			if err != nil {
				return err
			}
			defer cleanup()

			timer, err := eng.Timers.GetByID(ctx, id)
			if err != nil {
				return err
			}

			owner := "(unknown owner)"
			user, err := eng.Users.GetByID(ctx, timer.UserID)
			switch {
			case err == nil && user.HasEmail():
				owner = user.Email
			case err == nil:
				owner = "(no email)"
			case !errors.Is(err, database.ErrNotFound):
				return err
			}

			printTimer(cmd.OutOrStdout(), eng.Location, timer, owner, time.Now())
			return nil
		},
	}
}

func printTimer(w io.Writer, loc *time.Location, timer *models.Timer, owner string, now time.Time) {
	fmt.Fprintf(w, "Timer:    %s\n", timer.ID)
	fmt.Fprintf(w, "Owner:    %s  %s\n", timer.UserID, owner)
	fmt.Fprintf(w, "Target:   %s\n", timer.TargetTime.In(loc).Format(timeLayout))
	fmt.Fprintf(w, "State:    %s\n", timer.State())
	if timer.NotifiedAt != nil {
		fmt.Fprintf(w, "Notified: %s\n", timer.NotifiedAt.In(loc).Format(timeLayout))
	}
	if timer.ClaimedUntil != nil && timer.ClaimedUntil.After(now) {
		fmt.Fprintf(w, "Claimed:  until %s\n", timer.ClaimedUntil.In(loc).Format(timeLayout))
	}
	if timer.IsDue(now) {
		fmt.Fprintln(w, "Due:      yes, the next timer pass will send it")
	}
}
