package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/reminders"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewDueCmd creates the due command
func NewDueCmd() *cobra.Command {
	var userFlag string

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List pending notifications without sending",
		Long:  "List due timers and today's digest recipients as the next pass would see them. Nothing is sent or marked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var userID uuid.UUID
			if userFlag != "" {
				id, err := uuid.Parse(userFlag)
				if err != nil {
					return fmt.Errorf("invalid --user %q: %w", userFlag, err)
				}
				userID = id
			}

			ctx := context.Background()

			eng, _, cleanup, err := openEngine(ctx, zap.NewNop())
			if err != nil {
				return err
			}
			defer cleanup()

			now := time.Now()
			timers, err := eng.TimerSelector.Select(ctx, now)
			if err != nil {
				return err
			}

			var digest *reminders.DigestSelection
			if userID != uuid.Nil {
				timers = timersFor(timers, userID)
				digest, err = eng.DigestSelector.SelectUser(ctx, now, userID)
			} else {
				digest, err = eng.DigestSelector.Select(ctx, now)
			}
			if err != nil {
				return err
			}

			printDue(cmd.OutOrStdout(), eng.Location, timers, digest)
			return nil
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "Only show notifications for this user ID")

	return cmd
}

// timersFor keeps the due and skipped timers owned by userID
func timersFor(selection *reminders.TimerSelection, userID uuid.UUID) *reminders.TimerSelection {
	out := &reminders.TimerSelection{}
	for _, due := range selection.Due {
		if due.Timer.UserID == userID {
			out.Due = append(out.Due, due)
		}
	}
	for _, s := range selection.Skipped {
		if s.UserID == userID {
			out.Skipped = append(out.Skipped, s)
		}
	}
	return out
}

func printDue(w io.Writer, loc *time.Location, timers *reminders.TimerSelection, digest *reminders.DigestSelection) {
	fmt.Fprintf(w, "Due timers (%d):\n", len(timers.Due))
	for _, due := range timers.Due {
		fmt.Fprintf(w, "  - %s  %s  target %s  to %s\n",
			due.Timer.ID,
			due.Timer.State(),
			due.Timer.TargetTime.In(loc).Format("2006-01-02 15:04 MST"),
			due.User.Email,
		)
	}

	fmt.Fprintf(w, "\nDigest recipients for %s (%d):\n", digest.WindowStart.Format("2006-01-02"), len(digest.Batches))
	for _, batch := range digest.Batches {
		fmt.Fprintf(w, "  - %s: %d todo(s)\n", batch.User.Email, len(batch.Todos))
	}

	skipped := append(append([]reminders.SkippedRecipient(nil), timers.Skipped...), digest.Skipped...)
	if len(skipped) == 0 {
		return
	}
	fmt.Fprintf(w, "\nSkipped (%d):\n", len(skipped))
	for _, s := range skipped {
		fmt.Fprintf(w, "  - user %s  %s  %s\n", s.UserID, s.Item, s.Reason)
	}
}
