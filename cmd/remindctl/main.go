package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/benvon/smart-todo-reminders/cmd/remindctl/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:           "remindctl",
		Short:         "Operations tool for the reminder engine",
		Long:          "CLI tool for inspecting cadences and timers, listing pending notifications and running a cadence on demand",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewDueCmd())
	rootCmd.AddCommand(commands.NewFireCmd())
	rootCmd.AddCommand(commands.NewTimerCmd())
	rootCmd.AddCommand(commands.NewConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
