package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/benvon/smart-todo-reminders/internal/config"
	"github.com/benvon/smart-todo-reminders/internal/engine"
	"go.uber.org/zap"
)

// openEngine loads configuration and wires the engine the scheduler would run.
// The returned cleanup closes every connection.
func openEngine(ctx context.Context, log *zap.Logger) (*engine.Engine, *config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	eng, err := engine.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := eng.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close connections: %v\n", err)
		}
	}
	return eng, cfg, cleanup, nil
}
