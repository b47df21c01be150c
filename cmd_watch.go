package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"coursedesk/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// watchCmd shows the live job stack until the user quits
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow background jobs started by this client",
	Long: `Connects to the live update channel and shows every job this client
started as a card with its progress. Finished jobs disappear after a short
grace period; press x to dismiss one sooner.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg, logger)
	if err := app.startup(ctx); err != nil {
		return err
	}
	defer app.shutdown()

	return runUI(ctx, app, ui.Options{})
}

// runUI runs the progress stack until quit or ctx is cancelled.
func runUI(ctx context.Context, app *App, opts ui.Options) error {
	model := ui.NewModel(app.registry, app.toasts, opts)
	defer model.Dispose()

	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
