package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"coursedesk/internal/api"
	"coursedesk/internal/models"
	"coursedesk/internal/tracker"
	"coursedesk/internal/ui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	uploadNoUI           bool
	uploadConnectTimeout time.Duration
)

// uploadCmd uploads files and follows the resulting server job
var uploadCmd = &cobra.Command{
	Use:   "upload <endpoint> <file>...",
	Short: "Upload files and follow the processing job",
	Long: `Uploads one or more files to an API endpoint (for example
"courses/42/materials") and follows the background job the server starts for
them. The request carries the live channel id, so progress events come back
to this client.

Example:
  coursedesk upload courses/42/roster students.csv`,
	Args: cobra.MinimumNArgs(2),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadNoUI, "no-ui", false, "Print progress lines instead of the job stack")
	uploadCmd.Flags().DurationVar(&uploadConnectTimeout, "connect-timeout", 15*time.Second, "How long to wait for the live update channel")
}

func runUpload(cmd *cobra.Command, args []string) error {
	endpoint, paths := args[0], args[1:]
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg, logger)
	if err := app.startup(ctx); err != nil {
		return err
	}
	defer app.shutdown()

	connectCtx, cancel := context.WithTimeout(ctx, uploadConnectTimeout)
	_, err := app.waitForChannel(connectCtx)
	cancel()
	if err != nil {
		return err
	}

	job, err := app.initiator.Begin(models.JobTypeUpload, uploadTitle(paths))
	if err != nil {
		return err
	}
	local, dispose := tracker.WatchLocal(app.provider, job.ID, logger.Named("upload"))
	defer dispose()

	go func() {
		job.Update(0, "Sending files...")
		reqCtx := api.WithJobID(ctx, job.ID)
		if err := app.api.UploadFiles(reqCtx, endpoint, paths, nil); err != nil {
			logger.Warn("upload request failed", zap.String("job_id", job.ID), zap.Error(err))
			job.Complete(false, err.Error())
			return
		}
		job.Update(0, "Queued for processing...")
	}()

	if uploadNoUI {
		return printProgress(ctx, cmd, app, job, local)
	}
	return runUI(ctx, app, ui.Options{Header: "Upload", ExitWhenIdle: true})
}

// printProgress writes one line per registry change until the job ends.
func printProgress(ctx context.Context, cmd *cobra.Command, app *App, job *tracker.Job, local *tracker.LocalProgress) error {
	dispose, changed := app.registry.Subscribe()
	defer dispose()

	out := cmd.OutOrStdout()
	last := ""
	localDone := local.Done()
	// settle fires shortly after the job's own terminal event when the
	// registry record never reached a terminal state.
	var settle <-chan time.Time
	for {
		rec, ok := app.registry.Get(job.ID)
		if !ok {
			return nil
		}
		line := fmt.Sprintf("%3d%%  %s", rec.Progress, rec.Message)
		if line != last {
			fmt.Fprintln(out, line)
			last = line
		}
		if rec.Status == models.StatusError {
			return fmt.Errorf("upload failed: %s", rec.Message)
		}
		if rec.Status.IsTerminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-localDone:
			localDone = nil
			settle = time.After(250 * time.Millisecond)
		case <-settle:
			if local.Failed() {
				return fmt.Errorf("upload failed")
			}
			return nil
		case _, open := <-changed:
			if !open {
				return nil
			}
		}
	}
}

func uploadTitle(paths []string) string {
	if len(paths) == 1 {
		return "Uploading " + filepath.Base(paths[0])
	}
	return fmt.Sprintf("Uploading %d files", len(paths))
}
