// Command webgrabber-retry replays the failed downloads from a prior
// run's manifest, offline from the original capture, using the
// staged retry ladder in internal/retryutil.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/use-agent/webgrabber/internal/manifest"
	"github.com/use-agent/webgrabber/internal/retryutil"
	"github.com/use-agent/webgrabber/models"
)

var (
	flagManifestJSON string
	flagManifestDB   string
	flagRunID        string
	flagOutputRoot   string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "webgrabber-retry",
		Short:         "Retry the failed downloads recorded in a run manifest",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	home, _ := os.UserHomeDir()
	defaultDB := filepath.Join(home, ".webgrabber", "manifests.db")

	flags := cmd.Flags()
	flags.StringVar(&flagManifestJSON, "manifest", "", "path to a sibling manifest JSON file (overrides --db/--run-id)")
	flags.StringVar(&flagManifestDB, "db", defaultDB, "path to the bbolt manifest store")
	flags.StringVar(&flagRunID, "run-id", "", "run ID to look up in --db")
	flags.StringVarP(&flagOutputRoot, "output", "o", "", "output root to retry into (defaults to the manifest's own output_root)")

	return cmd
}

func run() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	m, err := loadManifest()
	if err != nil {
		return err
	}

	outputRoot := flagOutputRoot
	if outputRoot == "" {
		outputRoot = m.OutputRoot
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := m.FailedURLs()
	if len(failed) == 0 {
		slog.Info("nothing to retry", "run_id", m.RunID)
		return nil
	}
	slog.Info("retrying failed downloads", "run_id", m.RunID, "count", len(failed))

	outcomes := retryutil.Retry(ctx, m, outputRoot)

	succeeded := 0
	for _, o := range outcomes {
		if o.Succeeded {
			succeeded++
			slog.Info("recovered", "url", o.URL, "stage", o.Stage, "path", o.SavePath)
		} else {
			slog.Warn("still failing", "url", o.URL, "err", o.Err)
		}
	}
	slog.Info("retry complete", "recovered", succeeded, "total", len(outcomes))
	return nil
}

func loadManifest() (models.RunManifest, error) {
	if flagManifestJSON != "" {
		return manifest.ReadJSON(flagManifestJSON)
	}
	if flagRunID == "" {
		return models.RunManifest{}, fmt.Errorf("either --manifest or --run-id must be set")
	}

	store, err := manifest.Open(flagManifestDB)
	if err != nil {
		return models.RunManifest{}, fmt.Errorf("open manifest store: %w", err)
	}
	defer store.Close()

	m, ok, err := store.Get(flagRunID)
	if err != nil {
		return models.RunManifest{}, fmt.Errorf("load manifest %s: %w", flagRunID, err)
	}
	if !ok {
		return models.RunManifest{}, fmt.Errorf("no manifest recorded for run %s", flagRunID)
	}
	return m, nil
}
