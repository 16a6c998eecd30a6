// Command webgrabber is the direct CLI entry point: it drives one
// capture run to completion and exits, without starting an HTTP
// server (that is cmd/webgrabber-gui).
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/webgrabber/internal/archive"
	"github.com/use-agent/webgrabber/internal/audit"
	"github.com/use-agent/webgrabber/internal/collector"
	"github.com/use-agent/webgrabber/internal/config"
	"github.com/use-agent/webgrabber/internal/credential"
	"github.com/use-agent/webgrabber/internal/manifest"
	"github.com/use-agent/webgrabber/internal/orchestrator"
	"github.com/use-agent/webgrabber/internal/platform"
	"github.com/use-agent/webgrabber/internal/render"
	"github.com/use-agent/webgrabber/internal/session"
	"github.com/use-agent/webgrabber/models"
)

var (
	flagOutputRoot       string
	flagConfigPath       string
	flagStateDir         string
	flagArchive          string
	flagImportCookies    string
	flagInteractiveLogin bool
	flagProxy            string
	flagReadable         bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "webgrabber [URL]",
		Short:         "Retrieve a software artifact's full source or static content from a URL",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
	}

	home, _ := os.UserHomeDir()
	defaultState := filepath.Join(home, ".webgrabber")

	flags := cmd.Flags()
	flags.StringVarP(&flagOutputRoot, "out", "o", "", "directory to write the captured content into (required)")
	flags.StringVarP(&flagConfigPath, "config", "c", filepath.Join(defaultState, "config.json"), "path to config.json")
	flags.StringVar(&flagStateDir, "state-dir", defaultState, "directory holding the encrypted credential store")
	flags.StringVarP(&flagArchive, "archive", "a", "", "package the result as zip or tar.gz after capture")
	flags.StringVar(&flagImportCookies, "import-cookies", "", "import cookies from an installed browser: chrome, firefox, edge, or brave")
	flags.BoolVar(&flagInteractiveLogin, "interactive-login", false, "open a visible browser for the operator to log in before capturing")
	flags.StringVar(&flagProxy, "proxy", "", "proxy URL used for this run, overriding config.json's general.proxy")
	flags.BoolVar(&flagReadable, "readable", false, "also export a Readability + Markdown version of every captured HTML page")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func run(ctx context.Context, rawURL string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagProxy != "" {
		cfg.General.Proxy = flagProxy
	}

	store, err := credential.Open(flagStateDir)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cancel := &collector.CancelToken{}
	go func() {
		<-signalCtx.Done()
		cancel.Cancel()
	}()

	sess, closeSession, err := resolveSession(signalCtx, store, rawURL)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	defer closeSession()

	runID := "run-" + randomID()
	startedAt := time.Now()

	trail, err := audit.Open(filepath.Join(flagStateDir, "audit.jsonl"), audit.DefaultRotation)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	defer trail.Close()

	tree, resources, err := orchestrator.Run(signalCtx, rawURL, flagOutputRoot, orchestrator.Options{
		Config:      cfg,
		Credentials: store,
		Cancel:      cancel,
		Session:     sess,
		Audit:       trail,
		RunID:       runID,
		Log:         func(format string, args ...any) { slog.Info(fmt.Sprintf(format, args...)) },
		Prompt:      promptSecret,
		OnFile: func(relPath string) {
			slog.Info("saved", "path", relPath)
		},
	})
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	slog.Info("capture complete", "files", len(tree), "output", flagOutputRoot)

	if flagArchive != "" {
		dest := flagOutputRoot + "." + flagArchive
		if err := archive.Pack(flagOutputRoot, dest, archive.Format(flagArchive)); err != nil {
			return fmt.Errorf("package archive: %w", err)
		}
		slog.Info("archived", "path", dest)
	}

	if flagReadable && resources != nil {
		written := render.Export(flagOutputRoot, resources)
		slog.Info("readable export complete", "files", written)
	}

	if resources != nil {
		if err := recordManifest(runID, rawURL, startedAt, resources); err != nil {
			slog.Warn("failed to record run manifest", "error", err)
		}
	}

	return nil
}

// resolveSession honors --import-cookies or --interactive-login, in that
// order, returning a session override for orchestrator.Run and a cleanup
// func the caller must always invoke (a no-op when neither flag is set).
// Either path persists the captured session via store under
// session_<host> (C2) so a later run against the same host finds it
// through orchestrator.sessionForDomain without the flag being repeated.
func resolveSession(ctx context.Context, store *credential.Store, rawURL string) (*models.Session, func(), error) {
	noop := func() {}

	if flagImportCookies != "" {
		sess, err := session.ImportFromBrowser(ctx, session.BrowserID(flagImportCookies), rawURL)
		if err != nil {
			return nil, noop, err
		}
		persistSession(store, rawURL, sess)
		return &sess, noop, nil
	}

	if flagInteractiveLogin {
		sess, handle, err := session.InteractiveLogin(ctx, rawURL)
		if err != nil {
			return nil, noop, err
		}
		persistSession(store, rawURL, sess)
		return &sess, func() { _ = handle.Close() }, nil
	}

	return nil, noop, nil
}

// persistSession saves sess under rawURL's host so later runs reuse it
// from the credential store's cache without the operator repeating
// --import-cookies/--interactive-login. A failure to persist is logged
// and otherwise ignored: the session is still usable for this one run.
func persistSession(store *credential.Store, rawURL string, sess models.Session) {
	if store == nil {
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return
	}
	if err := store.SaveSession(u.Hostname(), sess); err != nil {
		slog.Warn("failed to persist session", "host", u.Hostname(), "error", err)
	}
}

func recordManifest(runID, rawURL string, startedAt time.Time, resources models.ResourceMap) error {
	m := models.RunManifest{
		RunID:      runID,
		StartURL:   rawURL,
		Platform:   platform.Classify(context.Background(), rawURL),
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		OutputRoot: flagOutputRoot,
		Resources:  resources,
	}

	dbStore, err := manifest.Open(filepath.Join(flagStateDir, "manifests.db"))
	if err != nil {
		return err
	}
	defer dbStore.Close()

	if err := dbStore.Put(m); err != nil {
		return err
	}
	return manifest.WriteJSON(filepath.Clean(flagOutputRoot)+".manifest.json", m)
}

// promptSecret reads a line from stdin, labelled with kind/message.
// It does not suppress terminal echo: no terminal-control library
// appears anywhere in the source pack this tool's dependencies were
// drawn from, and adding one for this single prompt would outweigh
// the benefit.
func promptSecret(kind, message string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s (%s): ", message, kind)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return trimNewline(line), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
