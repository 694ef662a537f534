package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/inspect-sync/internal/auth"
	"github.com/alexjbarnes/inspect-sync/internal/catalog"
	"github.com/alexjbarnes/inspect-sync/internal/config"
	"github.com/alexjbarnes/inspect-sync/internal/draft"
	"github.com/alexjbarnes/inspect-sync/internal/logging"
	"github.com/alexjbarnes/inspect-sync/internal/mcpserver"
	"github.com/alexjbarnes/inspect-sync/internal/media"
	"github.com/alexjbarnes/inspect-sync/internal/models"
	"github.com/alexjbarnes/inspect-sync/internal/remote"
	"github.com/alexjbarnes/inspect-sync/internal/server"
	"github.com/alexjbarnes/inspect-sync/internal/state"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	// Handle hash-key subcommand before config loading.
	if len(os.Args) > 1 && os.Args[1] == "hash-key" {
		user := "user"
		if len(os.Args) > 2 {
			user = os.Args[2]
		}

		if err := hashKey(os.Stdout, user); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		return
	}

	if len(os.Args) > 1 && os.Args[1] == "import-defects" {
		if len(os.Args) != 4 {
			fmt.Fprintln(os.Stderr, "usage: inspect-sync import-defects <catalog.db> <defects.yaml>")
			os.Exit(2)
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		if err := importDefects(context.Background(), os.Stdout, os.Args[2], os.Args[3], logger); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// hashKey generates a new API key and prints it with the API_KEYS entry
// that authorizes it.
func hashKey(w io.Writer, user string) error {
	key := auth.GenerateKey()

	hash, err := auth.HashKey(key)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "API key (give to the client): %s\n", key)
	fmt.Fprintf(w, "API_KEYS entry:               %s:%s\n", user, hash)

	return nil
}

// importDefects loads historical defects from a YAML file into the SQLite
// defect catalog at dbPath, creating it if needed.
func importDefects(ctx context.Context, w io.Writer, dbPath, yamlPath string, logger *slog.Logger) error {
	f, err := os.Open(yamlPath)
	if err != nil {
		return fmt.Errorf("opening defect import: %w", err)
	}
	defer f.Close()

	defects, err := catalog.OpenDefects(dbPath, logger)
	if err != nil {
		return fmt.Errorf("opening defect catalog: %w", err)
	}
	defer defects.Close()

	n, err := catalog.ImportDefects(ctx, defects, f)
	if err != nil {
		return fmt.Errorf("imported %d defects before failing: %w", n, err)
	}

	fmt.Fprintf(w, "imported %d defects into %s\n", n, dbPath)

	return nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)

	statePath, err := cfg.ResolvedStatePath()
	if err != nil {
		return err
	}

	appState, err := state.LoadAt(statePath)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	logger.Info("inspect-sync starting",
		slog.String("version", Version),
		slog.String("device", cfg.DeviceName),
		slog.String("device_id", appState.DeviceID()),
		slog.String("transport", cfg.UploadTransport),
		slog.Bool("mcp", cfg.MCPEnabled()),
	)

	if cfg.PlaintextUpload() {
		logger.Warn("uploads are not encrypted in production",
			slog.String("upload_url", cfg.UploadURL),
		)
	}

	var (
		assets  draft.AssetCatalog
		defects mcpserver.DefectCatalog
	)

	if cfg.AssetCatalogPath != "" {
		a, err := catalog.LoadAssets(cfg.AssetCatalogPath)
		if err != nil {
			return fmt.Errorf("loading asset catalog: %w", err)
		}

		assets = a
	}

	if cfg.DefectCatalogPath != "" {
		d, err := catalog.OpenDefects(cfg.DefectCatalogPath, logger)
		if err != nil {
			return fmt.Errorf("opening defect catalog: %w", err)
		}
		defer d.Close()

		defects = d
	}

	device := cfg.DeviceName + "/" + appState.DeviceID()

	var uploader draft.Uploader

	switch cfg.UploadTransport {
	case config.TransportWebSocket:
		ws := remote.NewWSUploader(cfg.UploadURL, cfg.UploadToken, device, logger)
		defer ws.Close()

		uploader = ws
	default:
		uploader = remote.NewHTTPUploader(cfg.UploadURL, cfg.UploadToken, device, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := draft.NewManager(ctx, draft.Options{
		Store:    appState,
		Catalog:  assets,
		Uploader: uploader,
		Sync: draft.SyncConfig{
			MaxRetries:     cfg.UploadMaxRetries,
			RetryDelay:     cfg.UploadRetryDelay,
			AttemptTimeout: cfg.UploadAttemptTimeout,
		},
		Debounce:    cfg.ReconcileDebounce,
		SyncOnClose: cfg.SyncOnClose,
		Logger:      logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if cfg.CaptureDir != "" {
		watcher := media.NewWatcher(cfg.CaptureDir, captureHandler(manager, logger), logger)
		g.Go(func() error {
			if err := watcher.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if cfg.MCPEnabled() {
		g.Go(func() error {
			return runMCP(gctx, cfg, mcpserver.Deps{
				Events:   appState,
				Sessions: manager,
				Assets:   assets,
				Defects:  defects,
				Logger:   logger.With(slog.String("service", "mcp")),
			}, logger)
		})
	}

	runErr := g.Wait()

	// Final syncs get the full retry budget of one upload.
	grace := time.Duration(cfg.UploadMaxRetries) * (cfg.UploadAttemptTimeout + cfg.UploadRetryDelay)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	logger.Info("closing sessions", slog.Int("open", len(manager.Keys())))

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete",
			slog.Int("unfinished_syncs", manager.Background().Running()),
			slog.String("error", err.Error()),
		)
	}

	return runErr
}

// captureHandler routes a finalized capture to the session for its inbox
// directory, opening one if needed.
func captureHandler(manager *draft.Manager, logger *slog.Logger) media.Handler {
	return func(_ context.Context, c media.Capture) {
		facet, ok := facetFor(c.Kind)
		if !ok {
			return
		}

		s := manager.Open(models.IdentityHint{NavigationID: c.Key})
		if err := s.AttachMedia(facet, c.Path); err != nil {
			logger.Warn("attaching capture",
				slog.String("session", s.Key()),
				slog.String("path", c.Path),
				slog.String("error", err.Error()),
			)
			return
		}

		logger.Info("capture attached",
			slog.String("session", s.Key()),
			slog.String("kind", string(c.Kind)),
			slog.String("path", c.Path),
		)
	}
}

func facetFor(k media.Kind) (draft.Facet, bool) {
	switch k {
	case media.KindPhoto:
		return draft.FacetPhotos, true
	case media.KindAudio:
		return draft.FacetAudio, true
	}

	return "", false
}

// runMCP starts the MCP HTTP server.
func runMCP(ctx context.Context, cfg *config.Config, deps mcpserver.Deps, logger *slog.Logger) error {
	entries, err := cfg.ParseAPIKeys()
	if err != nil {
		return fmt.Errorf("parsing API keys: %w", err)
	}

	hashes := make([]auth.KeyHash, 0, len(entries))
	for _, e := range entries {
		hashes = append(hashes, auth.KeyHash{UserID: e.UserID, Hash: e.Hash})
	}

	mcpLogger := logger.With(slog.String("service", "mcp"))

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "inspect-sync", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, deps)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	mux := server.NewMux(server.MuxConfig{
		Keys:       auth.NewKeyring(hashes),
		MCPHandler: mcpHandler,
		Logger:     mcpLogger,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	mcpLogger.Info("starting MCP server",
		slog.String("listen", cfg.ListenAddr),
		slog.Int("keys", len(hashes)),
	)

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		mcpLogger.Info("shutting down MCP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}
