package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/keydocs/internal/api"
	"github.com/kalambet/keydocs/internal/config"
	"github.com/kalambet/keydocs/internal/docstore"
	"github.com/kalambet/keydocs/internal/embedding"
	"github.com/kalambet/keydocs/internal/ingest"
	"github.com/kalambet/keydocs/internal/ollama"
	"github.com/kalambet/keydocs/internal/relevance"
	"github.com/kalambet/keydocs/internal/segment"
	"github.com/kalambet/keydocs/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the keydocs server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running keydocs server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show keydocs system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "keydocs.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newEmbeddingProvider returns the configured provider. The Ollama backend
// checks the daemon and pulls the model before returning.
func newEmbeddingProvider(ctx context.Context, cfg config.Config) (embedding.Provider, error) {
	switch cfg.Embedding.Backend {
	case config.EmbeddingBackendOllama:
		client := ollama.New(cfg.Ollama.BaseURL)
		if err := ollama.EnsureReady(ctx, client, cfg.Embedding.Model, os.Stderr); err != nil {
			return nil, err
		}
		return embedding.NewOllamaProvider(client, cfg.Embedding.Model, cfg.Embedding.Dimension), nil
	case config.EmbeddingBackendHash, "":
		return embedding.NewHashProvider(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Embedding.Backend)
	}
}

func relevanceConfig(cfg config.Config) relevance.Config {
	rc := relevance.DefaultConfig()
	rc.SimilarityThreshold = cfg.Relevance.SimilarityThreshold
	if cfg.Relevance.MaxSuggestions > 0 {
		rc.MaxSuggestions = cfg.Relevance.MaxSuggestions
	}
	if cfg.Relevance.CheckpointDebounce > 0 {
		rc.CheckpointDebounce = cfg.Relevance.CheckpointDebounce
	}
	return rc
}

// snapshotter copies the in-memory store to SQLite. Saves are serialized.
type snapshotter struct {
	docs   *docstore.Store
	db     *storage.Store
	logger *slog.Logger
	mu     sync.Mutex
}

func (s *snapshotter) load() error {
	snap, err := s.db.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	if err := s.docs.Restore(snap); err != nil {
		return fmt.Errorf("restoring snapshot: %w", err)
	}
	s.logger.Info("snapshot restored", "libraries", len(snap.Libraries), "chunks", len(snap.Chunks))
	return nil
}

func (s *snapshotter) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.SaveSnapshot(s.docs.Snapshot()); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// run saves every interval until ctx is done. A non-positive interval
// disables periodic saves.
func (s *snapshotter) run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.save(); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
			} else {
				s.logger.Debug("snapshot saved")
			}
		}
	}
}

func runServer(ctx context.Context) error {
	fmt.Fprintf(os.Stderr, "keydocs version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("getting API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("keydocs is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("keydocs is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	provider, err := newEmbeddingProvider(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("embedding provider ready", "model", provider.Model(), "dimension", provider.Dimension())

	db, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	docStore := docstore.New(docstore.Options{
		Dimension:    provider.Dimension(),
		ModelVersion: version,
	})
	snaps := &snapshotter{docs: docStore, db: db, logger: slog.Default()}
	if err := snaps.load(); err != nil {
		return err
	}

	engine := relevance.NewEngine(relevanceConfig(cfg), relevance.NewFileCheckpointer(filepath.Join(cfg.Storage.DataDir, "relevance")), slog.Default())
	defer engine.Close()

	ingester := ingest.New(docStore, provider, segment.New(), slog.Default())
	searchDefaults := cfg.SearchParams()

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:          docStore,
		Ingest:         ingester,
		Relevance:      engine,
		Token:          apiToken,
		SearchDefaults: searchDefaults,
		Logger:         slog.Default(),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           appHandler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go snaps.run(ctx, cfg.Storage.SnapshotInterval)

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:          docStore,
		Ingest:         ingester,
		Relevance:      engine,
		SearchDefaults: searchDefaults,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "keydocs listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}

	if err := snaps.save(); err != nil {
		slog.Error("final snapshot failed", "error", err)
		if serveErr == nil {
			serveErr = err
		}
	} else {
		slog.Info("snapshot saved")
	}
	return serveErr
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("keydocs is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("could not stop keydocs (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to keydocs (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Embedding", "%s (%s, %d dims)", cfg.Embedding.Backend, cfg.Embedding.Model, cfg.Embedding.Dimension)
	if cfg.Embedding.Backend == config.EmbeddingBackendOllama {
		if ollama.New(cfg.Ollama.BaseURL).IsRunning(ctx) {
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		} else {
			printStatus("Ollama", "not running")
		}
	}

	if running {
		token, tokenErr := config.GetAPIToken(config.NewKeychain())
		if tokenErr == nil {
			c := &apiClient{baseURL: serverURL, token: token, httpClient: client}
			if resp, err := c.get(ctx, "/stats"); err == nil {
				var stats docstore.Stats
				if decodeJSON(resp, &stats) == nil {
					printStatus("Libraries", "%d", stats.TotalLibraries)
					printStatus("Chunks", "%d", stats.TotalChunks)
					printStatus("Sessions", "%d", stats.TotalSessions)
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
