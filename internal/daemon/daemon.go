package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/config"
	"github.com/jmaddaus/cookiewatch/internal/detector"
	"github.com/jmaddaus/cookiewatch/internal/github"
	"github.com/jmaddaus/cookiewatch/internal/lifecycle"
	"github.com/jmaddaus/cookiewatch/internal/query"
	"github.com/jmaddaus/cookiewatch/internal/store"
)

// Daemon manages the HTTP server and its dependencies.
type Daemon struct {
	cfg       *config.Config
	store     store.Store
	svc       *lifecycle.Service
	facade    *query.Facade
	log       *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// openStore opens the configured storage backend.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return store.NewPostgresStore(cfg.DatabaseURL)
	default:
		return store.NewSQLiteStore(cfg.DBPath)
	}
}

// New creates a Daemon with a fully wired dependency graph: storage per the
// configured driver, a GitHub client using whatever token the auth chain
// resolves (unauthenticated if none), and the lifecycle service on top.
func New(cfg *config.Config, log *slog.Logger) (*Daemon, error) {
	if err := config.EnsureDataDir(cfg); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	token, err := github.ResolveToken()
	if err != nil {
		log.Warn("no GitHub token resolved; using unauthenticated client with low rate limits")
		token = ""
	}
	client := github.NewClientWithBaseURL(token, cfg.GitHubAPIURL)

	det := detector.New(client, log)
	checker := detector.NewChecker(client)
	svc := lifecycle.New(st, det, checker, log)
	facade := query.New(st, log)

	d := NewWithDeps(cfg, st, svc, facade, log)
	d.server.ReadTimeout = 10 * time.Second
	d.server.WriteTimeout = 2 * time.Minute // scans can take a while
	d.server.IdleTimeout = 60 * time.Second
	return d, nil
}

// NewWithDeps creates a Daemon with injected dependencies (used by tests
// and by the CLI daemon command).
func NewWithDeps(cfg *config.Config, st store.Store, svc *lifecycle.Service, facade *query.Facade, log *slog.Logger) *Daemon {
	d := &Daemon{
		cfg:    cfg,
		store:  st,
		svc:    svc,
		facade: facade,
		log:    log,
	}

	mux := d.registerRoutes()
	d.server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: d.applyMiddleware(mux),
	}
	return d
}

// Handler returns the HTTP handler (used for testing with httptest).
func (d *Daemon) Handler() http.Handler {
	return d.server.Handler
}

// StartedAt returns the time when the daemon was started via Run().
func (d *Daemon) StartedAt() time.Time {
	return d.startedAt
}

// PIDFilePath returns the path to the daemon PID file.
func PIDFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "daemon.pid")
}

// LogFilePath returns the path to the daemon log file.
func LogFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "daemon.log")
}

// ReadPIDFile reads the PID from the daemon PID file. Returns 0 if not found.
func ReadPIDFile(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(PIDFilePath(cfg))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// writePIDFile writes the current process PID to the PID file.
func writePIDFile(cfg *config.Config) error {
	return os.WriteFile(PIDFilePath(cfg), []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}

// removePIDFile removes the PID file.
func removePIDFile(cfg *config.Config) {
	os.Remove(PIDFilePath(cfg))
}

// Run starts the HTTP server and blocks until a SIGINT or SIGTERM is received
// or the provided context is cancelled. It uses split Listen/Serve so the PID
// file is written only after successful port bind.
func (d *Daemon) Run(ctx context.Context) error {
	d.startedAt = time.Now()

	// Bind the port first so we fail fast on EADDRINUSE.
	ln, err := net.Listen("tcp", d.cfg.ListenAddr)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.EADDRINUSE) {
			return fmt.Errorf("port %s already in use; is another daemon running?", d.cfg.ListenAddr)
		}
		return fmt.Errorf("listen: %w", err)
	}

	// Write PID file now that we've bound the port.
	if err := writePIDFile(d.cfg); err != nil {
		ln.Close()
		return fmt.Errorf("write PID file: %w", err)
	}
	defer removePIDFile(d.cfg)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		d.log.Info("cookiewatch daemon listening", "addr", d.cfg.ListenAddr, "driver", d.cfg.Driver)
		if err := d.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		d.log.Info("context cancelled, shutting down...")
	case sig := <-sigCh:
		d.log.Info("received signal, shutting down...", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return d.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the HTTP server and closes the store.
func (d *Daemon) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var firstErr error

	if err := d.server.Shutdown(shutdownCtx); err != nil {
		firstErr = fmt.Errorf("server shutdown: %w", err)
	}

	if err := d.store.Close(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("store close: %w", err)
		}
	}

	return firstErr
}
