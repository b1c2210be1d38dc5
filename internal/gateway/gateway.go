// ABOUTME: Gateway orchestrator that wires the store, agent bridge, and HTTP server
// ABOUTME: Manages server lifecycle including graceful shutdown

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fitversal/coach-gateway/internal/agent"
	"github.com/fitversal/coach-gateway/internal/auth"
	"github.com/fitversal/coach-gateway/internal/config"
	"github.com/fitversal/coach-gateway/internal/conversation"
	"github.com/fitversal/coach-gateway/internal/store"
)

// Gateway orchestrates the coach-gateway server components.
// It owns the store, the agent bridge, and the HTTP server.
type Gateway struct {
	config       *config.Config
	store        store.Store
	conversation *conversation.Service
	httpServer   *http.Server
	logger       *slog.Logger
}

// initStore creates and returns a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("COACH_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// buildBridge constructs the agent bridge from the agent config section.
func buildBridge(cfg *config.Config, logger *slog.Logger) *agent.Bridge {
	runtime := agent.NewCLIRuntime(agent.CLIRuntimeConfig{
		Command:        cfg.Agent.Command,
		Args:           cfg.Agent.Args,
		ConnectTimeout: cfg.Agent.ConnectTimeout,
		RequestTimeout: cfg.Agent.RequestTimeout,
	}, logger.With("component", "runtime"))

	sessionCfg := agent.DefaultSessionConfig()
	if cfg.Agent.SystemPrompt != "" {
		sessionCfg.SystemPrompt = cfg.Agent.SystemPrompt
	}
	if cfg.Agent.MaxTurns > 0 {
		sessionCfg.MaxTurns = cfg.Agent.MaxTurns
	}
	if cfg.Agent.PermissionMode != "" {
		sessionCfg.PermissionMode = cfg.Agent.PermissionMode
	}

	return agent.NewBridge(runtime, sessionCfg, logger.With("component", "bridge"))
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	bridge := buildBridge(cfg, logger)
	convService := conversation.New(s, bridge, logger)

	gw := &Gateway{
		config:       cfg,
		store:        s,
		conversation: convService,
		logger:       logger.With("component", "gateway"),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.buildHandler(cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// buildHandler assembles the full HTTP handler: health endpoints, API
// routes, and the CORS wrapper.
func (g *Gateway) buildHandler(cfg *config.Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	// API endpoints - auth required if JWT secret is configured
	g.registerAPIRoutes(mux, cfg, logger)

	return corsMiddleware(mux)
}

// registerAPIRoutes registers conversation routes with or without auth middleware.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux, cfg *config.Config, logger *slog.Logger) {
	conversations := http.HandlerFunc(g.handleConversations)
	conversationRoutes := http.HandlerFunc(g.handleConversationRoutes)

	if cfg.Auth.JWTSecret != "" {
		verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		authMiddleware := auth.Middleware(verifier)
		mux.Handle("/conversations", authMiddleware(conversations))
		mux.Handle("/conversations/", authMiddleware(conversationRoutes))
		logger.Info("HTTP auth middleware enabled")
	} else {
		mux.Handle("/conversations", conversations)
		mux.Handle("/conversations/", conversationRoutes)
		logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}
}

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth reports liveness with a status and server timestamp.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady returns 200 OK if the store is reachable.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.conversation.ListConversations(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// corsMiddleware adds permissive CORS headers and short-circuits preflight
// requests. The mobile clients call the API from arbitrary origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
