package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/outlook-mcp/internal/auth"
	"github.com/teemow/outlook-mcp/internal/config"
	"github.com/teemow/outlook-mcp/internal/database"
	"github.com/teemow/outlook-mcp/internal/graph"
	"github.com/teemow/outlook-mcp/internal/instrumentation"
	"github.com/teemow/outlook-mcp/internal/server"
	"github.com/teemow/outlook-mcp/internal/tools/mail_tools"
)

const (
	// startupTimeout bounds how long we wait for a listener to come up.
	startupTimeout = 5 * time.Second

	// serverShutdownTimeout bounds graceful drain of in-flight requests.
	serverShutdownTimeout = 30 * time.Second

	// metricsShutdownTimeout bounds the metrics server drain.
	metricsShutdownTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	var (
		transport      string
		httpAddr       string
		metricsEnabled bool
		metricsAddr    string
		debugMode      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Outlook MCP server",
		Long: `Start the MCP server exposing Outlook mail tools.

The server supports two transport types:
  - stdio: communicates over stdin/stdout for a single local user,
    identified by OUTLOOK_USER_ID
  - streamable-http: serves HTTP behind a trusted gateway that
    authenticates callers and sets the X-User-ID header

Credentials are loaded from the Postgres store, decrypted in memory and
refreshed ahead of expiry; tool handlers only ever see live access tokens.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(transport, httpAddr, metricsEnabled, metricsAddr, debugMode)
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", "stdio",
		"Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "",
		"Listen address for streamable-http (default: SERVER_HOST:SERVER_PORT)")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", false,
		"Serve Prometheus metrics on a dedicated port")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr,
		"Listen address for the metrics server")
	cmd.Flags().BoolVar(&debugMode, "debug", false,
		"Enable debug logging")

	return cmd
}

func runServe(transport, httpAddr string, metricsEnabled bool, metricsAddr string, debugMode bool) error {
	shutdownCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if debugMode {
		cfg.LogLevel = "debug"
	}

	// stdout belongs to the stdio transport, so all logs go to stderr.
	setupLogging(cfg.LogLevel)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	defer func() {
		shutdownTimeout, cancelShutdown := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancelShutdown()
		if err := provider.Shutdown(shutdownTimeout); err != nil {
			slog.Warn("instrumentation shutdown failed", "error", err)
		}
	}()

	if metricsEnabled && provider.Enabled() {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsAddr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			metricsErr <- metricsServer.StartWithReadySignal(metricsReady)
		}()

		select {
		case <-metricsReady:
			slog.Info("metrics server started", "addr", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(startupTimeout):
			return fmt.Errorf("timeout waiting for metrics server to start")
		}

		defer func() {
			shutdownTimeout, cancelShutdown := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancelShutdown()
			if err := metricsServer.Shutdown(shutdownTimeout); err != nil {
				slog.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}

	db, err := database.Connect(shutdownCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	codec, err := auth.NewCodecFromBase64(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("invalid encryption key: %w", err)
	}

	store := auth.NewStore(db)
	refresher := auth.NewRefresher(cfg.MicrosoftClientID, cfg.MicrosoftClientSecret,
		cfg.MicrosoftTenantID, cfg.RefreshTimeout)

	var tokenOpts []auth.TokenServiceOption
	if provider.Enabled() {
		tokenOpts = append(tokenOpts, auth.WithMetrics(provider.Metrics()))
	}
	tokens := auth.NewTokenService(store, codec, refresher, config.Provider, cfg.RefreshSkew, tokenOpts...)

	graphOpts := []graph.Option{
		graph.WithHTTPClient(&http.Client{Timeout: cfg.GraphTimeout}),
	}
	if provider.Enabled() {
		graphOpts = append(graphOpts, graph.WithMetrics(provider.Metrics()))
	}
	graphClient := graph.NewClient(graphOpts...)

	serverContext := server.NewServerContext(shutdownCtx, tokens, graphClient, store)
	serverContext.SetDefaultUserID(cfg.DefaultUserID)
	serverContext.SetMailFields(cfg.EmailListFields, cfg.EmailDetailFields)
	if provider.Enabled() {
		serverContext.SetMetrics(provider.Metrics())
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(nil, instrConfig.AuditLogging))
	}
	defer func() {
		_ = serverContext.Shutdown()
	}()

	mcpSrv := mcpserver.NewMCPServer("outlook-mcp", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)

	if err := registerAllTools(mcpSrv, serverContext); err != nil {
		return err
	}

	switch transport {
	case "stdio":
		if cfg.DefaultUserID == "" {
			return fmt.Errorf("OUTLOOK_USER_ID is required for the stdio transport")
		}
		return runStdioServer(shutdownCtx, mcpSrv)
	case "streamable-http":
		addr := httpAddr
		if addr == "" {
			addr = cfg.ListenAddr()
		}
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, tokens, cfg, provider, addr)
	default:
		return fmt.Errorf("invalid transport type: %s (must be stdio or streamable-http)", transport)
	}
}

// registerAllTools registers every tool group with the MCP server.
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	registrations := []struct {
		name     string
		register func() error
	}{
		{"mail", func() error { return mail_tools.RegisterMailTools(mcpSrv, sc) }},
	}

	for _, r := range registrations {
		if err := r.register(); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", r.name, err)
		}
	}
	return nil
}

// runStdioServer serves MCP over stdin/stdout until the context is canceled
// or the stream closes.
func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	slog.Info("serving MCP over stdio")

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- mcpserver.ServeStdio(mcpSrv)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down stdio server")
		return nil
	case err := <-serverDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server error: %w", err)
		}
		return nil
	}
}

// runStreamableHTTPServer serves MCP over streamable HTTP with identity
// middleware, health probes and graceful shutdown.
func runStreamableHTTPServer(
	ctx context.Context,
	mcpSrv *mcpserver.MCPServer,
	serverContext *server.ServerContext,
	tokens *auth.TokenService,
	cfg *config.Config,
	provider *instrumentation.Provider,
	addr string,
) error {
	if !cfg.TrustUserIDHeader && cfg.DefaultUserID == "" {
		return fmt.Errorf("the HTTP transport needs TRUST_X_USER_ID enabled or OUTLOOK_USER_ID set")
	}

	identityOpts := []server.IdentityOption{
		server.WithHeaderTrust(cfg.TrustUserIDHeader),
	}
	if cfg.DefaultUserID != "" {
		identityOpts = append(identityOpts, server.WithDefaultUserID(cfg.DefaultUserID))
	}
	if provider.Enabled() {
		identityOpts = append(identityOpts, server.WithIdentityMetrics(provider.Metrics()))
	}
	identity := server.NewIdentityMiddleware(tokens, identityOpts...)

	healthChecker := server.NewHealthChecker(serverContext, version)

	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Addr:      addr,
		MCPServer: mcpSrv,
		Identity:  identity,
		Health:    healthChecker,
		Metrics:   serverContext.Metrics(),
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	serverReady := make(chan struct{})
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- httpServer.StartWithReadySignal(serverReady)
	}()

	select {
	case <-serverReady:
		healthChecker.SetReady(true)
	case err := <-serverDone:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(startupTimeout):
		return fmt.Errorf("timeout waiting for HTTP server to start")
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		healthChecker.SetReady(false)

		shutdownTimeout, cancelShutdown := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownTimeout); err != nil {
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		<-serverDone
		return nil
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}
}

// setupLogging installs a JSON slog handler writing to stderr.
func setupLogging(level string) {
	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}
