package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	apimcp "github.com/flowloom/fabric/internal/api/mcp"
	"github.com/flowloom/fabric/internal/api/middleware"
	"github.com/flowloom/fabric/internal/api/rest"
	"github.com/flowloom/fabric/internal/api/sse"
	"github.com/flowloom/fabric/internal/broadcaster"
	"github.com/flowloom/fabric/internal/config"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/forkjoin"
	"github.com/flowloom/fabric/internal/logger"
	"github.com/flowloom/fabric/internal/mcp"
	"github.com/flowloom/fabric/internal/nodeexec"
	"github.com/flowloom/fabric/internal/registry"
	"github.com/flowloom/fabric/internal/rubric"
	"github.com/flowloom/fabric/internal/service"
	"github.com/flowloom/fabric/internal/storage"
	"github.com/flowloom/fabric/internal/storage/memory"
	"github.com/flowloom/fabric/internal/storage/postgres"
)

func main() {
	var (
		port   = flag.String("port", "", "server port (overrides PORT env)")
		pretty = flag.Bool("pretty", false, "use human-readable console log output instead of JSON")
	)
	flag.Parse()

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}
	logger.Init(cfg.LogLevel, *pretty)

	var workflows storage.WorkflowRepository
	var events storage.EventStore
	if cfg.DatabaseDSN == "" {
		log.Info().Msg("no DATABASE_DSN configured, using in-memory storage")
		store := memory.New()
		workflows, events = store, store
	} else {
		store := postgres.New(cfg.DatabaseDSN)
		ctx := context.Background()
		if err := store.InitSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize database schema")
		}
		workflows, events = store, store
		log.Info().Msg("using postgres storage")
	}

	tenants := registry.NewTenantRegistries()
	rubricEngine := rubric.NewEngine()
	broadcast := broadcaster.New()

	circuit := nodeexec.NewCircuitBreakers(5, 30*time.Second)
	coordinator := forkjoin.NewCoordinator()
	dispatcher := nodeexec.NewDispatcher(circuit, coordinator)

	sessions := mcp.NewSessionManager(cfg.MCPRequestTimeout)
	pool := mcp.NewPool(sessions)
	toolClient := mcp.NewToolClient(sessions, time.Minute)
	sessions.OnDisconnect(toolClient.InvalidateCache)
	toolInvokerFactory := func(tenantID string) execctx.ToolInvoker {
		return mcp.NewInvoker(pool, toolClient, tenantID)
	}

	svc := service.New(service.Deps{
		Workflows:          workflows,
		Events:             events,
		Broadcaster:        broadcast,
		Tenants:            tenants,
		Rubrics:            rubricEngine,
		Dispatcher:         dispatcher,
		ToolInvokerFactory: toolInvokerFactory,
		AllowShellExec:     false,
		DefaultAgentAPIKey: os.Getenv("OPENAI_API_KEY"),
	})

	resolver := middleware.NewTenantResolver(cfg.JWTSecret, cfg.TenantClaim, cfg.DevTenantID)

	restServer := rest.NewServer(svc, resolver, &log.Logger)
	sseHandler := sse.NewHandler(broadcast, &log.Logger)
	mcpHandler := apimcp.NewHandler(sessions, &log.Logger)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", restServer.Handler())
	mux.Handle("GET /api/v1/executions/{id}/events", middleware.Chain(
		http.HandlerFunc(sseHandler.ServeHTTP),
		func(h http.Handler) http.Handler { return middleware.Recovery(&log.Logger, h) },
		resolver.Middleware,
	))
	mcpHandler.Routes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE/MCP streams are long-lived; no fixed write deadline
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("address", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server exited gracefully")
}
