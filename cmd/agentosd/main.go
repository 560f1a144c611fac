// Command agentosd is the AgentOS daemon. It seeds the agent roster from
// config, starts the kernel and its background cycles, and serves the
// HTTP API until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentsmith/agentos/config"
	"github.com/agentsmith/agentos/events"
	"github.com/agentsmith/agentos/internal/version"
	"github.com/agentsmith/agentos/kernel"
	"github.com/agentsmith/agentos/provider"
	"github.com/agentsmith/agentos/provider/mock"
	"github.com/agentsmith/agentos/server"
	"github.com/agentsmith/agentos/store"
	"github.com/agentsmith/agentos/tools"
)

var configPath = flag.String("config", "", "path to agentos config file")

func main() {
	flag.Parse()

	// API keys come from the environment, never the config file.
	_ = godotenv.Load()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
		cfg = loaded
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	logger.Info("starting agentosd",
		"version", version.Version,
		"commit", version.Commit,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data dir %s: %v", cfg.DataDir, err)
	}
	st, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "agentos.db"))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	if err := seedAgents(st, cfg); err != nil {
		log.Fatalf("Failed to seed agents: %v", err)
	}

	bus := events.NewBus(logger)
	registry := buildRegistry(cfg, st, logger)

	k := kernel.New(kernel.Options{
		Store:    st,
		Bus:      bus,
		Registry: registry,
		Logger:   logger,
		Kernel:   cfg.Kernel,
	})
	if err := k.Init(providerFactory); err != nil {
		log.Fatalf("Failed to init kernel: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := k.Start(ctx); err != nil {
		log.Fatalf("Failed to start kernel: %v", err)
	}

	srv := server.New(cfg.Server, st, bus, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	fmt.Printf("AgentOS running on http://localhost%s\n", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	k.Stop()
	fmt.Println("Shutdown complete")
}

// seedAgents upserts the configured roster and brings every agent up idle.
func seedAgents(st store.Store, cfg *config.Config) error {
	for _, ac := range cfg.Agents {
		agent := &store.Agent{
			ID:           ac.ID,
			Name:         ac.Name,
			Role:         store.AgentRole(ac.Role),
			Status:       store.AgentIdle,
			SystemPrompt: ac.SystemPrompt,
			ModelConfig: store.ModelConfig{
				Provider:    ac.Provider,
				Model:       ac.Model,
				Temperature: ac.Temperature,
			},
		}
		if err := st.UpsertAgent(agent); err != nil {
			return fmt.Errorf("seed agent %s: %w", ac.ID, err)
		}
	}
	return nil
}

func buildRegistry(cfg *config.Config, st store.Store, logger *slog.Logger) *tools.Registry {
	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		&tools.FileTool{Workspace: cfg.Workspace},
		&tools.ShellTool{Workspace: cfg.Workspace},
		&tools.GitTool{Workspace: cfg.Workspace},
		&tools.WebSearchTool{},
		&tools.StoreTool{Store: st},
	} {
		if err := registry.Register(tool); err != nil {
			logger.Error("tool registration failed", "tool", tool.Name(), "error", err)
		}
	}
	return registry
}

func providerFactory(name, model string) (provider.Provider, error) {
	if name == "" || name == "mock" {
		return mock.New(), nil
	}
	return provider.New(name, model)
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
