// askql server — turns natural-language questions into validated,
// human-approved SQL over the configured analytical store and interprets
// the results.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/askql/askql/pkg/agent"
	"github.com/askql/askql/pkg/api"
	"github.com/askql/askql/pkg/config"
	"github.com/askql/askql/pkg/database"
	"github.com/askql/askql/pkg/dbcontext"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/orchestrator"
	"github.com/askql/askql/pkg/schema"
	"github.com/askql/askql/pkg/session"
	"github.com/askql/askql/pkg/sqlcheck"
	"github.com/askql/askql/pkg/version"
)

// shutdownTimeout bounds the drain of in-flight requests on SIGTERM/SIGINT.
const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "askql",
		Short: "Conversational analytics over a SQL store",
		Run: func(cmd *cobra.Command, args []string) {
			runServe(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "askql.yaml",
		"path to the YAML configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API server",
			Run: func(cmd *cobra.Command, args []string) {
				runServe(configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the embedded demo-dataset migrations to the configured store",
			Run: func(cmd *cobra.Command, args []string) {
				runMigrate(configPath)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version.Full())
			},
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnv pulls a local .env file into the process environment. Deployments
// set real environment variables; the file is a development convenience.
func loadEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	} else {
		slog.Info("Loaded environment from .env")
	}
}

func runServe(configPath string) {
	ctx := context.Background()

	loadEnv()

	// 1. Configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	gin.SetMode(gin.ReleaseMode)

	slog.Info("Starting askql", "version", version.Full(), "addr", cfg.Server.Addr)

	// 2. Analytical store
	dbCfg := database.DefaultConfig(cfg.Database.URL)
	if cfg.Database.MaxOpenConns > 0 {
		dbCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns > 0 {
		dbCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	}
	client, err := database.Open(ctx, dbCfg)
	if err != nil {
		slog.Error("Failed to open analytical store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Error("Error closing analytical store", "error", err)
		}
	}()
	slog.Info("Connected to analytical store", "engine", client.Engine())

	// 3. Schema description
	sch, err := schema.Load(cfg.Schema.File)
	if err != nil {
		slog.Error("Failed to load schema description", "path", cfg.Schema.File, "error", err)
		os.Exit(1)
	}
	slog.Info("Schema description loaded", "tables", len(sch.Tables))

	// 4. LLM provider and gateway
	completer, err := llm.NewCompleter(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM provider", "error", err)
		os.Exit(1)
	}
	gateway := llm.NewGateway(completer, llm.GatewayConfig{
		CallTimeout:     cfg.LLM.CallTimeout(),
		MaxRetryElapsed: cfg.LLM.MaxRetryElapsed(),
		MaxInFlight:     cfg.LLM.MaxInFlight,
		HistoryTurns:    cfg.LLM.HistoryTurns,
		Temperature:     cfg.LLM.Temperature,
		MaxTokens:       cfg.LLM.MaxTokens,
	}, slog.Default())
	defer gateway.Close()
	slog.Info("LLM gateway initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	// 5. Approval-session store
	var sessions session.Store
	if cfg.Sessions.RedisURL != "" {
		sessions, err = session.NewRedisStore(ctx, cfg.Sessions.RedisURL, cfg.Sessions.TTL(), slog.Default())
		if err != nil {
			slog.Error("Failed to connect session store", "error", err)
			os.Exit(1)
		}
		slog.Info("Session store initialized", "backend", "redis", "ttl", cfg.Sessions.TTL())
	} else {
		sessions = session.NewMemoryStore(cfg.Sessions.TTL(), cfg.Sessions.SweepInterval(), slog.Default())
		slog.Info("Session store initialized", "backend", "memory", "ttl", cfg.Sessions.TTL())
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			slog.Error("Error closing session store", "error", err)
		}
	}()

	// 6. Pipeline stages and orchestrator
	checker := sqlcheck.NewChecker(sch)
	contexts := dbcontext.NewProvider(sch, client, dbcontext.Config{
		TopK:           cfg.Limits.TopK,
		CardinalityCap: cfg.Limits.TopKMaxCardinality,
		AnnotationsDir: cfg.Schema.AnalysisDir,
	}, slog.Default())
	dialect := string(client.Engine())
	orch := orchestrator.New(orchestrator.Deps{
		Contexts:    contexts,
		Classifier:  agent.NewClassifier(gateway, sch, slog.Default()),
		Planner:     agent.NewPlanner(gateway, slog.Default()),
		Validator:   agent.NewValidator(gateway, sch, slog.Default()),
		Synthesizer: agent.NewSynthesizer(gateway, checker, dialect, slog.Default()),
		Debugger:    agent.NewDebugger(gateway, checker, dialect, slog.Default()),
		Interpreter: agent.NewInterpreter(gateway, slog.Default()),
		Describer:   agent.NewDescriber(gateway, slog.Default()),
		Executor:    database.NewExecutor(client, cfg.Limits.ExecTimeout(), cfg.Limits.RowCap, slog.Default()),
		Sessions:    sessions,
		Gateway:     gateway,
		Logger:      slog.Default(),
	})

	// 7. HTTP server (non-blocking)
	server := api.NewServer(orch, gateway, client, slog.Default())
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: stop accepting connections, drain in-flight turns
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func runMigrate(configPath string) {
	ctx := context.Background()

	loadEnv()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	client, err := database.Open(ctx, database.DefaultConfig(cfg.Database.URL))
	if err != nil {
		slog.Error("Failed to open analytical store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Error("Error closing analytical store", "error", err)
		}
	}()

	if err := database.ApplyMigrations(client, slog.Default()); err != nil {
		slog.Error("Migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Migrations applied", "engine", client.Engine())
}
