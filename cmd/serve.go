package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lifelink/copilot/internal/agent"
	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/backend"
	"github.com/lifelink/copilot/internal/confirm"
	"github.com/lifelink/copilot/internal/conversation"
	"github.com/lifelink/copilot/internal/db"
	"github.com/lifelink/copilot/internal/rag"
	"github.com/lifelink/copilot/internal/server"
	"github.com/lifelink/copilot/internal/tools"
	"github.com/lifelink/copilot/internal/vectordb"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the copilot HTTP service",
	Long:  `Starts the chat API with tenant-isolated retrieval, the action tool layer, and confirmation endpoints.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	store, err := vectordb.NewChromemStore(embedder)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	if err := store.Load(context.Background(), cfg.Database.VectorDir); err != nil {
		// The store may simply not exist yet. Retrieval returns empty
		// results until `copilot ingest` has run.
		log.Warn("could not load vector store, retrieval starts empty",
			zap.String("dir", cfg.Database.VectorDir),
			zap.Error(err))
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	pipeline := rag.NewPipeline(store, rag.NewRegistry(database), log, rag.Options{
		ChunkSize: cfg.Retrieval.ChunkSize,
		Overlap:   cfg.Retrieval.ChunkOverlap,
		TopK:      cfg.Retrieval.TopK,
		Threshold: float32(cfg.Retrieval.Threshold),
	})

	backendClient := backend.NewClient(cfg.Backend.URL, time.Duration(cfg.Backend.TimeoutSeconds)*time.Second)

	audits := audit.NewStore(database)
	conversations := conversation.NewStore(database)

	registry, err := tools.NewRegistry(
		tools.NewSearchDocumentationTool(pipeline),
		tools.NewListOccurrencesTool(backendClient),
		tools.NewGetOccurrenceDetailsTool(backendClient),
		tools.NewUpdateOccurrenceStatusTool(backendClient),
		tools.NewSendTeamNotificationTool(backendClient),
		tools.NewGenerateReportTool(backendClient),
	)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}

	runner := tools.NewRunner(registry, audits, log)
	confirms := confirm.NewManager(audits, runner, log)

	provider, err := createLLMProviderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}

	ag := agent.New(provider, cfg.LLM.Model, runner, pipeline, conversations, audits, log, agent.Options{})

	srv := server.New(cfg.Server, log, server.Deps{
		Agent:         ag,
		Confirms:      confirms,
		Conversations: conversations,
		Audits:        audits,
		Pipeline:      pipeline,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown", zap.Error(err))
		}
		if err := store.Persist(shutdownCtx, cfg.Database.VectorDir); err != nil {
			log.Error("persisting vector store", zap.Error(err))
		}
	}()

	log.Info("copilot starting",
		zap.String("version", Version),
		zap.String("addr", cfg.Server.Addr),
		zap.String("database", cfg.Database.Path),
		zap.Int("documents_indexed", store.Count()))

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
