package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lifelink/copilot/internal/backend"
	"github.com/lifelink/copilot/internal/db"
	mcpserver "github.com/lifelink/copilot/internal/mcp"
	"github.com/lifelink/copilot/internal/permissions"
	"github.com/lifelink/copilot/internal/rag"
	"github.com/lifelink/copilot/internal/vectordb"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long: `Starts a Model Context Protocol (MCP) server on stdio, exposing the
documentation search and occurrence listing tools. Stdio carries no
per-request identity, so the acting user is fixed at startup via flags.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().String("tenant", "", "tenant ID to act under (required)")
	mcpCmd.Flags().String("user", "", "user ID recorded on tool calls (required)")
	mcpCmd.Flags().String("role", "operator", "role controlling which tools are allowed")
	_ = mcpCmd.MarkFlagRequired("tenant")
	_ = mcpCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	tenantID, _ := cmd.Flags().GetString("tenant")
	userID, _ := cmd.Flags().GetString("user")
	role, _ := cmd.Flags().GetString("role")

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	store, err := vectordb.NewChromemStore(embedder)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	if err := store.Load(context.Background(), cfg.Database.VectorDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load vector store from %s: %v\n", cfg.Database.VectorDir, err)
		fmt.Fprintf(os.Stderr, "Documentation search will be empty. Run `copilot ingest` first.\n")
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

	mcpserver.Version = Version

	identity := mcpserver.Identity{
		TenantID: tenantID,
		UserID:   userID,
		Role:     permissions.Role(role),
	}

	fmt.Fprintf(os.Stderr, "copilot MCP server started on stdio (tenant=%s, role=%s, documents=%d)\n",
		tenantID, role, store.Count())

	srv := mcpserver.NewServer(identity, pipeline, backendClient)
	return srv.Serve()
}
