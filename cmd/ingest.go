package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/config"
	"github.com/lifelink/copilot/internal/db"
	"github.com/lifelink/copilot/internal/progress"
	"github.com/lifelink/copilot/internal/rag"
	"github.com/lifelink/copilot/internal/vectordb"
	"github.com/lifelink/copilot/internal/walker"
	"github.com/lifelink/copilot/internal/worker"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Index a directory of documents for a tenant",
	Long: `Walks a directory tree, chunks every markdown and text document found,
and indexes the chunks into the tenant's vector store partition.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("tenant", "", "tenant ID to index documents under (required)")
	ingestCmd.Flags().String("type", "", "document type for all files (default: inferred from path)")
	ingestCmd.Flags().StringSlice("include", nil, "glob patterns to include")
	ingestCmd.Flags().StringSlice("exclude", nil, "glob patterns to exclude")
	_ = ingestCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := cmd.Context()

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
	docType, _ := cmd.Flags().GetString("type")
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")

	rootDir := "."
	if len(args) > 0 {
		rootDir = args[0]
	}

	files, err := walker.Walk(walker.Config{
		RootDir: rootDir,
		Include: include,
		Exclude: exclude,
	})
	if err != nil {
		return fmt.Errorf("scanning %s: %w", rootDir, err)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "No documents found under %s\n", rootDir)
		return nil
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	store, err := vectordb.NewChromemStore(embedder)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	if err := store.Load(ctx, cfg.Database.VectorDir); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Loaded existing vector store (%d documents)\n", store.Count())
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

	indexed, failed, chunks := indexFiles(ctx, cfg, pipeline, database, tenantID, docType, files)

	if err := store.Persist(ctx, cfg.Database.VectorDir); err != nil {
		return fmt.Errorf("persisting vector store: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %d documents (%d chunks) for tenant %s in %s\n",
		indexed, chunks, tenantID, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d documents failed, see the audit log for details\n", failed)
		return fmt.Errorf("%d of %d documents failed to index", failed, len(files))
	}
	return nil
}

// indexFiles feeds every document through the indexing queue so transient
// embedding failures get the standard retry and dead-letter treatment.
func indexFiles(ctx context.Context, cfg *config.Config, pipeline *rag.Pipeline, database *db.DB, tenantID, docType string, files []walker.FileInfo) (indexed, failed, chunks int64) {
	pool := worker.NewPool(audit.NewStore(database), zap.NewNop(), worker.Options{
		Workers:    cfg.Worker.Workers,
		QueueDepth: len(files),
	})
	poolCtx, stop := context.WithCancel(ctx)
	defer stop()
	pool.Start(poolCtx)

	reporter := progress.NewReporter()
	reporter.Start(len(files))
	defer reporter.Finish()

	var wg sync.WaitGroup
	var done atomic.Int64

	for _, f := range files {
		f := f
		wg.Add(1)
		job := worker.Job{
			TenantID: tenantID,
			Name:     "index_document",
			Queue:    worker.QueueIndexing,
			Params:   map[string]any{"source_path": f.RelPath},
			Fn: func(jctx context.Context) error {
				content, err := os.ReadFile(f.Path)
				if err != nil {
					return err
				}
				dt := docType
				if dt == "" {
					dt = f.DocType
				}
				result, err := pipeline.Ingest(jctx, rag.IngestRequest{
					TenantID:   tenantID,
					SourcePath: f.RelPath,
					DocType:    dt,
					Content:    string(content),
					Markdown:   f.Markdown,
					Extra:      map[string]string{"content_hash": f.ContentHash},
				})
				if err != nil {
					return err
				}
				atomic.AddInt64(&chunks, int64(result.ChunkCount))
				return nil
			},
			OnDone: func(err error) {
				defer wg.Done()
				if err == nil {
					atomic.AddInt64(&indexed, 1)
				} else {
					atomic.AddInt64(&failed, 1)
				}
				reporter.Update(int(done.Add(1)), f.RelPath)
			},
		}
		if err := pool.Enqueue(job); err != nil {
			atomic.AddInt64(&failed, 1)
			reporter.Update(int(done.Add(1)), f.RelPath)
			wg.Done()
		}
	}

	wg.Wait()
	stop()
	pool.Wait()
	return indexed, failed, chunks
}
