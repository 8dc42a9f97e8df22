package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/tbillet/routier/internal/ai"
	"github.com/tbillet/routier/internal/config"
	"github.com/tbillet/routier/internal/filestore"
	"github.com/tbillet/routier/internal/handler"
	"github.com/tbillet/routier/internal/index"
	"github.com/tbillet/routier/internal/ingest"
	"github.com/tbillet/routier/internal/job"
	"github.com/tbillet/routier/internal/middleware"
	"github.com/tbillet/routier/internal/retrieval"
	"github.com/tbillet/routier/internal/safety"
	"github.com/tbillet/routier/internal/schedule"
	"github.com/tbillet/routier/internal/service"
	"github.com/tbillet/routier/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "routier",
		Short: "question answering over the French Code de la route",
	}
	rootCmd.AddCommand(newIngestCmd(), newIndexCmd(), newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func newIngestCmd() *cobra.Command {
	var (
		pdfPath   string
		outDir    string
		chunkSize int
		overlap   int
		planPages string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "extract a pdf into chunk and plan files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pdfPath == "" {
				return fmt.Errorf("--pdf is required")
			}
			ctx := cmd.Context()
			pages, err := ingest.LoadPDFPages(ctx, pdfPath)
			if err != nil {
				return err
			}

			planStart, planEnd, err := parsePageRange(planPages, len(pages))
			if err != nil {
				return err
			}

			var plan []string
			if planStart > 0 {
				plan = pages[planStart-1 : planEnd]
			}
			entries := ingest.ExtractPlan(plan)

			// The plan range is excluded from the body; segment each
			// remaining contiguous region with its real page numbers.
			var chunks = ingest.Segment(pages[:max(planStart-1, 0)], chunkSize, overlap, 1)
			if planEnd < len(pages) {
				chunks = append(chunks, ingest.Segment(pages[planEnd:], chunkSize, overlap, planEnd+1)...)
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			chunksPath := filepath.Join(outDir, "chunks.jsonl")
			if err := store.SaveChunks(chunksPath, chunks); err != nil {
				return err
			}
			planPath := filepath.Join(outDir, "plan.jsonl")
			if err := store.SavePlan(planPath, entries); err != nil {
				return err
			}
			logutil.GetLogger(ctx).Info("ingestion done",
				zap.Int("pages", len(pages)),
				zap.Int("chunks", len(chunks)),
				zap.Int("plan_entries", len(entries)),
				zap.String("out", outDir),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "source pdf path")
	cmd.Flags().StringVar(&outDir, "out", "data/processed", "output directory")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "chunk size in characters")
	cmd.Flags().IntVar(&overlap, "overlap", 200, "overlap between consecutive chunks")
	cmd.Flags().StringVar(&planPages, "plan-pages", "", "table-of-contents page range, e.g. 1:4")
	return cmd
}

func newIndexCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "embed the chunk file and build the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger.Init(cfg.LogConfig.File, cfg.LogConfig.Level, int(cfg.LogConfig.FileCount), int(cfg.LogConfig.FileSize), int(cfg.LogConfig.KeepDays), cfg.LogConfig.Console)

			chunks, err := store.LoadChunks(ctx, cfg.Corpus.ChunksPath)
			if err != nil {
				return err
			}
			provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
			if err != nil {
				return fmt.Errorf("init ai provider: %w", err)
			}
			embedder := ai.NewEmbedder(provider, cfg.AI.EmbedModel)

			idx, err := index.New(cfg.Corpus.Index)
			if err != nil {
				return err
			}
			defer idx.Close()
			if err := idx.Reset(ctx); err != nil {
				return err
			}

			log := logutil.GetLogger(ctx)
			vectors := make([][]float32, 0, len(chunks))
			for i, chunk := range chunks {
				emb, err := embedder.Embed(ctx, chunk.Text, "RETRIEVAL_DOCUMENT")
				if err != nil {
					return fmt.Errorf("embed chunk %d: %w", i, err)
				}
				vectors = append(vectors, index.NormalizeVector(emb))
				if (i+1)%100 == 0 {
					log.Info("embedding progress", zap.Int("done", i+1), zap.Int("total", len(chunks)))
				}
			}
			if err := idx.Add(ctx, vectors); err != nil {
				return err
			}
			if err := idx.Flush(ctx); err != nil {
				return err
			}
			log.Info("index built", zap.Int("vectors", len(vectors)), zap.String("engine", cfg.Corpus.Index.Engine))

			if cfg.ArtifactStore != nil {
				if err := publishArtifacts(ctx, cfg); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	cmd.MarkFlagRequired("config")
	return cmd
}

func publishArtifacts(ctx context.Context, cfg *config.Config) error {
	artifacts, err := filestore.New(*cfg.ArtifactStore)
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}
	paths := []string{cfg.Corpus.ChunksPath, cfg.Corpus.PlanPath, cfg.Corpus.Index.Path}
	for _, p := range paths {
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return err
		}
		err = artifacts.Save(ctx, filepath.Base(p), f, stat.Size())
		f.Close()
		if err != nil {
			return fmt.Errorf("publish %s: %w", p, err)
		}
		logutil.GetLogger(ctx).Info("artifact published", zap.String("key", filepath.Base(p)))
	}
	return nil
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the question-answering server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(cfg.LogConfig.File, cfg.LogConfig.Level, int(cfg.LogConfig.FileCount), int(cfg.LogConfig.FileSize), int(cfg.LogConfig.KeepDays), cfg.LogConfig.Console)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
			return runServer(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	cmd.MarkFlagRequired("config")
	return cmd
}

func runServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	corpus, err := store.Open(ctx, cfg.Corpus)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer corpus.Close()

	provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	embedder := ai.NewEmbedder(provider, cfg.AI.EmbedModel)
	generator := ai.NewGenerator(provider, cfg.AI.GenerateModel)

	banned := cfg.Filter.Banned
	if len(banned) == 0 {
		banned = safety.DefaultBannedPatterns
	}
	filter, err := safety.NewFilter(banned)
	if err != nil {
		return fmt.Errorf("init input filter: %w", err)
	}

	retriever := retrieval.New(embedder, corpus)
	answers := service.NewAnswerService(filter, retriever, generator, service.AnswerConfig{
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.Threshold,
	})
	chatHandler := handler.NewChatHandler(answers, corpus, cfg.AI.EmbedModel)

	extra := []gin.HandlerFunc{
		middleware.CORS(cfg.CORSOrigins),
		gzip.Gzip(gzip.DefaultCompression),
	}
	if cfg.RateLimitSeconds > 0 {
		extra = append(extra, middleware.RateLimit(time.Duration(cfg.RateLimitSeconds)*time.Second))
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, handler.RouterDeps{Chat: chatHandler})
		}),
		webapi.WithExtraMiddlewares(extra...),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewCorpusReloadJob(corpus, cfg.Corpus.ChunksPath), cfg.ReloadCronSpec); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening",
		zap.Int("port", cfg.Port),
		zap.Int("chunks", corpus.Size()),
		zap.String("engine", corpus.Engine()),
	)
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

// parsePageRange parses "start:end" (1-based, inclusive) and returns (0, 0)
// for an empty spec.
func parsePageRange(spec string, totalPages int) (int, int, error) {
	if spec == "" {
		return 0, 0, nil
	}
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid page range %q, want start:end", spec)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page range %q: %v", spec, err)
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page range %q: %v", spec, err)
	}
	if start < 1 || end < start || end > totalPages {
		return 0, 0, fmt.Errorf("page range %q out of bounds for %d pages", spec, totalPages)
	}
	return start, end, nil
}
