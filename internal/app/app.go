package app

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"memvault/features/job"
	"memvault/features/memory"
	"memvault/features/search"
	"memvault/internal/adapter/gemini"
	"memvault/internal/config"
	"memvault/internal/ingest"
	"memvault/internal/middleware"
	"memvault/internal/retrieval"
)

type App struct {
	Handler        http.Handler
	IngestConsumer *ingest.Consumer
}

func New(cfg *config.Config, deps *Dependencies) *App {
	// Adapters
	embedder := gemini.NewEmbedder(deps.Genai, cfg.EmbeddingModel, cfg.EmbeddingDim)
	ocr := gemini.NewOCRClient(deps.Genai, cfg.OCRModel)
	generator := gemini.NewGenerator(deps.Genai, cfg.AnswerModel)

	// Feature: Memory
	memoryRepo := memory.NewPostgresRepo(deps.DB)
	chunkRepo := memory.NewChunkRepo(deps.DB)
	memoryService := memory.NewService(memoryRepo, deps.Producer)
	memoryHandler := memory.NewHandler(memoryService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(deps.DB)
	jobService := job.NewService(jobRepo, deps.Producer)
	jobHandler := job.NewHandler(jobService)

	// Ingestion
	pipeline := ingest.NewPipeline(
		memoryRepo,
		chunkRepo,
		ingest.NewHTTPFetcher(),
		ingest.NewTextExtractor(ocr),
		ingest.NewMagickRenderer(cfg.MagickBin),
		embedder,
		ingest.Options{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			Concurrency:  cfg.IngestionConcurrency,
			EmbedTimeout: 60 * time.Second,
		},
	)
	ingestConsumer := ingest.NewConsumer(pipeline, jobRepo)

	// Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(embedder, chunkRepo, generator, cfg.SearchTopK, queryLogger)
	searchHandler := search.NewHandler(retrievalService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /memories", middleware.CorrelationID(enableCORS(memoryHandler.Create)))
	mux.Handle("GET /memories", middleware.CorrelationID(enableCORS(memoryHandler.List)))
	mux.Handle("GET /memories/count", middleware.CorrelationID(enableCORS(memoryHandler.Count)))
	mux.Handle("GET /memories/{id}", middleware.CorrelationID(enableCORS(memoryHandler.Get)))
	mux.Handle("GET /memories/{id}/status", middleware.CorrelationID(enableCORS(memoryHandler.Status)))
	mux.Handle("DELETE /memories/{id}", middleware.CorrelationID(enableCORS(memoryHandler.Delete)))

	mux.Handle("POST /search", middleware.CorrelationID(enableCORS(searchHandler.Search)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:        mux,
		IngestConsumer: ingestConsumer,
	}
}
