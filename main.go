package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/nsqio/go-nsq"

	"memvault/internal/app"
	"memvault/internal/config"
	"memvault/internal/logger"
)

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("failed to bootstrap", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	a := app.New(cfg, deps)

	// Ingestion worker: one NSQ message per uploaded document. A single
	// attempt only: the consumer keeps its in-flight message alive for the
	// duration of a run, and if the process dies mid-run the task must not
	// restart on its own. FAILED work is re-triggered through the job
	// retry endpoint.
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxAttempts = 1
	consumer, err := nsq.NewConsumer(config.TopicIngestDocument, "pipeline", nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ consumer", "error", err)
		os.Exit(1)
	}
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		return a.IngestConsumer.HandleMessage(m)
	}))
	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect to NSQLookupd", "error", err)
		os.Exit(1)
	}
	slog.Info("ingest consumer connected")

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	slog.Info("server starting", "addr", addr)
	if err := http.ListenAndServe(addr, a.Handler); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
