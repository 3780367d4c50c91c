package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/quillcast/quillmail/internal/config"
	"github.com/quillcast/quillmail/internal/jobs"
	"github.com/quillcast/quillmail/internal/linkrewrite"
	"github.com/quillcast/quillmail/internal/pkg/logger"
	"github.com/quillcast/quillmail/internal/provider/bulkmail"
	"github.com/quillcast/quillmail/internal/repository/postgres"
	"github.com/quillcast/quillmail/internal/sending"
	emailsvc "github.com/quillcast/quillmail/internal/service/email"
	"github.com/quillcast/quillmail/internal/service/suppression"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		logger.Error("load config", "err", err.Error())
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("open database", "err", err.Error())
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.Ping(); err != nil {
		logger.Error("ping database", "err", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	rewriter, err := linkrewrite.New(cfg.Tracking.BaseURL, cfg.Tracking.SiteURL,
		cfg.Tracking.SigningKey, cfg.Tracking.Passthrough)
	if err != nil {
		logger.Error("link rewriter", "err", err.Error())
		os.Exit(1)
	}

	client := bulkmail.NewClient(bulkmail.Config{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Timeout: time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
	})

	batchSize := cfg.Send.BatchSize
	if batchSize > client.MaxRecipients() {
		logger.Warn("batch size exceeds provider cap, clamping",
			"configured", batchSize, "cap", client.MaxRecipients())
		batchSize = client.MaxRecipients()
	}

	emailRepo := postgres.NewEmailRepo(db)
	suppSvc := suppression.NewService(postgres.NewSuppressionRepo(db))

	engine := sending.NewEngine(
		emailRepo,
		postgres.NewBatchRepo(db),
		postgres.NewMemberRepo(db),
		suppSvc,
		client,
		postgres.NewContentRenderer(db),
		rewriter,
		sending.Config{
			BatchSize:     batchSize,
			Concurrency:   cfg.Send.Concurrency,
			MaxAttempts:   cfg.Send.MaxAttempts,
			RatePerSecond: float64(cfg.Send.RatePerSecond),
		},
	)

	queue := jobs.NewQueue(postgres.NewJobRepo(db), cfg.Queue.Enabled,
		cfg.Queue.Workers, time.Duration(cfg.Queue.PollIntervalSeconds)*time.Second)

	queue.Register(emailsvc.MethodBatchSend, func(ctx context.Context, metadata json.RawMessage) error {
		var m emailsvc.SendJobMetadata
		if err := json.Unmarshal(metadata, &m); err != nil {
			return fmt.Errorf("bad metadata: %w", err)
		}
		return engine.SendEmail(ctx, m.EmailID)
	})

	queue.Start()
	logger.Info("worker running", "workers", cfg.Queue.Workers, "queue_enabled", cfg.Queue.Enabled)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("draining job queue")
	queue.Stop()
}
