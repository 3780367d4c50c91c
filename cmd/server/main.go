package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/quillcast/quillmail/internal/api"
	"github.com/quillcast/quillmail/internal/config"
	"github.com/quillcast/quillmail/internal/events"
	"github.com/quillcast/quillmail/internal/jobs"
	"github.com/quillcast/quillmail/internal/linkrewrite"
	"github.com/quillcast/quillmail/internal/pkg/logger"
	"github.com/quillcast/quillmail/internal/repository/postgres"
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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	rewriter, err := linkrewrite.New(cfg.Tracking.BaseURL, cfg.Tracking.SiteURL,
		cfg.Tracking.SigningKey, cfg.Tracking.Passthrough)
	if err != nil {
		logger.Error("link rewriter", "err", err.Error())
		os.Exit(1)
	}

	emailRepo := postgres.NewEmailRepo(db)
	suppRepo := postgres.NewSuppressionRepo(db)
	eventRepo := postgres.NewEventRepo(db)
	jobRepo := postgres.NewJobRepo(db)
	postRepo := postgres.NewPostRepo(db)
	newsletterRepo := postgres.NewNewsletterRepo(db)

	bus := events.NewBus(rdb, cfg.Redis.EventsChannel)
	suppSvc := suppression.NewService(suppRepo)
	processor := events.NewProcessor(eventRepo, emailRepo, suppSvc, bus)

	queue := jobs.NewQueue(jobRepo, cfg.Queue.Enabled, cfg.Queue.Workers,
		time.Duration(cfg.Queue.PollIntervalSeconds)*time.Second)

	emailService := emailsvc.NewService(emailRepo, postRepo, newsletterRepo,
		emailsvc.DefaultHeaders{}, queue)

	handlers := api.NewHandlers(emailService, suppSvc, processor, rewriter, bus)
	router := api.SetupRoutes(handlers, cfg.Server.AllowedOrigins)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server", "err", err.Error())
			os.Exit(1)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err.Error())
	}
}
