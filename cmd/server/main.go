package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/courier/internal/api"
	"github.com/ignite/courier/internal/auth"
	"github.com/ignite/courier/internal/config"
	"github.com/ignite/courier/internal/governor"
	"github.com/ignite/courier/internal/pkg/distlock"
	"github.com/ignite/courier/internal/pkg/logger"
	"github.com/ignite/courier/internal/repository/postgres"
	"github.com/ignite/courier/internal/service/identity"
	"github.com/ignite/courier/internal/service/ingest"
	"github.com/ignite/courier/internal/service/send"
	"github.com/ignite/courier/internal/ses"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		logger.Error("config load failed", "error", err.Error())
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("database open failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		logger.Error("database unreachable", "error", err.Error())
		os.Exit(1)
	}
	pingCancel()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("redis url invalid", "error", err.Error())
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	sesClient, err := ses.NewClient(context.Background(), cfg.SES)
	if err != nil {
		logger.Error("ses client init failed", "error", err.Error())
		os.Exit(1)
	}

	identityRepo := postgres.NewIdentityRepo(db)
	messageRepo := postgres.NewMessageRepo(db)
	projectRepo := postgres.NewProjectRepo(db)

	locks := distlock.NewFactory(redisClient, db, 30*time.Second)
	gov := governor.New(redisClient, sesClient, cfg.Governor.Key(), cfg.Governor.Cooldown())

	identitySvc := identity.NewService(identityRepo, sesClient, cfg.SES.Region, locks)
	providerResolver := send.NewSESResolver(projectRepo, cfg.SES.Region, cfg.SES.SNSTopicARN)
	sendSvc := send.NewService(messageRepo, identityRepo, providerResolver, gov)
	ingestSvc := ingest.NewService(messageRepo, nil)

	handlers := api.NewHandlers(identitySvc, sendSvc, ingestSvc, gov)
	router := api.SetupRoutes(handlers, auth.NewManager(projectRepo))

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", "addr", server.Addr, "region", cfg.SES.Region)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err.Error())
	}
	logger.Info("server stopped")
}
