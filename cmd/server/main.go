package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/union-registry/internal/config"
	"github.com/iliyamo/union-registry/internal/database"
	"github.com/iliyamo/union-registry/internal/handler"
	"github.com/iliyamo/union-registry/internal/middleware"
	"github.com/iliyamo/union-registry/internal/repository"
	"github.com/iliyamo/union-registry/internal/router"
	"github.com/iliyamo/union-registry/internal/service"
	"github.com/iliyamo/union-registry/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional outside development

	cfg := config.Load()
	logger := utils.NewLogger(cfg.Env, cfg.LogLevel)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.EnsureSchema(schemaCtx, db); err != nil {
		cancel()
		logger.WithError(err).Fatal("schema setup failed")
	}
	cancel()

	rdb := config.NewRedisClient(logger) // nil when Redis is down
	if rdb != nil {
		defer rdb.Close()
	}

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		events = service.NewAMQPPublisher(cfg.RabbitURL, logger)
	}

	members := repository.NewMemberRepo(db, logger)
	accounts := repository.NewAccountRepo(db)
	tokens := repository.NewTokenRepo(db)

	memberSvc := service.NewMemberService(members, events, logger)
	reportSvc := service.NewReportService(members)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))

	router.RegisterRoutes(e)
	router.RegisterAuth(e,
		handler.NewAuthHandler(cfg, accounts, tokens, members, logger),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger),
	)
	router.RegisterMembers(e, handler.NewMemberHandler(memberSvc, logger), cfg.JWTSecret)
	router.RegisterReports(e,
		handler.NewReportHandler(reportSvc, logger),
		cfg.JWTSecret,
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb, logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	go func() {
		logger.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown failed")
	}
}
