package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rishvic/jumpcoder/internal/common/cache"
	"github.com/rishvic/jumpcoder/internal/common/db"
	commonmw "github.com/rishvic/jumpcoder/internal/common/http/middleware"
	"github.com/rishvic/jumpcoder/internal/common/mq"
	"github.com/rishvic/jumpcoder/internal/common/storage"
	problemRepo "github.com/rishvic/jumpcoder/internal/problem/repository"
	"github.com/rishvic/jumpcoder/internal/submission/controller"
	submissionRepo "github.com/rishvic/jumpcoder/internal/submission/repository"
	"github.com/rishvic/jumpcoder/internal/submission/service"
	"github.com/rishvic/jumpcoder/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/jumpcoder.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mongoDB, err := db.NewMongo(appCfg.Mongo)
	if err != nil {
		logger.Error(context.Background(), "init mongo failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mongoDB.Close(context.Background())
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	var problems problemRepo.ProblemRepository = problemRepo.NewMongoProblemRepository(mongoDB.Database())
	if appCfg.Redis != nil {
		redisCache, err := cache.NewRedisCacheWithConfig(appCfg.Redis)
		if err != nil {
			logger.Error(context.Background(), "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		problems = problemRepo.NewCachedProblemRepositoryWithTTL(
			problems, redisCache, appCfg.Submit.ProblemCacheTTL, appCfg.Submit.ProblemEmptyTTL)
	}

	var notifier mq.Publisher
	if appCfg.Kafka != nil {
		kafkaPublisher, err := mq.NewKafkaPublisher(*appCfg.Kafka)
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = kafkaPublisher.Close()
		}()
		notifier = kafkaPublisher
	}

	submitService, err := service.NewSubmitService(service.Config{
		ProblemRepo:    problems,
		SubmissionRepo: submissionRepo.NewMongoSubmissionRepository(mongoDB.Database()),
		Tx:             mongoDB,
		Storage:        objStorage,
		Notifier:       notifier,
		CodeBucket:     appCfg.Submit.CodeBucket,
		MaxFileBytes:   appCfg.Submit.MaxFileBytes,
		Timeouts:       appCfg.Submit.Timeouts,
	})
	if err != nil {
		logger.Error(context.Background(), "init submit service failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg, submitService, mongoDB)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "jumpcoder http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(cfg *AppConfig, submitService *service.SubmitService, mongoDB *db.Mongo) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	submitController := controller.NewSubmitController(submitService, cfg.Submit.MaxBodyBytes)

	api := router.Group("/api")
	api.POST("/problems/:slug/submit", submitController.Submit)
	api.GET("/submissions/:id", submitController.GetSubmission)
	api.GET("/submissions/:id/source", submitController.GetSource)

	router.GET("/healthz", func(c *gin.Context) {
		if err := mongoDB.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
