package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/anki-importer/api"
	"github.com/fyerfyer/anki-importer/api/handler"
	"github.com/fyerfyer/anki-importer/api/middleware"
	appconfig "github.com/fyerfyer/anki-importer/config"
	"github.com/fyerfyer/anki-importer/internal/ankiconnect"
	"github.com/fyerfyer/anki-importer/internal/cache"
	"github.com/fyerfyer/anki-importer/internal/database"
	"github.com/fyerfyer/anki-importer/internal/repository"
	"github.com/fyerfyer/anki-importer/internal/services"
	"github.com/fyerfyer/anki-importer/pkg/storage"
	"github.com/fyerfyer/anki-importer/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	middleware.ConfigureLogger(middleware.LogConfig{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	logger := middleware.GetLogger()
	gin.SetMode(cfg.Server.Mode)
	logger.Info("Starting Anki importer...")

	client := ankiconnect.NewClient(
		ankiconnect.WithEndpoint(cfg.Anki.Endpoint),
		ankiconnect.WithVersion(cfg.Anki.Version),
		ankiconnect.WithTimeout(cfg.Anki.Timeout),
	)

	opts := []services.ImportOption{
		services.WithLogger(logger),
		services.WithConcurrency(cfg.Import.Concurrency),
		services.WithDefaults(services.ImportDefaults{
			Deck:           cfg.Anki.Deck,
			Model:          cfg.Anki.Model,
			Fields:         cfg.Import.Fields,
			FieldMap:       cfg.Import.Aliases(),
			LeadingField:   cfg.Import.LeadingField,
			Tags:           cfg.Import.Tags,
			AllowDuplicate: cfg.Anki.AllowDuplicate,
		}),
	}

	// 牌组缓存
	if cfg.Cache.Enable {
		deckCache, err := setupCache(cfg)
		if err != nil {
			logger.Fatalf("Failed to initialize cache: %v", err)
		}
		opts = append(opts, services.WithCache(deckCache, client.Endpoint(), time.Duration(cfg.Cache.TTL)*time.Second))
	}

	// 导入记录
	if cfg.Database.Enable {
		dbConfig := database.DefaultConfig()
		dbConfig.Type = cfg.Database.Type
		dbConfig.DSN = cfg.Database.DSN
		if err := database.Setup(dbConfig, logger); err != nil {
			logger.Fatalf("Failed to initialize database: %v", err)
		}
		defer database.Close()
		opts = append(opts, services.WithRepository(repository.NewImportRepository()))
	}

	// 异步文件导入
	var queue taskqueue.Queue
	if cfg.Queue.Enable {
		fileStorage, err := setupStorage(cfg)
		if err != nil {
			logger.Fatalf("Failed to initialize storage: %v", err)
		}

		queue, err = setupTaskQueue(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()

		opts = append(opts, services.WithStorage(fileStorage), services.WithTaskQueue(queue))
		logger.Info("Task queue initialized successfully")
	}

	importService := services.NewImportService(client, opts...)

	// 在本进程内处理导入任务
	if queue != nil && cfg.Queue.Worker {
		redisQueue, ok := queue.(*taskqueue.RedisQueue)
		if !ok {
			logger.Fatalf("Queue type %q does not support workers", cfg.Queue.Type)
		}
		worker := taskqueue.NewRedisWorker(redisQueue, nil)
		taskHandler := services.NewImportTaskHandler(importService)
		for _, t := range taskHandler.GetTaskTypes() {
			worker.RegisterHandler(t, taskHandler)
		}
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start worker: %v", err)
		}
		defer worker.Stop()
	}

	r := api.SetupRouter(
		handler.NewImportHandler(importService),
		handler.NewTaskHandler(importService),
		handler.NewHealthHandler(importService, client.Endpoint()),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 优雅关闭
	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// setupCache 设置缓存服务
func setupCache(cfg *appconfig.Config) (cache.Cache, error) {
	cacheConfig := cache.DefaultConfig()
	cacheConfig.Type = cfg.Cache.Type
	cacheConfig.KeyPrefix = cfg.Cache.KeyPrefix
	cacheConfig.DefaultTTL = time.Duration(cfg.Cache.TTL) * time.Second

	if cfg.Cache.Type == "redis" {
		cacheConfig.RedisAddr = cfg.Cache.Address
		cacheConfig.RedisPassword = cfg.Cache.Password
		cacheConfig.RedisDB = cfg.Cache.DB
	}

	return cache.NewCache(cacheConfig)
}

// setupStorage 设置上传文件存储
func setupStorage(cfg *appconfig.Config) (storage.Storage, error) {
	return storage.NewStorage(storage.Config{
		Type:  cfg.Storage.Type,
		Local: storage.LocalConfig{Path: cfg.Storage.Path},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		},
	})
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(cfg *appconfig.Config, logger *logrus.Logger) (taskqueue.Queue, error) {
	queueConfig := taskqueue.DefaultConfig()
	queueConfig.RedisAddr = cfg.Queue.RedisAddr
	queueConfig.RedisPassword = cfg.Queue.RedisPassword
	queueConfig.RedisDB = cfg.Queue.RedisDB
	queueConfig.Concurrency = cfg.Queue.Concurrency
	queueConfig.RetryLimit = cfg.Queue.RetryLimit
	queueConfig.RetryDelay = time.Duration(cfg.Queue.RetryDelay) * time.Second
	queueConfig.Logger = logger

	logger.WithFields(logrus.Fields{
		"type":        cfg.Queue.Type,
		"redis_addr":  cfg.Queue.RedisAddr,
		"concurrency": cfg.Queue.Concurrency,
		"retry_limit": cfg.Queue.RetryLimit,
	}).Info("Setting up task queue")

	return taskqueue.NewQueue(cfg.Queue.Type, queueConfig)
}
