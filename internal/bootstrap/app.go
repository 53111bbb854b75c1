package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"askthedocs/internal/ai"
	appsvc "askthedocs/internal/app"
	"askthedocs/internal/cache"
	"askthedocs/internal/config"
	"askthedocs/internal/loader"
	"askthedocs/internal/model"
	rabbitmqClient "askthedocs/internal/platform/rabbitmq"
	redisClient "askthedocs/internal/platform/redis"
	sqliteClient "askthedocs/internal/platform/sqlite"
	"askthedocs/internal/repository"
	"askthedocs/internal/worker"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *gorm.DB
	Redis  *redisv9.Client  // nil when no addr configured
	MQConn *amqp.Connection // nil when no broker configured

	Sessions *appsvc.SessionService
	Ingest   *appsvc.IngestService
	Chat     *appsvc.ChatService

	HistoryWorker *worker.HistoryPersistWorker

	StartedAt   time.Time
	stopSweeper context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	logger, err := newLogger(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("build logger failed: %w", err)
	}

	db, err := sqliteClient.New(cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.SessionRecord{}, &model.HistoryRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	sessionRepo := repository.NewSessionRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	var redisCli *redisv9.Client
	var historyCache appsvc.HistoryCache
	if cfg.Redis.Addr != "" {
		redisCli, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		historyCache = cache.NewHistoryCache(
			redisCli,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.DirtyTTLSeconds)*time.Second,
		)
	}

	var mqConn *amqp.Connection
	var publisher appsvc.HistoryPublisher = repository.NewSyncHistoryPublisher(historyRepo)
	var historyWorker *worker.HistoryPersistWorker
	if cfg.RabbitMQ.URL != "" {
		mqConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
		publisher = rabbitmqClient.NewHistoryPublisher(mqConn, cfg.RabbitMQ.HistoryQueue)
		historyWorker = worker.NewHistoryPersistWorker(mqConn, historyRepo, cfg.RabbitMQ.HistoryQueue, logger)
		if err := historyWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start history worker failed: %w", err)
		}
	}

	aiClient := ai.NewClient(time.Duration(cfg.LLM.RequestTimeoutSeconds) * time.Second)
	docLoader := loader.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)

	sessions := appsvc.NewSessionService(
		appsvc.SessionServiceConfig{
			DataDir:         cfg.Session.DataDir,
			TTL:             cfg.SessionTTL(),
			LLMBaseURL:      cfg.LLM.BaseURL,
			ValidateTimeout: time.Duration(cfg.LLM.ValidateTimeoutSeconds) * time.Second,
		},
		aiClient, sessionRepo, historyRepo, historyCache, logger,
	)

	ingest := appsvc.NewIngestService(
		appsvc.IngestServiceConfig{
			LLMBaseURL:     cfg.LLM.BaseURL,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			BatchSize:      cfg.RAG.EmbeddingBatchSize,
			EmbedTimeout:   time.Duration(cfg.LLM.EmbedTimeoutSeconds) * time.Second,
		},
		docLoader, aiClient, logger,
	)

	chat := appsvc.NewChatService(
		appsvc.ChatServiceConfig{
			LLMBaseURL:      cfg.LLM.BaseURL,
			ChatModel:       cfg.LLM.Model,
			EmbeddingModel:  cfg.LLM.EmbeddingModel,
			TopK:            cfg.RAG.TopK,
			MaxContextChars: cfg.RAG.MaxContextChars,
			MaxHistory:      cfg.RAG.MaxHistoryMessages,
			EmbedTimeout:    time.Duration(cfg.LLM.EmbedTimeoutSeconds) * time.Second,
		},
		aiClient, publisher, historyCache, logger,
	)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go sessions.RunSweeper(sweepCtx, cfg.SweepInterval())

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Redis:         redisCli,
		MQConn:        mqConn,
		Sessions:      sessions,
		Ingest:        ingest,
		Chat:          chat,
		HistoryWorker: historyWorker,
		StartedAt:     time.Now(),
		stopSweeper:   stopSweeper,
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.stopSweeper != nil {
		a.stopSweeper()
	}
	if a.HistoryWorker != nil {
		a.HistoryWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil && closeErr == nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
