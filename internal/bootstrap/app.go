package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"natural-alert/internal/ai"
	"natural-alert/internal/config"
	"natural-alert/internal/logger"
	"natural-alert/internal/model"
	"natural-alert/internal/platform/mysql"
	"natural-alert/internal/platform/rabbitmq"
	"natural-alert/internal/platform/redis"
	"natural-alert/internal/repository"
	"natural-alert/internal/worker"
)

// App wires configuration and shared infrastructure for the server.
// MySQL and RabbitMQ are only dialed when the transcript archive is
// enabled; the chat path itself needs just Redis and the LLM provider.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	Redis     *goredis.Client
	ChatModel *ai.ChatModel
	Embedder  *ai.Embedder

	MySQL         *gorm.DB
	MQConn        *amqp.Connection
	TurnPublisher *rabbitmq.TurnPublisher
	ArchiveWorker *worker.TurnArchiveWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("init redis failed: %w", err)
	}

	aiClient := ai.NewOpenAICompatibleClient()
	app := &App{
		Config: cfg,
		Log:    log,
		Redis:  redisClient,
		ChatModel: ai.NewChatModel(aiClient, ai.ChatConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.ChatModel,
		}),
		Embedder: ai.NewEmbedder(aiClient, ai.EmbeddingConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.EmbeddingModel,
		}),
		StartedAt: time.Now(),
	}

	if cfg.Archive.Enabled {
		if err := app.initArchive(ctx); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

func (a *App) initArchive(ctx context.Context) error {
	db, err := mysql.New(ctx, a.Config.MySQLDSN())
	if err != nil {
		return fmt.Errorf("init mysql failed: %w", err)
	}
	a.MySQL = db

	if err := db.AutoMigrate(&model.ArchivedTurn{}); err != nil {
		return fmt.Errorf("migrate archive schema failed: %w", err)
	}

	queue := a.Config.RabbitMQ.TurnArchiveQueue
	conn, err := rabbitmq.New(ctx, a.Config.RabbitMQ.URL, queue)
	if err != nil {
		return fmt.Errorf("init rabbitmq failed: %w", err)
	}
	a.MQConn = conn

	a.TurnPublisher = rabbitmq.NewTurnPublisher(conn, queue)

	repo := repository.NewTurnRepository(db)
	a.ArchiveWorker = worker.NewTurnArchiveWorker(conn, repo, queue, a.Log)
	if err := a.ArchiveWorker.Start(ctx); err != nil {
		return fmt.Errorf("start archive worker failed: %w", err)
	}

	a.Log.Infow("transcript archive enabled", "queue", queue)
	return nil
}

func (a *App) Close() {
	if a.ArchiveWorker != nil {
		a.ArchiveWorker.Close()
	}
	if a.MQConn != nil {
		_ = a.MQConn.Close()
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
