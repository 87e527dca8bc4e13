package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/denwilliams/gmail-triage-assistant/adapter/out/graph"
	"github.com/denwilliams/gmail-triage-assistant/adapter/out/messaging"
	"github.com/denwilliams/gmail-triage-assistant/adapter/out/mongodb"
	"github.com/denwilliams/gmail-triage-assistant/adapter/out/persistence"
	"github.com/denwilliams/gmail-triage-assistant/adapter/out/provider"
	"github.com/denwilliams/gmail-triage-assistant/config"
	"github.com/denwilliams/gmail-triage-assistant/core/agent/llm"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/core/service/auth"
	"github.com/denwilliams/gmail-triage-assistant/core/service/memory"
	"github.com/denwilliams/gmail-triage-assistant/core/service/triage"
	"github.com/denwilliams/gmail-triage-assistant/core/service/wrapup"
	"github.com/denwilliams/gmail-triage-assistant/infra/database"
	"github.com/denwilliams/gmail-triage-assistant/pkg/cache"
	"github.com/denwilliams/gmail-triage-assistant/pkg/crypto"
	"github.com/denwilliams/gmail-triage-assistant/pkg/logger"
)

const queueMaxLen = 100000

type Dependencies struct {
	Config   *config.Config
	Location *time.Location
	DB       *pgxpool.Pool
	SQLDB    *sqlx.DB
	Redis    *redis.Client
	MongoDB  *mongo.Client
	Neo4j    neo4j.DriverWithContext

	// Shared cache: Redis when configured, in-process otherwise
	Cache out.Cache

	// Repositories
	Accounts *persistence.AccountAdapter
	Messages *persistence.ProcessedMessageAdapter
	Labels   *persistence.LabelAdapter
	Prompts  *persistence.PromptAdapter
	Memories *persistence.MemoryAdapter
	Wrapups  out.WrapupRepository
	Senders  out.SenderHistory

	// Providers
	Gmail *provider.GmailFactory
	LLM   *llm.Client

	// Messaging; nil without Redis
	Producer *messaging.RedisProducer

	// Services
	Auth   *auth.Service
	Triage *triage.Service
	Memory *memory.Service
	Wrapup *wrapup.Service
}

// NewDependencies connects every configured store and builds the services.
// Postgres is mandatory. Redis, MongoDB and Neo4j are optional: without
// Redis there is no queue, the others fall back to Postgres.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return fail(err)
	}
	deps.Location = loc

	// Database (pgxpool)
	pgCfg := database.DefaultPostgresConfig(cfg.DBMaxConns)
	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, pgCfg)
	if err != nil {
		return fail(fmt.Errorf("postgres: %w", err))
	}
	deps.DB = db
	cleanups = append(cleanups, db.Close)

	// Database (sqlx for repositories)
	sqlDB, err := database.NewSQLX(ctx, cfg.DatabaseURL, pgCfg)
	if err != nil {
		return fail(fmt.Errorf("postgres (sqlx): %w", err))
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })
	logger.Info("Postgres connected")

	// Redis
	deps.Cache = cache.NewMemoryCache()
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(ctx, cfg.RedisURL, cfg.RedisPoolSize)
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		deps.Redis = redisClient
		cleanups = append(cleanups, func() { redisClient.Close() })
		deps.Cache = cache.NewRedisCache(redisClient, "triage:")
		deps.Producer = messaging.NewRedisProducer(redisClient, cfg.QueueStream, queueMaxLen)
		logger.Info("Redis connected")
	} else {
		logger.Warn("REDIS_URL not set: queue disabled, locks are process-local")
	}

	// Repositories
	enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return fail(err)
	}
	deps.Accounts = persistence.NewAccountAdapter(sqlDB, enc)
	deps.Messages = persistence.NewProcessedMessageAdapter(sqlDB)
	deps.Labels = persistence.NewLabelAdapter(sqlDB)
	deps.Prompts = persistence.NewPromptAdapter(sqlDB)
	deps.Memories = persistence.NewMemoryAdapter(sqlDB)
	deps.Wrapups = persistence.NewWrapupAdapter(sqlDB)
	deps.Senders = persistence.NewSenderHistoryAdapter(sqlDB)

	// MongoDB (wrapup reports)
	if cfg.MongoDBURL != "" {
		client, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB connection failed, wrapups stay in Postgres: %v", err)
		} else {
			deps.MongoDB = client
			cleanups = append(cleanups, func() { client.Disconnect(context.Background()) })
			reports := mongodb.NewWrapupAdapter(client.Database(cfg.MongoDBName))
			if err := reports.EnsureIndexes(ctx); err != nil {
				logger.Warn("MongoDB index creation failed: %v", err)
			}
			deps.Wrapups = reports
			logger.Info("MongoDB connected (wrapup reports)")
		}
	}

	// Neo4j (sender history)
	if cfg.Neo4jURL != "" {
		driver, err := graph.NewDriver(ctx, cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword)
		if err != nil {
			logger.Warn("Neo4j connection failed, sender history stays in Postgres: %v", err)
		} else {
			deps.Neo4j = driver
			cleanups = append(cleanups, func() { driver.Close(context.Background()) })
			senders := graph.NewSenderHistoryAdapter(driver, cfg.Neo4jDatabase)
			if err := senders.EnsureIndexes(ctx); err != nil {
				logger.Warn("Neo4j index creation failed: %v", err)
			}
			deps.Senders = senders
			logger.Info("Neo4j connected (sender history)")
		}
	}

	// Providers
	deps.Auth = auth.NewService(auth.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, deps.Accounts)
	deps.Gmail = provider.NewGmailFactory(deps.Auth)
	deps.Auth.SetProviderFactory(deps.Gmail)

	deps.LLM = llm.NewClient(llm.ClientConfig{
		APIKey:            cfg.OpenAIAPIKey,
		BaseURL:           cfg.OpenAIBaseURL,
		Model:             cfg.OpenAIModel,
		MaxTokens:         cfg.OpenAIMaxTokens,
		RequestsPerSecond: cfg.OpenAIRPS,
		Burst:             cfg.OpenAIBurst,
		MaxConcurrent:     cfg.WorkerConcurrency,
		CallTimeout:       cfg.CallTimeout,
		DebugPrompts:      cfg.DebugPrompts,
	})

	// Services
	deps.Memory = memory.NewService(memory.Deps{
		Memories:  deps.Memories,
		Messages:  deps.Messages,
		Labels:    deps.Labels,
		Prompts:   deps.Prompts,
		Generator: deps.LLM,
		Locks:     deps.Cache,
		Location:  loc,
	})
	deps.Wrapup = wrapup.NewService(deps.Wrapups, deps.Messages, deps.Prompts, deps.LLM, loc)

	processor := triage.NewProcessor(triage.ProcessorDeps{
		Accounts:   deps.Accounts,
		Messages:   deps.Messages,
		Senders:    deps.Senders,
		Labels:     deps.Labels,
		Prompts:    deps.Prompts,
		Providers:  deps.Gmail,
		Classifier: deps.LLM,
		Decider:    deps.LLM,
		Memory:     deps.Memory,
		Applier:    triage.NewApplier(deps.Cache),
	})
	var publisher out.JobPublisher = deps.Producer
	var inline *inlinePublisher
	if deps.Producer == nil {
		inline = &inlinePublisher{memory: deps.Memory, wrapup: deps.Wrapup}
		publisher = inline
	}
	deps.Triage = triage.NewService(processor, triage.NewDetector(deps.Gmail), deps.Accounts, deps.Messages, publisher)
	if inline != nil {
		inline.triage = deps.Triage
	}

	return deps, cleanup, nil
}

// Publisher returns the queue producer, or an error when Redis is not configured.
func (d *Dependencies) Publisher() (out.JobPublisher, error) {
	if d.Producer == nil {
		return nil, fmt.Errorf("REDIS_URL is required for the job queue")
	}
	return d.Producer, nil
}
