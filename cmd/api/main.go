package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"persona-engine/internal/config"
	"persona-engine/internal/db"
	"persona-engine/internal/domain"
	apihttp "persona-engine/internal/http"
	"persona-engine/internal/llm"
	"persona-engine/internal/repository"
	"persona-engine/internal/service"
	"persona-engine/internal/store"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("db schema", zap.Error(err))
	}

	personaRepo := repository.NewPgPersonaRepository(pool)
	memoryRepo := repository.NewPgMemoryRepository(pool)
	vectorIndex := repository.NewPgVectorIndex(pool)
	relationshipRepo := repository.NewPgRelationshipRepository(pool)

	var (
		completer llm.Completer
		embedder  llm.Embedder
	)
	if cfg.LLMEnabled() {
		completer = llm.NewChatClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
		embedder = llm.NewOpenAIEmbedder(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	} else {
		logger.Warn("llm api key not configured, using hash embedder and pattern-only emotion detection")
		embedder = llm.NewHashEmbedder(cfg.EmbeddingDimensions)
	}
	logger.Info("embedding provider ready",
		zap.String("model", embedder.Model()),
		zap.Int("dimensions", embedder.Dimensions()),
	)

	var emotionContexts store.Store[domain.EmotionContext]
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, emotion contexts stay in memory", zap.Error(err))
		} else {
			emotionContexts = store.NewRedisStore[domain.EmotionContext](redisClient, "persona:emotion:", cfg.EmotionContextTTL)
		}
		cancel()
	}

	var emotionCompleter llm.Completer
	if cfg.ModelAssistedEmotion {
		emotionCompleter = completer
	}
	emotionDetector := service.NewEmotionDetector(emotionContexts, emotionCompleter, logger)
	memoryMgr := service.NewMemoryManager(memoryRepo, vectorIndex, embedder, completer, logger)
	anchorMgr := service.NewAnchorManager(service.AnchorManagerOptions{
		Source: personaRepo,
		Logger: logger,
	})
	relEngine := service.NewRelationshipEngine(service.RelationshipEngineOptions{
		Repo:      relationshipRepo,
		Completer: completer,
		Logger:    logger,
	})
	turnSvc := service.NewTurnService(emotionDetector, memoryMgr, anchorMgr, relEngine, cfg.ReinforcementInterval, logger)

	turnHandler := apihttp.NewTurnHandler(logger, turnSvc, emotionDetector)
	personaHandler := apihttp.NewPersonaHandler(logger, personaRepo, anchorMgr)
	memoryHandler := apihttp.NewMemoryHandler(logger, memoryMgr)
	relationshipHandler := apihttp.NewRelationshipHandler(logger, relEngine)
	router := apihttp.NewRouter(logger, turnHandler, personaHandler, memoryHandler, relationshipHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
