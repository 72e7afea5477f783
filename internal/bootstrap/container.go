package bootstrap

import (
	"context"
	"log"
	"time"

	"ai-tutor-be/internal/config"
	"ai-tutor-be/internal/controller"
	"ai-tutor-be/internal/pkg/logger"
	"ai-tutor-be/internal/repository/implementation"
	"ai-tutor-be/internal/repository/memory"
	"ai-tutor-be/internal/service"
	"ai-tutor-be/internal/websocket"
	"ai-tutor-be/pkg/embedding"
	"ai-tutor-be/pkg/llm/factory"
	"ai-tutor-be/pkg/tutor/intent"
	"ai-tutor-be/pkg/tutor/orchestrator"
	"ai-tutor-be/pkg/tutor/response"
	"ai-tutor-be/pkg/tutor/turnlock"
	"ai-tutor-be/pkg/tutor/vision"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController     controller.IChatController
	CanvasController   controller.ICanvasController
	DocumentController controller.IDocumentController

	// Background services (exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	WebSocketHub *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Model Gateways
	requestTimeout := time.Duration(cfg.Ai.RequestTimeoutSec) * time.Second

	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.EmbeddingModel)
	} else {
		embeddingProvider = embedding.NewOpenAIProvider(cfg.Ai.OpenAIBaseURL, cfg.Ai.OpenAIAPIKey, cfg.Ai.EmbeddingModel)
		log.Printf("[INFO] Using Embedding Provider: OPENAI (%s)", cfg.Ai.EmbeddingModel)
	}

	llmProvider, err := factory.NewLLMProvider(factory.ProviderConfig{
		Provider:      cfg.Ai.LLMProvider,
		Model:         cfg.Ai.LLMModel,
		VisionModel:   cfg.Ai.VisionModel,
		OpenAIAPIKey:  cfg.Ai.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Ai.OpenAIBaseURL,
		OllamaBaseURL: cfg.Ai.OllamaBaseURL,
		Timeout:       requestTimeout,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Infrastructure
	// Redis fans websocket pushes out across instances; a single instance
	// still works when it is unreachable.
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	wsLogger := logger.NewIsolatedLogger("logs/websocket.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 5. Repositories
	conversationRepo := implementation.NewConversationRepository(db)
	canvasSessionRepo := implementation.NewCanvasSessionRepository(db)
	courseChunkRepo := implementation.NewCourseChunkRepository(db)

	canvasTTL := time.Duration(cfg.Canvas.TTLMinutes) * time.Minute
	canvasCache := memory.NewCanvasCache(canvasTTL)

	// 6. Turn Pipeline
	classifier := intent.NewClassifier(llmProvider, sysLogger, cfg.Chat.HistoryLimit)
	analyzer := vision.NewAnalyzer(llmProvider, canvasCache, canvasSessionRepo, sysLogger, canvasTTL)
	streamer := response.NewStreamer(llmProvider, sysLogger, cfg.Chat.HistoryLimit)
	turnOrchestrator := orchestrator.New(
		conversationRepo,
		classifier,
		analyzer,
		streamer,
		turnlock.New(),
		sysLogger,
		cfg.Chat.HistoryLimit,
		cfg.Chat.StreamBufSize,
	)

	// 7. Services
	publisherService := service.NewPublisherService(pubSub, cfg.Chat.IngestTopic)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Chat.IngestTopic,
		courseChunkRepo,
		embeddingProvider,
		sysLogger,
		cfg.Chat.ChunkSize,
		cfg.Chat.ChunkOverlap,
	)

	chatService := service.NewChatService(turnOrchestrator, conversationRepo, sysLogger)
	canvasService := service.NewCanvasService(canvasSessionRepo, canvasCache, wsHub, sysLogger, cfg.Canvas.UploadDir)
	documentService := service.NewDocumentService(publisherService, sysLogger, cfg.Canvas.UploadDir)

	// 8. Controllers
	return &Container{
		ChatController:     controller.NewChatController(chatService),
		CanvasController:   controller.NewCanvasController(canvasService),
		DocumentController: controller.NewDocumentController(documentService),

		ConsumerService: consumerService,
		WebSocketHub:    wsHub,
	}
}
