package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/postpilot/autopilot/configs"
	"github.com/postpilot/autopilot/internal/ai"
	"github.com/postpilot/autopilot/internal/api/handlers"
	"github.com/postpilot/autopilot/internal/api/middleware"
	"github.com/postpilot/autopilot/internal/imagegen"
	job "github.com/postpilot/autopilot/internal/jobs"
	"github.com/postpilot/autopilot/internal/queue"
	"github.com/postpilot/autopilot/internal/repository"
	"github.com/postpilot/autopilot/internal/service"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	mediaItemRepo := repository.NewMediaItemRepository(db)
	mediaGroupRepo := repository.NewMediaGroupRepository(db, mediaItemRepo)
	postRepo := repository.NewPostRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	inspirationRepo := repository.NewInspirationRepository(db)
	historyRepo := repository.NewGenerationHistoryRepository(db)
	apiKeyRepository := repository.NewApiKeyRepository(db)

	gateway := imagegen.NewGateway(
		cfg.Providers.PreferredName,
		cfg.Providers.FallbackOrder,
		imagegen.NewOpenAIProvider(cfg.Providers.OpenAIKey, ""),
		imagegen.NewStabilityProvider(cfg.Providers.StabilityKey),
		imagegen.NewReplicateProvider(cfg.Providers.ReplicateKey),
	)
	gate := imagegen.NewIntervalGate(cfg.Pipeline.ImageCallInterval)

	analyzer := ai.NewOpenAIAnalyzer(cfg.Providers.OpenAIKey, cfg.VisionModel)
	textgen := ai.NewOpenAITextGenerator(cfg.Providers.OpenAIKey, cfg.TextModel)

	storageService := service.NewStorageService(*cfg)
	ingestionService := service.NewIngestionService(mediaItemRepo, analyzer)
	groupingService := service.NewGroupingService(*cfg, mediaItemRepo, mediaGroupRepo)
	generationService := service.NewGenerationService(textgen, gateway, gate, storageService, postRepo, inspirationRepo)
	schedulerService := service.NewSchedulerService(postRepo, cfg.Pipeline.SlotLookaheadDays)
	policyService := service.NewPolicyService(policyRepo)
	apiKeyService := service.NewApiKeyService(apiKeyRepository)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	autopilot := handlers.NewAutoPilotHandler(ingestionService, client)
	api.Post("/media/discover", autopilot.DiscoverMedia)
	api.Post("/generate/bulk", autopilot.BulkGenerate)

	media := handlers.NewMediaHandler(mediaItemRepo, mediaGroupRepo, postRepo)
	api.Get("/media", media.ListMedia)
	api.Get("/groups", media.ListGroups)
	api.Get("/posts/review", media.ListReviewPosts)

	policy := handlers.NewPolicyHandler(policyService)
	api.Get("/policy", policy.GetPolicy)
	api.Post("/policy/update", policy.UpdatePolicy)

	//queue
	queueW := queue.NewQueue(mediaItemRepo, mediaGroupRepo, historyRepo, ingestionService, generationService, schedulerService, policyService)

	// cron jobs
	sweepJob := job.NewAutoPilotSweepJob(policyRepo, mediaItemRepo, mediaGroupRepo, postRepo, groupingService, client)

	c := cron.New()
	c.AddFunc(cfg.SweepSchedule, sweepJob.Sweep)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeAnalyzeMedia, queueW.HandleAnalyzeMediaTask)
		mux.HandleFunc(queue.TaskTypeGeneratePost, queueW.HandleGeneratePostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
