package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fitcoach/plan-engine/internal/api"
	"fitcoach/plan-engine/internal/catalog"
	"fitcoach/plan-engine/internal/config"
	"fitcoach/plan-engine/internal/llm"
	"fitcoach/plan-engine/internal/planstore"
	"fitcoach/plan-engine/internal/repository/mongo"
	"fitcoach/plan-engine/internal/service"
	"fitcoach/plan-engine/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("Starting Plan Engine Server...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	log.Println("Configuration loaded.")

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to MongoDB: %v", err)
	}
	defer func() {
		log.Println("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Println("Database connection established.")

	// --- Ensure Indexes ---
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		mongo.EnsureConversationIndexes(ctx, appDB.Collection("conversations"))
		mongo.EnsureModelCacheIndexes(ctx, appDB.Collection("model_cache"))
		log.Println("Index creation process completed.")
	}()

	// --- Initialize Repositories ---
	log.Println("Initializing repositories...")
	conversationRepo := mongo.NewMongoConversationRepository(appDB)
	cacheRepo := mongo.NewMongoModelCacheRepository(appDB)

	// --- Initialize Model Invoker ---
	var invoker llm.Invoker = llm.NewClient(
		cfg.Model.BaseURL,
		cfg.Model.APIKey,
		cfg.Model.Name,
		llm.WithHTTPClient(&http.Client{Timeout: cfg.Model.Timeout}),
	)
	if cfg.Cache.Enabled {
		invoker = llm.NewCachedInvoker(invoker, cacheRepo, llm.TTLConfig{
			Chat:     cfg.Cache.ChatTTL,
			Artifact: cfg.Cache.ArtifactTTL,
		})
		log.Println("Model response cache enabled.")
	}

	// --- Initialize Remote Clients ---
	catalogClient := catalog.NewHTTPClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey)
	planStoreClient := planstore.NewHTTPClient(cfg.PlanStore.BaseURL, cfg.PlanStore.APIKey)

	// --- Initialize Plan Archive (optional) ---
	var archive storage.PlanArchive
	if cfg.Archive.BucketName != "" {
		archive, err = storage.NewS3Archive(cfg.Archive)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize S3 plan archive: %v", err)
		}
	} else {
		log.Println("Plan archive disabled (no bucket configured).")
	}

	// --- Initialize Services ---
	log.Println("Initializing services...")
	extractor := service.NewRequirementExtractor(invoker)
	synthesizer := service.NewPlanSynthesizer(invoker)
	classifier := service.NewIntentClassifier(invoker)
	reconciler := service.NewExerciseReconciler(catalogClient)
	persister := service.NewPlanPersister(catalogClient, planStoreClient)
	orchestrator := service.NewConversationOrchestrator(
		conversationRepo, extractor, synthesizer, classifier, reconciler, persister, archive,
	)

	// --- Initialize Gin Engine ---
	// gin.SetMode(gin.ReleaseMode) // Uncomment for production
	router := gin.Default() // Includes Logger and Recovery middleware

	// --- Setup Routes ---
	log.Println("Setting up API routes...")
	api.SetupRoutes(router, cfg.JWT.Secret, orchestrator)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // Turns can wait on model synthesis
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("FATAL: Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
