package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/auth"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/config"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/database"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/genai"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/repository"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/server"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/service"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/storage"
	"github.com/rahoolsingh/THUMBNAIL-LELO/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)
	generationRepo := repository.NewGenerationRepository(db)

	var archive service.Archiver
	if cfg.S3Enabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		archive = uploader
	} else {
		local, err := storage.NewLocalStore(map[string]string{
			service.ArtifactUploads:   cfg.UploadDir,
			service.ArtifactGenerated: cfg.GeneratedDir,
		})
		if err != nil {
			log.Fatalf("local storage: %v", err)
		}
		archive = local
	}

	generator := genai.NewClient(cfg, logr)
	var enhancer service.PromptEnhancer
	if cfg.EnhancePrompt {
		enhancer = genai.NewEnhancer(cfg, logr)
	}

	generationService, err := service.NewGenerationService(cfg, logr, userRepo, generationRepo, generator, enhancer, archive)
	if err != nil {
		log.Fatalf("generation service: %v", err)
	}
	userService := service.NewUserService(cfg.FreeQuotaDefault, userRepo, purchaseRepo, generationRepo)
	purchaseService := service.NewPurchaseService("gateway", cfg.PurchaseCredits, cfg.FreeQuotaDefault, logr, purchaseRepo, userRepo)

	verifier := auth.NewVerifier(cfg.AuthJWTSecret)

	srv := server.NewServer(cfg, logr, verifier, generationService, userService, purchaseService)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}
