package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/vmaximov/sellhub/internal/auth"
	"github.com/vmaximov/sellhub/internal/config"
	"github.com/vmaximov/sellhub/internal/es"
	"github.com/vmaximov/sellhub/internal/handlers"
	"github.com/vmaximov/sellhub/internal/listing"
	"github.com/vmaximov/sellhub/internal/logging"
	"github.com/vmaximov/sellhub/internal/mykafka"
	"github.com/vmaximov/sellhub/internal/profile"
	"github.com/vmaximov/sellhub/internal/search"
	"github.com/vmaximov/sellhub/internal/storage"
	"github.com/vmaximov/sellhub/internal/token"
	httpserver "github.com/vmaximov/sellhub/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)
	slog.SetDefault(logger)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	var blobs storage.Storage
	var uploadDir string
	if configuration.S3_BUCKET != "" {
		blobs, err = storage.NewS3(configuration)
		if err != nil {
			log.Fatalf("s3 storage init error: %v", err)
		}
	} else {
		disk, err := storage.NewDisk(configuration.UPLOAD_DIR)
		if err != nil {
			log.Fatalf("disk storage init error: %v", err)
		}
		blobs = disk
		uploadDir = disk.Root
	}

	var prod *mykafka.Producer
	if configuration.KAFKA_ADDRESS != "" {
		prod, err = mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
		if err != nil {
			log.Fatalf("kafka init error: %v", err)
		}
	} else {
		logger.Info("KAFKA_ADDRESS not set, event publishing disabled")
	}

	var searchHandler *handlers.SearchHandler
	var indexer *search.Indexer
	if configuration.ES_URL != "" {
		esClient, err := es.NewClient(configuration)
		if err != nil {
			log.Fatalf("elasticsearch init error: %v", err)
		}
		searchHandler = &handlers.SearchHandler{ES: esClient, Index: "listing"}
		indexer = &search.Indexer{ES: esClient, Index: "listing"}
	} else {
		logger.Info("ES_URL not set, search disabled")
	}

	issuer := token.NewIssuer([]byte(configuration.JWT_SECRET))
	manager := &auth.Manager{DB: db, Tokens: issuer}
	google := auth.NewGoogleProvider(configuration)
	store := &listing.Store{DB: db, Blobs: blobs}
	profiles := &profile.Service{DB: db}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := logging.IntoContext(c.Request().Context(), logger)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})

	deps := httpserver.Deps{
		DB:          db,
		AuthManager: manager,
		AuthHandler: &handlers.AuthHandler{
			Auth:      manager,
			Google:    google,
			Producer:  prod,
			ClientURL: configuration.CLIENT_URL,
		},
		ListingHandler: &handlers.ListingHandler{Store: store, Producer: prod, Indexer: indexer},
		ProfileHandler: &handlers.ProfileHandler{Profiles: profiles},
		SearchHandler:  searchHandler,
		UploadDir:      uploadDir,
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":" + configuration.PORT,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()
	log.Printf("Server started on port %s.", configuration.PORT)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if prod != nil {
		if err := prod.Close(); err != nil {
			log.Printf("kafka close error: %v", err)
		}
	}

	log.Println("shutdown complete")
}
