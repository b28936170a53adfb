package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/caseforge/caseforge/internal/api"
	"github.com/caseforge/caseforge/internal/config"
	"github.com/caseforge/caseforge/internal/docparse"
	"github.com/caseforge/caseforge/internal/jira"
	"github.com/caseforge/caseforge/internal/llm"
	"github.com/caseforge/caseforge/internal/notify"
	"github.com/caseforge/caseforge/internal/pipeline"
	"github.com/caseforge/caseforge/internal/repository"
	"github.com/caseforge/caseforge/internal/service"
	"github.com/caseforge/caseforge/internal/store"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize the archive database (the live store is in-memory)
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	archive := repository.NewArchiveRepository(db)

	// Live entity store and notification feed
	entityStore := store.New()
	feed := notify.NewFeed(logger)

	// External collaborators
	parser := docparse.NewParser()

	generator, err := llm.NewGenerator(context.Background(), cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		logger.Fatal("Failed to initialize generator", zap.Error(err))
	}

	oauthCfg := jira.NewOAuth(jira.OAuthConfig{
		ClientID:     cfg.Jira.ClientID,
		ClientSecret: cfg.Jira.ClientSecret,
		RedirectURL:  cfg.Jira.RedirectURL,
	})

	// Initialize services
	pl := pipeline.New(entityStore, parser, generator, feed, logger)

	chatService := service.NewChatService(entityStore, pl, archive, logger)

	reviewService := service.NewReviewService(
		entityStore,
		oauthCfg,
		func(token *oauth2.Token) service.Tracker {
			return jira.NewClient(oauthCfg, token)
		},
		feed,
		logger,
	)

	// Setup router
	router := api.SetupRouter(chatService, reviewService, feed, archive, api.RouterConfig{
		APIKey:       cfg.Admin.APIKey,
		AllowOrigins: []string{"*"},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting CaseForge server",
			zap.String("address", cfg.Address()),
			zap.String("base_url", cfg.Server.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
