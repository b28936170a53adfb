package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caseforge/caseforge/internal/api/chat"
	"github.com/caseforge/caseforge/internal/api/middleware"
	"github.com/caseforge/caseforge/internal/api/review"
	"github.com/caseforge/caseforge/internal/notify"
	"github.com/caseforge/caseforge/internal/repository"
	"github.com/caseforge/caseforge/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(
	chatService *service.ChatService,
	reviewService *service.ReviewService,
	feed *notify.Feed,
	archive *repository.ArchiveRepository,
	cfg RouterConfig,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// User-facing API, with guest identities minted on first contact
	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Identity())

	chatHandler := chat.NewHandler(chatService, feed)
	chatHandler.RegisterRoutes(apiGroup)

	reviewHandler := review.NewHandler(reviewService)
	reviewHandler.RegisterRoutes(apiGroup)

	// Admin API (requires API key)
	adminGroup := r.Group("/api/admin")
	adminGroup.Use(middleware.AdminKey(cfg.APIKey))
	adminGroup.GET("/stats", func(c *gin.Context) {
		chats, err := archive.CountChats()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"total_chats": chats})
	})

	return r
}
