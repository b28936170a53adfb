package chat

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caseforge/caseforge/internal/api/middleware"
	"github.com/caseforge/caseforge/internal/domain"
	"github.com/caseforge/caseforge/internal/notify"
	"github.com/caseforge/caseforge/internal/pipeline"
	"github.com/caseforge/caseforge/internal/service"
)

// maxUploadBytes caps PRD uploads at 20 MB.
const maxUploadBytes = 20 << 20

// Handler handles chat API requests
type Handler struct {
	chatService *service.ChatService
	feed        *notify.Feed
}

// NewHandler creates a new chat handler
func NewHandler(chatService *service.ChatService, feed *notify.Feed) *Handler {
	return &Handler{chatService: chatService, feed: feed}
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/chats", h.ListChats)
	r.POST("/chats/messages", h.SendMessage)
	r.POST("/chats/:id/messages", h.SendMessage)
	r.GET("/chats/:id/messages", h.ListMessages)
	r.GET("/chats/:id/categories", h.ListCategories)
	r.GET("/categories/:id/cases", h.ListCases)
	r.PATCH("/cases/:id/status", h.SetCaseStatus)
	r.PUT("/cases/:id", h.EditCase)
	r.GET("/notifications", h.DrainNotifications)
}

// ListChats returns the caller's chat sessions.
func (h *Handler) ListChats(c *gin.Context) {
	identity := middleware.CallerIdentity(c)
	c.JSON(http.StatusOK, gin.H{"chats": h.chatService.Chats(identity.UserID)})
}

// SendMessage posts a message, with an optional PRD file attached as the
// multipart "file" part. Without a chat id a new chat is created.
func (h *Handler) SendMessage(c *gin.Context) {
	identity := middleware.CallerIdentity(c)
	chatID := c.Param("id")
	text := c.PostForm("text")

	var upload *pipeline.Upload
	if fileHeader, err := c.FormFile("file"); err == nil {
		if fileHeader.Size > maxUploadBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
			return
		}
		src, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open uploaded file"})
			return
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
			return
		}
		upload = &pipeline.Upload{
			Name: fileHeader.Filename,
			Type: fileHeader.Header.Get("Content-Type"),
			Size: fileHeader.Size,
			Data: data,
		}
	}

	if text == "" && upload == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text or file is required"})
		return
	}

	result, err := h.chatService.SendMessage(chatID, identity, text, upload)
	if err != nil {
		if err == domain.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// ListMessages returns the live transcript of a chat.
func (h *Handler) ListMessages(c *gin.Context) {
	messages, err := h.chatService.Messages(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ListCategories returns the categories generated in a chat.
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.chatService.Categories(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// ListCases returns the test cases under a category.
func (h *Handler) ListCases(c *gin.Context) {
	cases, err := h.chatService.Cases(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases})
}

// SetCaseStatus updates the review status of a test case.
func (h *Handler) SetCaseStatus(c *gin.Context) {
	var req struct {
		Status domain.TestCaseStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Status {
	case domain.StatusPending, domain.StatusApproved, domain.StatusRejected:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	if err := h.chatService.SetCaseStatus(c.Param("id"), req.Status); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "test case not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "status updated"})
}

// EditCase replaces a test case's title and content.
func (h *Handler) EditCase(c *gin.Context) {
	var req struct {
		Title   string `json:"title" binding:"required"`
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.chatService.EditCase(c.Param("id"), req.Title, req.Content); err != nil {
		if err == domain.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "test case not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "test case updated"})
}

// DrainNotifications returns and clears the caller's queued toasts.
func (h *Handler) DrainNotifications(c *gin.Context) {
	identity := middleware.CallerIdentity(c)
	c.JSON(http.StatusOK, gin.H{"notifications": h.feed.Drain(identity.UserID)})
}
