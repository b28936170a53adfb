package review

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caseforge/caseforge/internal/api/middleware"
	"github.com/caseforge/caseforge/internal/domain"
	"github.com/caseforge/caseforge/internal/service"
)

// Handler handles review-workflow API requests
type Handler struct {
	reviewService *service.ReviewService
}

// NewHandler creates a new review handler
func NewHandler(reviewService *service.ReviewService) *Handler {
	return &Handler{reviewService: reviewService}
}

// RegisterRoutes registers review routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/review-sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.CloseSession)

		sessions.POST("/:id/select-category", h.SelectCategory)
		sessions.POST("/:id/back", h.Back)
		sessions.POST("/:id/initiate-export", h.InitiateExport)
		sessions.POST("/:id/choose-tool", h.ChooseTool)

		sessions.GET("/:id/jira/auth-url", h.AuthURL)
		sessions.GET("/:id/jira/status", h.ConnectionStatus)
		sessions.GET("/:id/jira/projects", h.Projects)
		sessions.POST("/:id/select-project", h.SelectProject)
		sessions.POST("/:id/select-issue-type", h.SelectIssueType)
		sessions.POST("/:id/continue", h.Continue)
		sessions.POST("/:id/export", h.Export)
		sessions.POST("/:id/continue-reviewing", h.ContinueReviewing)
	}

	r.GET("/jira/callback", h.AuthCallback)

	r.GET("/categories/:id/insights", h.CategoryInsights)
	r.GET("/chats/:id/chart", h.ChartGeometry)
}

// CreateSession opens a review session over a chat.
func (h *Handler) CreateSession(c *gin.Context) {
	var req struct {
		ChatID string `json:"chat_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := middleware.CallerIdentity(c)
	session, err := h.reviewService.CreateSession(req.ChatID, identity.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	c.JSON(http.StatusCreated, session.State())
}

// GetSession returns the live workflow state of a session.
func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.reviewService.Session(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, session.State())
}

// CloseSession discards a session.
func (h *Handler) CloseSession(c *gin.Context) {
	h.reviewService.CloseSession(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"message": "session closed"})
}

// SelectCategory picks the category to review.
func (h *Handler) SelectCategory(c *gin.Context) {
	var req struct {
		CategoryID string `json:"category_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.reviewService.SelectCategory(c.Param("id"), req.CategoryID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.respondWithSession(c)
}

// Back walks the workflow one step backwards.
func (h *Handler) Back(c *gin.Context) {
	if err := h.reviewService.Back(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	h.respondWithSession(c)
}

// InitiateExport moves from review to tool selection.
func (h *Handler) InitiateExport(c *gin.Context) {
	if err := h.reviewService.InitiateExport(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	h.respondWithSession(c)
}

// ChooseTool selects the export tool. Tools other than Jira are reported
// as coming soon and leave the step unchanged.
func (h *Handler) ChooseTool(c *gin.Context) {
	var req struct {
		Tool domain.ExportTool `json:"tool" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	moved, err := h.reviewService.ChooseTool(c.Param("id"), req.Tool)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if !moved {
		session, _ := h.reviewService.Session(c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"session": session.State(), "coming_soon": true})
		return
	}
	h.respondWithSession(c)
}

// AuthURL issues the Jira consent URL for the session.
func (h *Handler) AuthURL(c *gin.Context) {
	url, err := h.reviewService.AuthURL(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth_url": url})
}

// AuthCallback is the OAuth redirect target.
func (h *Handler) AuthCallback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing state or code"})
		return
	}

	if err := h.reviewService.HandleAuthCallback(c.Request.Context(), state, code); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	// The opener window polls the status endpoint; this tab can close.
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte("<html><body>Jira connected. You can close this window.</body></html>"))
}

// ConnectionStatus is the poll target for the connect screen.
func (h *Handler) ConnectionStatus(c *gin.Context) {
	connected, err := h.reviewService.ConnectionStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": connected})
}

// Projects lists destination projects.
func (h *Handler) Projects(c *gin.Context) {
	projects, err := h.reviewService.Projects(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.trackerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// SelectProject records the destination project and returns its issue
// types; any previously chosen issue type is cleared.
func (h *Handler) SelectProject(c *gin.Context) {
	var req struct {
		Project domain.JiraProject `json:"project" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	types, err := h.reviewService.SelectProject(c.Request.Context(), c.Param("id"), req.Project)
	if err != nil {
		h.trackerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"issue_types": types})
}

// SelectIssueType records the chosen issue type.
func (h *Handler) SelectIssueType(c *gin.Context) {
	var req struct {
		IssueType domain.JiraIssueType `json:"issue_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.reviewService.SelectIssueType(c.Param("id"), req.IssueType); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	h.respondWithSession(c)
}

// Continue advances from the project picker to the export step.
func (h *Handler) Continue(c *gin.Context) {
	if err := h.reviewService.ContinueToExport(c.Param("id")); err != nil {
		if err == domain.ErrInvalidRequest {
			c.JSON(http.StatusBadRequest, gin.H{"error": "project and issue type must be chosen first"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	h.respondWithSession(c)
}

// Export pushes the approved cases to Jira.
func (h *Handler) Export(c *gin.Context) {
	result, err := h.reviewService.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch err {
		case domain.ErrNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case domain.ErrEmptyExportSet:
			c.JSON(http.StatusBadRequest, gin.H{"error": "no approved test cases to export"})
		case domain.ErrInvalidRequest:
			c.JSON(http.StatusBadRequest, gin.H{"error": "export is not ready"})
		default:
			h.trackerError(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// ContinueReviewing returns the workflow to category selection.
func (h *Handler) ContinueReviewing(c *gin.Context) {
	if err := h.reviewService.ContinueReviewing(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	h.respondWithSession(c)
}

// CategoryInsights returns the derived views for one category.
func (h *Handler) CategoryInsights(c *gin.Context) {
	result, err := h.reviewService.CategoryInsights(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ChartGeometry returns the category donut-chart layout for a chat.
func (h *Handler) ChartGeometry(c *gin.Context) {
	slices, err := h.reviewService.ChartGeometry(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"slices": slices})
}

func (h *Handler) respondWithSession(c *gin.Context) {
	session, err := h.reviewService.Session(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, session.State())
}

// trackerError maps Jira failures onto transport responses: expired auth
// renders as 401 so the UI shows "not connected".
func (h *Handler) trackerError(c *gin.Context, err error) {
	switch err {
	case domain.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case domain.ErrUnauthorized, domain.ErrAuthExpired:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "jira not connected"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
