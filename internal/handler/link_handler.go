package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relink-dev/relink/internal/middleware"
	"github.com/relink-dev/relink/internal/models"
	"github.com/relink-dev/relink/internal/service"
	"github.com/relink-dev/relink/internal/shortcode"
	"go.uber.org/zap"
)

type LinkHandler struct {
	service        service.LinkService
	resolver       *service.RedirectResolver
	clickProcessor service.ClickProcessor
	baseURL        string
	logger         *zap.Logger
}

func NewLinkHandler(
	linkService service.LinkService,
	resolver *service.RedirectResolver,
	clickProcessor service.ClickProcessor,
	baseURL string,
	logger *zap.Logger,
) *LinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkHandler{
		service:        linkService,
		resolver:       resolver,
		clickProcessor: clickProcessor,
		baseURL:        baseURL,
		logger:         logger,
	}
}

type CreateLinkRequest struct {
	OrgID            string  `json:"org_id,omitempty"`
	DestinationURL   string  `json:"destination_url" binding:"required"`
	Title            *string `json:"title,omitempty"`
	CustomCode       string  `json:"custom_code,omitempty"`
	ExpiresInMinutes *int    `json:"expires_in_minutes,omitempty"`
}

type CreateLinkResponse struct {
	ID             string     `json:"id"`
	OrgID          string     `json:"org_id"`
	ShortCode      string     `json:"short_code"`
	ShortURL       string     `json:"short_url"`
	DestinationURL string     `json:"destination_url"`
	Title          *string    `json:"title,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateLink handles POST /api/links.
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	orgID := req.OrgID
	if orgID == "" {
		orgID, _ = middleware.OrgFromContext(c)
	}
	if orgID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_org",
			Message: "Organization id is required",
		})
		return
	}

	// Identity issuance is external; callers pass their user id through.
	createdBy := c.GetHeader("X-User-ID")
	if createdBy == "" {
		createdBy = "api"
	}

	input := &models.CreateLinkInput{
		OrgID:            orgID,
		DestinationURL:   req.DestinationURL,
		Title:            req.Title,
		ExpiresInMinutes: req.ExpiresInMinutes,
		CreatedBy:        createdBy,
	}
	if req.CustomCode != "" {
		input.CustomCode = &req.CustomCode
	}

	link, err := h.service.Create(c.Request.Context(), input)
	if err != nil {
		h.respondCreateError(c, err)
		return
	}

	c.JSON(http.StatusOK, CreateLinkResponse{
		ID:             link.ID,
		OrgID:          link.OrgID,
		ShortCode:      link.ShortCode,
		ShortURL:       h.baseURL + "/" + link.ShortCode,
		DestinationURL: link.DestinationURL,
		Title:          link.Title,
		ExpiresAt:      link.ExpiresAt,
		CreatedAt:      link.CreatedAt,
	})
}

func (h *LinkHandler) respondCreateError(c *gin.Context, err error) {
	var quotaErr *service.QuotaExceededError

	switch {
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "Destination must be an absolute http(s) URL",
		})
	case errors.Is(err, shortcode.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_code",
			Message: "Custom code must be 4-10 alphanumeric characters",
		})
	case errors.Is(err, shortcode.ErrReservedCode):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "reserved_code",
			Message: "Custom code collides with a reserved route",
		})
	case errors.As(err, &quotaErr):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "quota_exceeded",
			Message: quotaErr.Error(),
		})
	case errors.Is(err, service.ErrCodeConflict):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "code_in_use",
			Message: "Short code is already in use",
		})
	case errors.Is(err, service.ErrNoBillingAccount):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "no_billing_account",
			Message: "Organization has no billing account",
		})
	case errors.Is(err, service.ErrGenerationExhausted):
		h.logger.Error("short code generation exhausted", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "generation_exhausted",
			Message: "Could not allocate a short code",
		})
	default:
		h.logger.Error("failed to create link", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to create link",
		})
	}
}

// Redirect handles GET /:code. 404 covers both absent and disabled links;
// 410 marks expired ones.
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	visit := &models.ClickEvent{
		Referrer:  c.Request.Referer(),
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
		Country:   c.GetHeader("CF-IPCountry"),
	}

	destination, err := h.resolver.Resolve(c.Request.Context(), code, visit)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Link not found",
			})
		case errors.Is(err, service.ErrExpired):
			c.JSON(http.StatusGone, ErrorResponse{
				Error:   "expired",
				Message: "Link has expired",
			})
		default:
			h.logger.Error("redirect failed", zap.String("code", code), zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to resolve link",
			})
		}
		return
	}

	c.Redirect(http.StatusMovedPermanently, destination)
}

// DeleteLink handles DELETE /api/links/:id (soft delete).
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	id := c.Param("id")

	err := h.service.SoftDelete(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Link not found",
			})
			return
		}
		h.logger.Error("failed to delete link", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to delete link",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Link deleted"})
}

// GetStats handles GET /api/links/:code/stats.
func (h *LinkHandler) GetStats(c *gin.Context) {
	code := c.Param("code")

	stats, err := h.clickProcessor.GetStats(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("failed to get stats", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Link not found",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetDailyStats handles GET /api/links/:code/stats/daily.
func (h *LinkHandler) GetDailyStats(c *gin.Context) {
	code := c.Param("code")
	days := 7
	if d := c.Query("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed >= 1 && parsed <= 90 {
			days = parsed
		}
	}

	stats, err := h.clickProcessor.GetDailyStats(c.Request.Context(), code, days)
	if err != nil {
		h.logger.Warn("failed to get daily stats", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Link not found",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
