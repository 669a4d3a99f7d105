package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relink-dev/relink/internal/repository"
	"github.com/relink-dev/relink/internal/service"
	"go.uber.org/zap"
)

// OrgHandler covers the organization-level operations: bulk deletion,
// link migration between organizations, and the admin counter reset.
type OrgHandler struct {
	service service.LinkService
	billing repository.BillingRepository
	logger  *zap.Logger
}

func NewOrgHandler(linkService service.LinkService, billing repository.BillingRepository, logger *zap.Logger) *OrgHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrgHandler{
		service: linkService,
		billing: billing,
		logger:  logger,
	}
}

type MigrateLinksRequest struct {
	LinkIDs     []string `json:"link_ids" binding:"required"`
	TargetOrgID string   `json:"target_org_id" binding:"required"`
}

// MigrateLinks handles POST /api/links/migrate.
func (h *OrgHandler) MigrateLinks(c *gin.Context) {
	var req MigrateLinksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	moved, err := h.service.Migrate(c.Request.Context(), req.LinkIDs, req.TargetOrgID)
	if err != nil {
		var capacityErr *service.MigrationCapacityError

		switch {
		case errors.As(err, &capacityErr):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "capacity_exceeded",
				Message: capacityErr.Error(),
			})
		case errors.Is(err, repository.ErrOrganizationNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "org_not_found",
				Message: "Target organization not found",
			})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "One or more links not found",
			})
		case errors.Is(err, service.ErrNoBillingAccount):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "no_billing_account",
				Message: "Target organization has no billing account",
			})
		default:
			h.logger.Error("failed to migrate links", zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to migrate links",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"migrated": moved})
}

// DeleteOrg handles DELETE /api/orgs/:id: removes all of the organization's
// links (edge first, rows second).
func (h *OrgHandler) DeleteOrg(c *gin.Context) {
	orgID := c.Param("id")

	deleted, err := h.service.DeleteForOrg(c.Request.Context(), orgID)
	if err != nil {
		if errors.Is(err, repository.ErrOrganizationNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "org_not_found",
				Message: "Organization not found",
			})
			return
		}
		h.logger.Error("failed to delete org links", zap.String("org_id", orgID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to delete organization links",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

type ResetCounterRequest struct {
	Month string `json:"month,omitempty"` // "YYYY-MM", defaults to current
}

// ResetCounter handles POST /api/billing/:id/counters/reset. Counters only
// reset through this explicit admin operation.
func (h *OrgHandler) ResetCounter(c *gin.Context) {
	accountID := c.Param("id")

	var req ResetCounterRequest
	// Body is optional; an empty body means the current month.
	_ = c.ShouldBindJSON(&req)
	month := req.Month
	if month == "" {
		month = service.MonthKey(time.Now())
	}

	if _, err := h.billing.GetBillingAccount(c.Request.Context(), accountID); err != nil {
		if errors.Is(err, repository.ErrBillingAccountNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "account_not_found",
				Message: "Billing account not found",
			})
			return
		}
		h.logger.Error("failed to load billing account", zap.String("account_id", accountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to reset counter",
		})
		return
	}

	if err := h.billing.ResetMonthlyUsage(c.Request.Context(), accountID, month); err != nil {
		h.logger.Error("failed to reset counter", zap.String("account_id", accountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to reset counter",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"account_id": accountID, "month": month})
}
