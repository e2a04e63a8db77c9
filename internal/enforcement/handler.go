package enforcement

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quantpit/trading-arena/pkg/common"
	"github.com/quantpit/trading-arena/pkg/pagination"
)

// Handler handles HTTP requests for enforcement
type Handler struct {
	service *Service
}

// NewHandler creates a new enforcement handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func respondError(c *gin.Context, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.AppErrorResponse(c, appErr)
		return
	}
	common.ErrorResponse(c, http.StatusInternalServerError, "internal server error")
}

// GetPolicy returns the effective enforcement policy
func (h *Handler) GetPolicy(c *gin.Context) {
	settings, err := h.service.GetPolicySettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, settings)
}

type policyRequest struct {
	AutoSuspendEnabled   bool       `json:"auto_suspend_enabled"`
	AutoSuspendThreshold float64    `json:"auto_suspend_threshold"`
	AdminID              *uuid.UUID `json:"admin_id"`
}

// UpdatePolicy stores a new enforcement policy
func (h *Handler) UpdatePolicy(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	settings, err := h.service.UpdatePolicySettings(c.Request.Context(), &PolicySettings{
		AutoSuspendEnabled:   req.AutoSuspendEnabled,
		AutoSuspendThreshold: req.AutoSuspendThreshold,
		UpdatedBy:            req.AdminID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, settings)
}

// GetRestrictionStatus reports whether a user is currently restricted
func (h *Handler) GetRestrictionStatus(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	restricted, restriction, err := h.service.GetRestrictionStatus(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{
		"restricted":  restricted,
		"restriction": restriction,
	})
}

// ListRestrictions returns active restrictions, paginated
func (h *Handler) ListRestrictions(c *gin.Context) {
	params := pagination.ParseParams(c)
	restrictions, total, err := h.service.ListActiveRestrictions(c.Request.Context(), params.Limit, params.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithMeta(c, restrictions, pagination.BuildMeta(params.Limit, params.Offset, total))
}

type restrictionRequest struct {
	UserID  uuid.UUID       `json:"user_id" binding:"required"`
	Type    RestrictionType `json:"type" binding:"required"`
	Reason  string          `json:"reason" binding:"required"`
	AdminID uuid.UUID       `json:"admin_id" binding:"required"`
	Days    int             `json:"days"`
}

// CreateRestriction applies an admin-initiated restriction
func (h *Handler) CreateRestriction(c *gin.Context) {
	var req restrictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	restriction, err := h.service.ApplyManualRestriction(
		c.Request.Context(), req.UserID, req.Type, req.Reason, req.AdminID, req.Days)
	if err != nil {
		respondError(c, err)
		return
	}
	common.CreatedResponse(c, restriction)
}

type liftRequest struct {
	AdminID uuid.UUID `json:"admin_id" binding:"required"`
	Reason  string    `json:"reason"`
}

// LiftRestriction deactivates a restriction
func (h *Handler) LiftRestriction(c *gin.Context) {
	restrictionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid restriction ID")
		return
	}

	var req liftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	restriction, err := h.service.LiftRestriction(c.Request.Context(), restrictionID, req.AdminID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, restriction)
}

// ReevaluateUser re-runs the enforcement decision for one user
func (h *Handler) ReevaluateUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	if err := h.service.ReevaluateUser(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithStatus(c, http.StatusOK, nil, "user re-evaluated")
}
