package alerts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quantpit/trading-arena/pkg/common"
	"github.com/quantpit/trading-arena/pkg/pagination"
)

// Handler handles HTTP requests for fraud alerts
type Handler struct {
	service *Service
}

// NewHandler creates a new alerts handler
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

// CreateAlert records a detection from an internal detection job
func (h *Handler) CreateAlert(c *gin.Context) {
	var input CreateAlertInput
	if err := c.ShouldBindJSON(&input); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	alert, merged, err := h.service.CreateOrUpdateAlert(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	if merged {
		common.SuccessResponseWithStatus(c, http.StatusOK, alert, "detection merged into existing alert")
		return
	}
	common.CreatedResponse(c, alert)
}

// GetAlert returns one alert
func (h *Handler) GetAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid alert ID")
		return
	}

	alert, err := h.service.GetAlert(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, alert)
}

// ListAlerts returns alerts, optionally filtered by ?status=
func (h *Handler) ListAlerts(c *gin.Context) {
	params := pagination.ParseParams(c)
	status := AlertStatus(c.Query("status"))

	alerts, total, err := h.service.ListAlerts(c.Request.Context(), status, params.Limit, params.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithMeta(c, alerts, pagination.BuildMeta(params.Limit, params.Offset, total))
}

// ListUserAlerts returns alerts implicating one user
func (h *Handler) ListUserAlerts(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	params := pagination.ParseParams(c)
	alerts, total, err := h.service.ListAlertsByUser(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithMeta(c, alerts, pagination.BuildMeta(params.Limit, params.Offset, total))
}

type statusRequest struct {
	Status  AlertStatus `json:"status" binding:"required"`
	AdminID *uuid.UUID  `json:"admin_id"`
	Notes   string      `json:"notes"`
}

// UpdateAlertStatus transitions the alert lifecycle
func (h *Handler) UpdateAlertStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid alert ID")
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	alert, err := h.service.TransitionStatus(c.Request.Context(), id, req.Status, req.AdminID, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, alert)
}
