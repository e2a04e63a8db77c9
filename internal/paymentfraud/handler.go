package paymentfraud

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quantpit/trading-arena/pkg/common"
	"github.com/quantpit/trading-arena/pkg/pagination"
)

// Handler handles HTTP requests for payment fingerprints
type Handler struct {
	service *Service
}

// NewHandler creates a new payment fraud handler
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

// TrackFingerprint records one payment event from the payment pipeline
func (h *Handler) TrackFingerprint(c *gin.Context) {
	var input TrackInput
	if err := c.ShouldBindJSON(&input); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.service.TrackFingerprint(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, result)
}

// GetUserFingerprints returns a user's tracked instruments
func (h *Handler) GetUserFingerprints(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	fingerprints, err := h.service.GetUserFingerprints(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, fingerprints)
}

// GetSharedStatus reports whether a user shares any payment instrument,
// with the shared instruments themselves
func (h *Handler) GetSharedStatus(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	shared, err := h.service.GetSharedPayments(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{
		"has_shared_payments": len(shared) > 0,
		"shared_payments":     shared,
	})
}

// ListSharedInstruments returns instruments used by multiple accounts
func (h *Handler) ListSharedInstruments(c *gin.Context) {
	params := pagination.ParseParams(c)
	instruments, total, err := h.service.ListSharedInstruments(c.Request.Context(), params.Limit, params.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithMeta(c, instruments, pagination.BuildMeta(params.Limit, params.Offset, total))
}
