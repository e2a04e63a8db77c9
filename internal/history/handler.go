package history

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quantpit/trading-arena/pkg/common"
	"github.com/quantpit/trading-arena/pkg/pagination"
)

// Handler handles HTTP requests for fraud history
type Handler struct {
	service *Service
}

// NewHandler creates a new history handler
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

// GetUserHistory returns a user's fraud record, paginated
func (h *Handler) GetUserHistory(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	params := pagination.ParseParams(c)
	entries, total, err := h.service.ListByUser(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithMeta(c, entries, pagination.BuildMeta(params.Limit, params.Offset, total))
}

// GetUserSummary returns the aggregated fraud record for one user
func (h *Handler) GetUserSummary(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	summary, err := h.service.GetUserSummary(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, summary)
}
