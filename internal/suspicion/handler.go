package suspicion

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quantpit/trading-arena/pkg/common"
	"github.com/quantpit/trading-arena/pkg/pagination"
)

// Handler handles HTTP requests for suspicion scoring
type Handler struct {
	service *Service
}

// NewHandler creates a new suspicion handler
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

type signalRequest struct {
	UserID        uuid.UUID   `json:"user_id" binding:"required"`
	Method        ScoreMethod `json:"method" binding:"required"`
	Percentage    float64     `json:"percentage"`
	Evidence      string      `json:"evidence" binding:"required"`
	LinkedUserIDs []uuid.UUID `json:"linked_user_ids"`
	Confidence    float64     `json:"confidence"`
}

// RecordSignal applies a raw contribution. Used by detection jobs that
// pre-compute their own evidence; the catalogue weight is the default.
func (h *Handler) RecordSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	pct := req.Percentage
	if pct == 0 {
		pct = WeightFor(req.Method)
	}

	result, err := h.service.UpdateScore(c.Request.Context(), req.UserID, ScoreUpdate{
		Method:        req.Method,
		Percentage:    pct,
		Evidence:      req.Evidence,
		LinkedUserIDs: req.LinkedUserIDs,
		Confidence:    req.Confidence,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	common.SuccessResponse(c, gin.H{
		"total_score": result.TotalScore,
		"risk_level":  result.NewLevel(),
	})
}

type deviceMatchRequest struct {
	UserIDs           []uuid.UUID `json:"user_ids" binding:"required,min=2"`
	DeviceFingerprint string      `json:"device_fingerprint" binding:"required"`
}

// RecordDeviceMatch handles a shared device fingerprint detection
func (h *Handler) RecordDeviceMatch(c *gin.Context) {
	var req deviceMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.service.RecordDeviceMatch(c.Request.Context(), req.UserIDs, req.DeviceFingerprint); err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithStatus(c, http.StatusOK, nil, "device match recorded")
}

type ipMatchRequest struct {
	UserIDs          []uuid.UUID `json:"user_ids" binding:"required,min=2"`
	IPAddress        string      `json:"ip_address" binding:"required,ip"`
	BrowserSignature string      `json:"browser_signature"`
}

// RecordIPMatch handles a shared IP detection. When a browser signature is
// present the stronger combined method applies.
func (h *Handler) RecordIPMatch(c *gin.Context) {
	var req ipMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	var err error
	if req.BrowserSignature != "" {
		err = h.service.RecordIPBrowserMatch(ctx, req.UserIDs, req.IPAddress, req.BrowserSignature)
	} else {
		err = h.service.RecordIPMatch(ctx, req.UserIDs, req.IPAddress)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithStatus(c, http.StatusOK, nil, "ip match recorded")
}

type coordinatedEntryRequest struct {
	UserIDs       []uuid.UUID `json:"user_ids" binding:"required,min=2"`
	CompetitionID uuid.UUID   `json:"competition_id" binding:"required"`
	WindowSeconds int         `json:"window_seconds" binding:"required,min=1"`
}

// RecordCoordinatedEntry handles a lockstep competition entry detection
func (h *Handler) RecordCoordinatedEntry(c *gin.Context) {
	var req coordinatedEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	window := time.Duration(req.WindowSeconds) * time.Second
	if err := h.service.RecordCoordinatedEntry(c.Request.Context(), req.UserIDs, req.CompetitionID, window); err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithStatus(c, http.StatusOK, nil, "coordinated entry recorded")
}

type tradingPairRequest struct {
	UserA         uuid.UUID `json:"user_a" binding:"required"`
	UserB         uuid.UUID `json:"user_b" binding:"required"`
	SimilarityPct float64   `json:"similarity_pct"`
	MatchedTrades int       `json:"matched_trades"`
}

// RecordTradingSimilarity handles a trade-stream similarity detection
func (h *Handler) RecordTradingSimilarity(c *gin.Context) {
	var req tradingPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.service.RecordTradingSimilarity(c.Request.Context(), req.UserA, req.UserB, req.SimilarityPct); err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithStatus(c, http.StatusOK, nil, "trading similarity recorded")
}

// RecordMirrorTrading handles an opposite-side trade matching detection
func (h *Handler) RecordMirrorTrading(c *gin.Context) {
	var req tradingPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.service.RecordMirrorTrading(c.Request.Context(), req.UserA, req.UserB, req.MatchedTrades); err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithStatus(c, http.StatusOK, nil, "mirror trading recorded")
}

type rapidCreationRequest struct {
	UserIDs       []uuid.UUID `json:"user_ids" binding:"required,min=2"`
	WindowSeconds int         `json:"window_seconds" binding:"required,min=1"`
}

// RecordRapidCreation handles a signup-burst detection
func (h *Handler) RecordRapidCreation(c *gin.Context) {
	var req rapidCreationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	window := time.Duration(req.WindowSeconds) * time.Second
	if err := h.service.RecordRapidCreation(c.Request.Context(), req.UserIDs, window); err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithStatus(c, http.StatusOK, nil, "rapid creation recorded")
}

type localeMatchRequest struct {
	UserIDs  []uuid.UUID `json:"user_ids" binding:"required,min=2"`
	City     string      `json:"city"`
	Timezone string      `json:"timezone"`
	Language string      `json:"language"`
}

// RecordLocaleMatch handles the weaker geography and locale signals
func (h *Handler) RecordLocaleMatch(c *gin.Context) {
	var req localeMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	var err error
	switch {
	case req.City != "":
		err = h.service.RecordSameCity(ctx, req.UserIDs, req.City)
	case req.Timezone != "" && req.Language != "":
		err = h.service.RecordTimezoneLanguageMatch(ctx, req.UserIDs, req.Timezone, req.Language)
	default:
		common.ErrorResponse(c, http.StatusBadRequest, "city or timezone and language required")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithStatus(c, http.StatusOK, nil, "locale match recorded")
}

type deviceSwitchingRequest struct {
	UserID        uuid.UUID `json:"user_id" binding:"required"`
	DeviceCount   int       `json:"device_count" binding:"required,min=2"`
	WindowSeconds int       `json:"window_seconds" binding:"required,min=1"`
}

// RecordDeviceSwitching handles a device-hopping detection for one user
func (h *Handler) RecordDeviceSwitching(c *gin.Context) {
	var req deviceSwitchingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	window := time.Duration(req.WindowSeconds) * time.Second
	if err := h.service.RecordDeviceSwitching(c.Request.Context(), req.UserID, req.DeviceCount, window); err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithStatus(c, http.StatusOK, nil, "device switching recorded")
}

// GetScore returns a user's composite score
func (h *Handler) GetScore(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	score, err := h.service.GetScore(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, score)
}

// GetScoreHistory returns a user's applied contributions, paginated
func (h *Handler) GetScoreHistory(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	params := pagination.ParseParams(c)
	events, total, err := h.service.GetScoreHistory(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithMeta(c, events, pagination.BuildMeta(params.Limit, params.Offset, total))
}

// GetHighRiskUsers returns users in the high and critical tiers
func (h *Handler) GetHighRiskUsers(c *gin.Context) {
	scores, err := h.service.GetHighRiskUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, scores)
}

// GetUsersByRiskLevel returns users in one tier
func (h *Handler) GetUsersByRiskLevel(c *gin.Context) {
	level := RiskLevel(c.Param("level"))
	scores, err := h.service.GetUsersByRiskLevel(c.Request.Context(), level)
	if err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponse(c, scores)
}

// ResetScore clears a user's score after an admin review
func (h *Handler) ResetScore(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID")
		return
	}
	if err := h.service.ResetScore(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	common.SuccessResponseWithStatus(c, http.StatusOK, nil, "score reset")
}
