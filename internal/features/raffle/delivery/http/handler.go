package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/common/middleware"
	"raffle-backend/internal/features/raffle/repository"
	"raffle-backend/internal/features/raffle/service"
)

type Handler struct {
	service *service.RaffleService
}

func NewHandler(svc *service.RaffleService) *Handler {
	return &Handler{service: svc}
}

func (h *Handler) RegisterRoutes(api *gin.RouterGroup, adminIDs []int64) {
	raffle := api.Group("/raffle")
	{
		raffle.GET("/status", h.status)
		raffle.POST("/join", middleware.RequireAuth(), h.join)
		raffle.GET("/:id/fairness", h.fairness)
	}

	admin := api.Group("/admin", middleware.RequireAdmin(adminIDs))
	{
		admin.POST("/draw", h.draw)
		admin.POST("/cancel", h.cancel)
	}
}

func (h *Handler) status(c *gin.Context) {
	raffle, err := h.service.ActiveRaffle(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	if raffle == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	resp := gin.H{
		"active": true,
		"raffle": raffle,
		"prize":  raffle.WinnerPrize(),
	}
	if remaining := raffle.Threshold - raffle.TotalFund; remaining > 0 {
		resp["remaining_to_threshold"] = remaining
	}
	if raffle.ReadyAt != nil {
		resp["draw_eligible_at"] = raffle.DrawEligibleAt()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) join(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	result, err := h.service.Join(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	code := http.StatusOK
	switch result.Status {
	case service.JoinNoActiveRaffle:
		code = http.StatusNotFound
	case service.JoinInsufficientBalance:
		code = http.StatusPaymentRequired
	}
	c.JSON(code, result)
}

// fairness exposes the proof bundle of any raffle so third parties can
// recompute the draw from the revealed seed and the participant list.
func (h *Handler) fairness(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid raffle id"})
		return
	}

	raffle, err := h.service.GetRaffle(c.Request.Context(), id)
	if err == repository.ErrRaffleNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "raffle not found"})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"raffle_id":         raffle.ID,
		"status":            raffle.Status,
		"seed_hash":         raffle.SeedHash,
		"seed_revealed":     raffle.SeedRevealed,
		"participants_hash": raffle.ParticipantsHash,
		"winner_hash":       raffle.WinnerHash,
		"winner_user_id":    raffle.WinnerUserID,
		"winner_index":      raffle.WinnerIndex,
		"fairness_version":  raffle.FairnessVersion,
	})
}

type drawRequest struct {
	RaffleID int64 `json:"raffle_id"`
}

func (h *Handler) draw(c *gin.Context) {
	var req drawRequest
	// Empty body targets the active raffle.
	_ = c.ShouldBindJSON(&req)

	result, err := h.service.Draw(c.Request.Context(), req.RaffleID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	code := http.StatusOK
	if result.Status == service.DrawNotFound {
		code = http.StatusNotFound
	}
	c.JSON(code, result)
}

type cancelRequest struct {
	RaffleID int64  `json:"raffle_id" binding:"required"`
	Reason   string `json:"reason" binding:"required"`
}

func (h *Handler) cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raffle, err := h.service.Cancel(c.Request.Context(), req.RaffleID, req.Reason)
	switch err {
	case nil:
		c.JSON(http.StatusOK, gin.H{"raffle": raffle})
	case repository.ErrRaffleNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "raffle not found"})
	case repository.ErrCancelConflict:
		c.JSON(http.StatusConflict, gin.H{"error": "raffle already in a terminal state"})
	default:
		abortWithError(c, err)
	}
}

func abortWithError(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	c.JSON(appErr.Code.HTTPStatus(), gin.H{"error": appErr.Message, "code": appErr.Code})
}
