package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/common/middleware"
	"raffle-backend/internal/features/wallet/repository"
)

type Handler struct {
	ledger         repository.Ledger
	initialBalance int64
}

func NewHandler(ledger repository.Ledger, initialBalance int64) *Handler {
	return &Handler{ledger: ledger, initialBalance: initialBalance}
}

func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/wallet/balance", middleware.RequireAuth(), h.balance)
}

func (h *Handler) balance(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	ctx := c.Request.Context()
	if err := h.ledger.EnsureUser(ctx, userID, h.initialBalance); err != nil {
		abortWithError(c, err)
		return
	}
	balance, err := h.ledger.GetBalance(ctx, userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": balance})
}

func abortWithError(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	c.JSON(appErr.Code.HTTPStatus(), gin.H{"error": appErr.Message, "code": appErr.Code})
}
