package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"raffle-backend/internal/common/logger"
)

const userKey = "user"

// TelegramInitData validates the Telegram Mini App init data carried in the
// init_data header and attaches the authenticated user to the context. This
// is how the presentation layer learns which user id to admit.
func TelegramInitData(botToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		initDataQuery := c.GetHeader("init_data")
		if initDataQuery == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Telegram Init Data required"})
			return
		}

		if botToken == "" {
			logger.Error().Msg("BOT_TOKEN is not configured")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error"})
			return
		}

		// Expiration is enforced by Telegram link lifetime; skip here.
		if err := initdata.Validate(initDataQuery, botToken, time.Duration(0)); err != nil {
			logger.Debug().Err(err).Msg("init data validation failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid init data"})
			return
		}

		parsed, err := initdata.Parse(initDataQuery)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to parse init data"})
			return
		}

		c.Set(userKey, parsed.User)
		c.Next()
	}
}

// UserID extracts the authenticated Telegram user id from the context.
func UserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(userKey)
	if !exists {
		return 0, false
	}
	user, ok := v.(initdata.User)
	if !ok {
		return 0, false
	}
	return user.ID, true
}
