package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"raffle-backend/internal/common/config"
	"raffle-backend/internal/common/middleware"
	rafflehttp "raffle-backend/internal/features/raffle/delivery/http"
	wallethttp "raffle-backend/internal/features/wallet/delivery/http"
)

// NewRouter assembles the gin engine: CORS, request logging, Telegram auth
// and the feature route groups.
func NewRouter(cfg *config.Config, raffleHandler *rafflehttp.Handler, walletHandler *wallethttp.Handler) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "init_data", "X-Request-ID")
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", middleware.TelegramInitData(cfg.Telegram.BotToken))
	raffleHandler.RegisterRoutes(api, cfg.Telegram.AdminIDs)
	walletHandler.RegisterRoutes(api)

	return router
}
