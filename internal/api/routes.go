package api

import (
	"net/http"

	"dmcore-backend/internal/auth"
	"dmcore-backend/internal/chat"
	"dmcore-backend/internal/config"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/middleware"
	"dmcore-backend/internal/realtime"
	"dmcore-backend/internal/storage"

	"github.com/gin-gonic/gin"
)

type Deps struct {
	Config     *config.Config
	Services   *chat.Services
	Registry   *realtime.Registry
	Media      storage.MediaStore
	JWTManager *auth.JWTManager
	Log        *logger.Logger
}

func SetupRoutes(router *gin.Engine, d Deps) {
	chatHandler := NewChatHandler(d.Services)
	snapHandler := NewSnapHandler(d.Services.Snaps)
	uploadHandler := NewUploadHandler(d.Media, d.Log)
	gateway := NewGateway(d.Registry, d.Services.Delivery, d.Services.Typing, d.JWTManager, d.Config.GetCORSOrigins(), d.Log)

	router.Use(middleware.CORSSpecific(d.Config.GetCORSOrigins()))
	router.Use(middleware.RequestLogger(d.Log.With("component", "http")))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"service":     "dmcore-backend",
			"connections": d.Registry.Count(),
		})
	})

	if local, ok := d.Media.(*storage.LocalStorage); ok {
		router.GET("/media/:ref", ServeLocalMedia(local))
	}

	v1 := router.Group("/api/v1")
	{
		// Authenticates itself before upgrading.
		v1.GET("/ws", gateway.Handle)

		protected := v1.Group("/")
		protected.Use(middleware.AuthMiddleware(d.JWTManager))
		{
			rooms := protected.Group("/rooms")
			{
				rooms.GET("", chatHandler.ListRooms)
				rooms.POST("", chatHandler.OpenRoom)
				rooms.GET("/:id/messages", chatHandler.GetMessages)
				rooms.POST("/:id/messages", chatHandler.SendMessage)
				rooms.POST("/:id/read", chatHandler.MarkRead)
				rooms.PUT("/:id/block", chatHandler.BlockRoom)
				rooms.DELETE("/:id/block", chatHandler.UnblockRoom)
			}

			snaps := protected.Group("/snaps")
			{
				snaps.POST("", snapHandler.SendSnap)
				snaps.POST("/:id/view", snapHandler.ViewSnap)
			}

			protected.POST("/media", uploadHandler.UploadMedia)
			protected.GET("/chat/unread-count", chatHandler.GetUnreadCount)
		}
	}
}
