package api

import (
	"Amoura/internal/api/middleware"
	"Amoura/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		// 实时通道在连接期自行鉴权
		apiGroup.GET("/im", group.WSHandler.Connect)

		userGroup := apiGroup.Group("/user")
		{
			userGroup.Use(middleware.AuthMiddleware())
			{
				userGroup.GET("/:user_id/simple", group.UserHandler.GetUserSimpleInfoById)
			}
		}

		messageGroup := apiGroup.Group("/messages")
		{
			messageGroup.Use(middleware.AuthMiddleware())
			{
				messageGroup.POST("/send/:peer_id", group.MessageHandler.SendMessage)
				messageGroup.GET("/chats", group.MessageHandler.GetChats)
				messageGroup.GET("/:peer_id", group.MessageHandler.GetMessages)
				messageGroup.DELETE("/delete/:message_id", group.MessageHandler.DeleteMessage)
			}
		}
	}

	return r
}
