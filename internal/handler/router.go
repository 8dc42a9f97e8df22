package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Chat *ChatHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/chat", deps.Chat.Chat)
	api.GET("/plan", deps.Chat.Plan)
	api.GET("/status", deps.Chat.Status)
}
