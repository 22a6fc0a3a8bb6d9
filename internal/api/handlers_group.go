package api

import "Amoura/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	MessageHandler *handler.MessageHandler
	UserHandler    *handler.UserHandler
	WSHandler      *handler.WsHandler
}
