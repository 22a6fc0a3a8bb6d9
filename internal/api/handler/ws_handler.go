package handler

import (
	"Amoura/internal/api/config"
	"Amoura/internal/im"
	"Amoura/internal/pkg/consts"
	"Amoura/internal/pkg/redis"
	"Amoura/internal/pkg/security"
	"Amoura/internal/service"
	"context"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	registry       im.Registry
	dispatcher     im.Dispatcher
	messageService service.MessageService
}

func NewWsHandler(registry im.Registry, dispatcher im.Dispatcher, messageService service.MessageService) *WsHandler {
	return &WsHandler{
		registry:       registry,
		dispatcher:     dispatcher,
		messageService: messageService,
	}
}

// Connect 实时通道入口：连接期鉴权 -> 升级 -> 注册在线表 -> 事件循环
func (s *WsHandler) Connect(c *gin.Context) {
	// 鉴权先于一切事件处理，失败则拒绝连接
	token := c.Query("token")
	if token == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	claims, err := security.ValidateToken(token)
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if signature, err := security.ExtractSignature(token); err == nil {
		if banned, _ := redis.GetValue(c.Request.Context(), consts.TokenBlacklistKey+signature); banned != "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
	}
	userID := claims.UserID

	// 升级 Websocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}

	buffer := 64
	if config.Cfg != nil && config.Cfg.Chat.SessionBuffer > 0 {
		buffer = config.Cfg.Chat.SessionBuffer
	}
	session := im.NewSession(conn, userID, buffer, s.handleInbound)

	s.registry.Register(userID, session)
	s.dispatcher.Broadcast(consts.EventOnlineUsers, s.registry.OnlineIDs())
	log.Info("用户 WS 连接已建立", "userID", userID)

	session.Run()

	s.registry.Unregister(userID, session)
	s.dispatcher.Broadcast(consts.EventOnlineUsers, s.registry.OnlineIDs())
	log.Info("用户 WS 连接已断开", "userID", userID)
}

// handleInbound 处理客户端上行事件
func (s *WsHandler) handleInbound(sess *im.Session, env *im.Envelope) {
	switch env.Event {
	case consts.EventTyping:
		var in im.TypingInbound
		if err := json.Unmarshal(env.Data, &in); err != nil || in.To == 0 {
			return
		}
		s.dispatcher.Publish(consts.EventTyping,
			&im.TypingEvent{UserID: sess.UserID(), IsTyping: in.IsTyping}, in.To)

	case consts.EventMarkSeen:
		var in im.MarkSeenInbound
		if err := json.Unmarshal(env.Data, &in); err != nil || in.PeerID == 0 {
			return
		}
		if err := s.messageService.MarkSeen(context.Background(), sess.UserID(), in.PeerID); err != nil {
			log.Warn("mark seen via realtime channel failed", "userID", sess.UserID(), "peerID", in.PeerID, "err", err)
		}

	default:
		log.Warn("unknown realtime event", "userID", sess.UserID(), "event", env.Event)
	}
}
