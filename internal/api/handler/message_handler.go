package handler

import (
	"Amoura/internal/api/dto"
	"Amoura/internal/pkg/response"
	"Amoura/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	messageService service.MessageService
}

func NewMessageHandler(messageService service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// SendMessage 发送消息接口
func (s *MessageHandler) SendMessage(c *gin.Context) {
	peerID, err := strconv.ParseUint(c.Param("peer_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	// 从 Context 中获取中间件解析出的当前用户 ID
	senderID := c.GetUint64("user_id")

	res, err := s.messageService.SendMessage(c.Request.Context(), senderID, peerID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetMessages 获取与某个对手方的历史消息
func (s *MessageHandler) GetMessages(c *gin.Context) {
	peerID, err := strconv.ParseUint(c.Param("peer_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	res, err := s.messageService.GetMessages(c.Request.Context(), userID, peerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetChats 获取会话列表
func (s *MessageHandler) GetChats(c *gin.Context) {
	userID := c.GetUint64("user_id")

	res, err := s.messageService.GetChatList(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// DeleteMessage 删除消息，仅原发送者可操作
func (s *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID := c.Param("message_id")
	if messageID == "" {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64("user_id")

	res, err := s.messageService.DeleteMessage(c.Request.Context(), userID, messageID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
