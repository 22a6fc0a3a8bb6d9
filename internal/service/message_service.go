package service

import (
	"Amoura/internal/api/config"
	"Amoura/internal/api/dto"
	"Amoura/internal/im"
	"Amoura/internal/pkg/consts"
	"Amoura/internal/pkg/mongo"
	"Amoura/internal/pkg/redis"
	"Amoura/internal/pkg/util"
	"bytes"
	"context"
	"fmt"
	"io"
	log "log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// MediaStore 图片托管抽象，生产实现为 MinIO
type MediaStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, objectURL string) error
}

// MessageService 私信服务接口定义
type MessageService interface {
	SendMessage(ctx context.Context, senderID, receiverID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	GetMessages(ctx context.Context, userID, peerID uint64) ([]*dto.MessageDTO, error)
	GetChatList(ctx context.Context, userID uint64) ([]*dto.ChatSummaryDTO, error)
	DeleteMessage(ctx context.Context, userID uint64, messageID string) (*dto.DeleteMessageRes, error)
	MarkSeen(ctx context.Context, userID, peerID uint64) error
}

type messageServiceImpl struct {
	messageRepo mongo.MessageRepo
	userService UserService
	dispatcher  im.Dispatcher
	media       MediaStore
}

func NewMessageService(messageRepo mongo.MessageRepo, userService UserService, dispatcher im.Dispatcher, media MediaStore) MessageService {
	return &messageServiceImpl{
		messageRepo: messageRepo,
		userService: userService,
		dispatcher:  dispatcher,
		media:       media,
	}
}

// SendMessage 发送消息：校验 -> 图片落盘 -> 持久化 -> 扇出
func (s *messageServiceImpl) SendMessage(ctx context.Context, senderID, receiverID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	if senderID == receiverID {
		return nil, ErrTargetUserInvalid
	}
	if req.Text == "" && req.Image == "" && req.URL == "" {
		return nil, ErrMessageEmpty
	}

	exists, err := s.userService.ExistsById(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	imageURL := req.Image
	if strings.HasPrefix(req.Image, "data:") {
		imageURL, err = s.storeInlineImage(ctx, senderID, req.Image)
		if err != nil {
			return nil, err
		}
	}

	msg := &mongo.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       req.Text,
		Image:      imageURL,
		Type:       resolveMessageType(req, imageURL),
		URL:        req.URL,
		CreatedAt:  time.Now(),
	}

	// 首条消息判定用于附带发送者资料，竞态最坏结果只是客户端多一次查询
	first, err := s.messageRepo.ExistsBetween(ctx, senderID, receiverID)
	if err != nil {
		log.WarnContext(ctx, "exists-between check failed", "err", err)
	}

	if err := s.messageRepo.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	// 消息已确认落库，解除孤儿图片标记
	if imageURL != "" && imageURL != req.Image {
		_ = redis.HDel(ctx, consts.MediaTempKey, imageURL)
	}

	res := s.toMessageDTO(msg)
	if !first {
		if info, err := s.userService.GetUserSimpleInfoById(ctx, senderID); err == nil && info != nil {
			res.SenderName = info.Nickname
			res.SenderProfilePic = info.AvatarURL
		}
	}

	// 推给接收者以及发送者的其他在线端；回显由客户端按 ID 去重
	s.dispatcher.Publish(consts.EventNewMessage, res, receiverID, senderID)

	return res, nil
}

// GetMessages 拉取与某个对手方的全部消息，按发送时间升序
func (s *messageServiceImpl) GetMessages(ctx context.Context, userID, peerID uint64) ([]*dto.MessageDTO, error) {
	models, err := s.messageRepo.FindBetween(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.MessageDTO, 0, len(models))
	for _, m := range models {
		res = append(res, s.toMessageDTO(m))
	}
	return res, nil
}

// GetChatList 会话列表：聚合最后消息与未读数，再补充对手方资料
func (s *messageServiceImpl) GetChatList(ctx context.Context, userID uint64) ([]*dto.ChatSummaryDTO, error) {
	partners, err := s.messageRepo.ListChatPartners(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(partners))
	for _, p := range partners {
		ids = append(ids, p.PartnerID)
	}
	profiles, err := s.userService.GetUserSimpleInfoByIds(ctx, ids)
	if err != nil {
		log.WarnContext(ctx, "chat list profile lookup failed", "err", err)
		profiles = map[uint64]*dto.UserSimpleDTO{}
	}

	res := make([]*dto.ChatSummaryDTO, 0, len(partners))
	for _, p := range partners {
		d := &dto.ChatSummaryDTO{
			PartnerID:     p.PartnerID,
			LastMsgText:   p.LastMessage.Text,
			LastMsgType:   p.LastMessage.Type,
			LastSenderID:  p.LastMessage.SenderID,
			LastMessageAt: p.LastMessage.CreatedAt,
			UnseenCount:   p.UnseenCount,
		}
		if info, ok := profiles[p.PartnerID]; ok {
			d.PartnerName = info.Nickname
			d.PartnerAvatar = info.AvatarURL
		}
		res = append(res, d)
	}
	return res, nil
}

// DeleteMessage 仅原发送者可删；删除后向双方扇出各自视角的事件
func (s *messageServiceImpl) DeleteMessage(ctx context.Context, userID uint64, messageID string) (*dto.DeleteMessageRes, error) {
	msg, err := s.messageRepo.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return nil, ErrNotMessageSender
	}

	if err := s.messageRepo.DeleteMessage(ctx, messageID); err != nil {
		return nil, err
	}

	if msg.Image != "" {
		if err := s.media.Remove(ctx, msg.Image); err != nil {
			log.WarnContext(ctx, "failed to remove message image", "image", msg.Image, "err", err)
		}
	}

	s.dispatcher.Publish(consts.EventDeleteMessage,
		&im.DeleteMessageEvent{MessageID: messageID, PartnerID: msg.ReceiverID}, msg.SenderID)
	s.dispatcher.Publish(consts.EventDeleteMessage,
		&im.DeleteMessageEvent{MessageID: messageID, PartnerID: msg.SenderID}, msg.ReceiverID)

	return &dto.DeleteMessageRes{Success: true, MessageID: messageID}, nil
}

// MarkSeen 将 peer -> user 的消息置为已读，并向对方推送已读回执
func (s *messageServiceImpl) MarkSeen(ctx context.Context, userID, peerID uint64) error {
	modified, err := s.messageRepo.MarkSeenFrom(ctx, peerID, userID)
	if err != nil {
		return err
	}
	if modified > 0 {
		s.dispatcher.Publish(consts.EventMessagesSeen, &im.MessagesSeenEvent{UserID: userID}, peerID)
	}
	return nil
}

// storeInlineImage 解码内联图片，超限压缩后上传
func (s *messageServiceImpl) storeInlineImage(ctx context.Context, senderID uint64, dataURI string) (string, error) {
	data, mimeType, err := util.DecodeDataURI(dataURI)
	if err != nil || !strings.HasPrefix(mimeType, consts.MimePrefixImage) {
		return "", ErrImageInvalid
	}

	maxEdge := 1280
	if config.Cfg != nil && config.Cfg.Chat.MaxImageEdge > 0 {
		maxEdge = config.Cfg.Chat.MaxImageEdge
	}
	if scaled, newMime := util.DownscaleImage(data, maxEdge); newMime != "" {
		data, mimeType = scaled, newMime
	}

	objectName := fmt.Sprintf("chat/%d/%s%s", senderID, uuid.New().String(), util.ImageExt(mimeType))
	url, err := s.media.Upload(ctx, objectName, bytes.NewReader(data), int64(len(data)), mimeType)
	if err != nil {
		return "", err
	}

	// 登记到孤儿清理表，落库成功后移除
	meta, _ := json.Marshal(map[string]any{"created_at": time.Now().Unix(), "mime": mimeType, "sender": strconv.FormatUint(senderID, 10)})
	if err := redis.HSet(ctx, consts.MediaTempKey, url, string(meta)); err != nil {
		log.WarnContext(ctx, "failed to track uploaded image", "url", url, "err", err)
	}

	return url, nil
}

func resolveMessageType(req *dto.SendMessageReq, imageURL string) string {
	switch req.Type {
	case consts.MessageTypeText, consts.MessageTypeImage, consts.MessageTypeVideoCall:
		return req.Type
	}
	if req.URL != "" {
		return consts.MessageTypeVideoCall
	}
	if imageURL != "" {
		return consts.MessageTypeImage
	}
	return consts.MessageTypeText
}

func (s *messageServiceImpl) toMessageDTO(m *mongo.Message) *dto.MessageDTO {
	res := &dto.MessageDTO{}
	if err := copier.Copy(res, m); err != nil {
		log.Error("message dto mapping failed", "err", err)
	}
	return res
}
