package chat

import (
	"Amoura/internal/client/cipher"
	"Amoura/internal/pkg/consts"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	log "log/slog"
)

// typingIdle 停止输入判定的静默窗口
const typingIdle = time.Second

// API 服务端 REST 面
type API interface {
	SendMessage(ctx context.Context, peerID uint64, req *SendMessageReq) (*Message, error)
	GetMessages(ctx context.Context, peerID uint64) ([]*Message, error)
	GetChats(ctx context.Context) ([]*SummaryRow, error)
	DeleteMessage(ctx context.Context, messageID string) error
	GetUserSimple(ctx context.Context, userID uint64) (*Profile, error)
}

// Bus 实时事件通道
type Bus interface {
	Handle(event string, fn func(data json.RawMessage))
	Emit(event string, data any) error
	Listen()
}

// ConversationCache 本地会话持久层
type ConversationCache interface {
	Load() (map[uint64][]*Message, error)
	Save(conversations map[uint64][]*Message) error
}

// Store 客户端消息状态机。所有变更串行化在一把锁下，
// 实时事件、REST 回包与用户操作可以从任意 goroutine 进入。
type Store struct {
	selfID     uint64
	passphrase string

	api   API
	bus   Bus
	cache ConversationCache

	mu            sync.Mutex
	conversations map[uint64][]*Message
	summaries     []*ChatSummary
	openPeer      uint64
	typing        map[uint64]bool
	online        []uint64
	subscribed    bool

	typingMu    sync.Mutex
	typingTimer *time.Timer
	typingPeer  uint64

	// OnChange 状态变更后的刷新钩子，在锁外回调
	OnChange func()
}

func NewStore(selfID uint64, passphrase string, api API, bus Bus, cache ConversationCache) *Store {
	return &Store{
		selfID:        selfID,
		passphrase:    passphrase,
		api:           api,
		bus:           bus,
		cache:         cache,
		conversations: make(map[uint64][]*Message),
		typing:        make(map[uint64]bool),
	}
}

// Bootstrap 用本地缓存预热会话状态
func (s *Store) Bootstrap() {
	cached, err := s.cache.Load()
	if err != nil {
		log.Warn("加载本地会话缓存失败", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for peer, list := range cached {
		s.conversations[peer] = list
	}
}

// Subscribe 注册实时事件并启动监听，重复调用是空操作
func (s *Store) Subscribe() {
	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return
	}
	s.subscribed = true
	s.mu.Unlock()

	s.bus.Handle(consts.EventNewMessage, s.handleNewMessage)
	s.bus.Handle(consts.EventDeleteMessage, s.handleDeleteMessage)
	s.bus.Handle(consts.EventTyping, s.handleTyping)
	s.bus.Handle(consts.EventOnlineUsers, s.handleOnlineUsers)
	s.bus.Handle(consts.EventMessagesSeen, s.handleMessagesSeen)
	s.bus.Listen()
}

// OpenConversation 打开会话：本地缓存先行，服务端结果合并后覆盖，
// 同时上报已读并清零未读。服务端不可达时退化为纯缓存视图。
func (s *Store) OpenConversation(ctx context.Context, peerID uint64) ([]*Message, error) {
	s.mu.Lock()
	s.openPeer = peerID
	cached := s.conversations[peerID]
	s.mu.Unlock()

	server, err := s.api.GetMessages(ctx, peerID)
	if err != nil {
		log.Warn("拉取历史消息失败，使用本地缓存", "peer", peerID, "error", err)
		return snapshot(cached), err
	}

	s.mu.Lock()
	merged := Merge(s.conversations[peerID], server)
	for _, m := range merged {
		s.decryptInto(m)
	}
	s.conversations[peerID] = merged
	s.zeroUnseen(peerID)
	s.persist()
	out := snapshot(merged)
	s.mu.Unlock()

	s.emitMarkSeen(peerID)
	s.notify()
	return out, nil
}

// CloseConversation 离开当前会话，此后该会话的新消息重新累计未读
func (s *Store) CloseConversation() {
	s.stopTyping()
	s.mu.Lock()
	s.openPeer = 0
	s.mu.Unlock()
}

// SendText 发送文本消息。明文先本地加密，加密失败直接放弃，
// 绝不以明文上行。乐观条目立即可见，服务端确认后原位替换。
func (s *Store) SendText(ctx context.Context, peerID uint64, plaintext string) (*Message, error) {
	ciphertext, err := cipher.Encrypt(plaintext, s.passphrase)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, peerID, &SendMessageReq{Text: ciphertext, Type: TypeText}, plaintext)
}

// SendImage 发送图片消息，image 为 data URI，由服务端转存
func (s *Store) SendImage(ctx context.Context, peerID uint64, dataURI string) (*Message, error) {
	return s.send(ctx, peerID, &SendMessageReq{Image: dataURI, Type: TypeImage}, "")
}

func (s *Store) send(ctx context.Context, peerID uint64, req *SendMessageReq, plaintext string) (*Message, error) {
	s.stopTyping()

	temp := &Message{
		LocalID:    TempIDPrefix + newLocalID(),
		SenderID:   s.selfID,
		ReceiverID: peerID,
		Text:       req.Text,
		Plaintext:  plaintext,
		Image:      req.Image,
		Type:       req.Type,
		URL:        req.URL,
		CreatedAt:  time.Now(),
	}

	s.mu.Lock()
	s.conversations[peerID] = append(s.conversations[peerID], temp)
	s.refreshSummary(peerID)
	s.persist()
	s.mu.Unlock()
	s.notify()

	confirmed, err := s.api.SendMessage(ctx, peerID, req)
	if err != nil {
		// 回滚只摘除这一条乐观条目，期间到达的其他消息保持不动
		s.mu.Lock()
		s.removeByKey(peerID, temp.LocalID)
		s.refreshSummary(peerID)
		s.persist()
		s.mu.Unlock()
		s.notify()
		return nil, err
	}

	confirmed.Plaintext = plaintext
	s.decryptInto(confirmed)

	s.mu.Lock()
	list := s.conversations[peerID]
	if idx := indexByKey(list, confirmed.ID); idx >= 0 {
		// 实时事件抢先送达过权威副本，直接丢弃乐观条目
		if list[idx].Plaintext == "" {
			list[idx].Plaintext = plaintext
		}
		s.removeByKey(peerID, temp.LocalID)
	} else if idx := indexByKey(list, temp.LocalID); idx >= 0 {
		list[idx] = confirmed
	} else {
		s.conversations[peerID] = append(list, confirmed)
	}
	s.refreshSummary(peerID)
	s.persist()
	s.mu.Unlock()
	s.notify()

	return confirmed, nil
}

// DeleteMessage 删除自己发出的消息，本地立即摘除，
// 广播事件随后到达时按幂等处理
func (s *Store) DeleteMessage(ctx context.Context, peerID uint64, messageID string) error {
	if err := s.api.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	s.mu.Lock()
	s.dropMessage(peerID, messageID)
	s.persist()
	s.mu.Unlock()
	s.notify()
	return nil
}

// LoadChats 拉取会话列表并解密预览，当前打开的会话未读强制为零
func (s *Store) LoadChats(ctx context.Context) ([]*ChatSummary, error) {
	rows, err := s.api.GetChats(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.summaries = make([]*ChatSummary, 0, len(rows))
	for _, row := range rows {
		sum := &ChatSummary{
			PartnerID:     row.PartnerID,
			PartnerName:   row.PartnerName,
			PartnerAvatar: row.PartnerAvatar,
			LastMessage:   s.previewText(row.LastMsgText, row.LastMsgType),
			LastMsgType:   row.LastMsgType,
			LastSenderID:  row.LastSenderID,
			LastMessageAt: row.LastMessageAt,
			UnseenCount:   row.UnseenCount,
		}
		if sum.PartnerID == s.openPeer {
			sum.UnseenCount = 0
		}
		s.summaries = append(s.summaries, sum)
	}
	out := snapshotSummaries(s.summaries)
	s.mu.Unlock()

	s.notify()
	return out, nil
}

// NotifyTyping 输入节流：首次按键上报 typing=true，
// 静默一秒后自动上报 typing=false
func (s *Store) NotifyTyping(peerID uint64) {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()

	if s.typingTimer != nil && s.typingPeer == peerID {
		s.typingTimer.Reset(typingIdle)
		return
	}
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.emitTyping(s.typingPeer, false)
	}

	s.typingPeer = peerID
	s.emitTyping(peerID, true)
	s.typingTimer = time.AfterFunc(typingIdle, func() {
		s.typingMu.Lock()
		s.typingTimer = nil
		peer := s.typingPeer
		s.typingMu.Unlock()
		s.emitTyping(peer, false)
	})
}

func (s *Store) stopTyping() {
	s.typingMu.Lock()
	timer := s.typingTimer
	peer := s.typingPeer
	s.typingTimer = nil
	s.typingMu.Unlock()

	if timer != nil && timer.Stop() {
		s.emitTyping(peer, false)
	}
}

func (s *Store) emitTyping(peerID uint64, isTyping bool) {
	if err := s.bus.Emit(consts.EventTyping, map[string]any{"to": peerID, "isTyping": isTyping}); err != nil {
		log.Warn("上报输入状态失败", "error", err)
	}
}

func (s *Store) emitMarkSeen(peerID uint64) {
	if err := s.bus.Emit(consts.EventMarkSeen, map[string]any{"peerId": peerID}); err != nil {
		log.Warn("上报已读失败", "error", err)
	}
}

// Messages 返回某会话消息的快照
func (s *Store) Messages(peerID uint64) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.conversations[peerID])
}

// Summaries 返回会话列表快照
func (s *Store) Summaries() []*ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotSummaries(s.summaries)
}

// IsTyping 对手方是否正在输入
func (s *Store) IsTyping(peerID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing[peerID]
}

// Online 当前在线用户快照
func (s *Store) Online() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.online))
	copy(out, s.online)
	return out
}

func (s *Store) handleNewMessage(data json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn("无法解析的新消息事件", "error", err)
		return
	}
	s.decryptInto(&msg)
	partner := msg.PartnerOf(s.selfID)

	s.mu.Lock()
	if indexByKey(s.conversations[partner], msg.ID) >= 0 {
		s.mu.Unlock()
		return
	}

	open := s.openPeer == partner
	if open && msg.ReceiverID == s.selfID {
		msg.Seen = true
	}
	s.conversations[partner] = append(s.conversations[partner], &msg)
	s.bumpSummary(&msg, partner, open)
	s.persist()
	s.mu.Unlock()

	if open && msg.ReceiverID == s.selfID {
		s.emitMarkSeen(partner)
	}
	s.notify()
}

func (s *Store) handleDeleteMessage(data json.RawMessage) {
	var ev struct {
		MessageID string `json:"messageId"`
		PartnerID uint64 `json:"partnerId"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Warn("无法解析的删除事件", "error", err)
		return
	}

	s.mu.Lock()
	s.dropMessage(ev.PartnerID, ev.MessageID)
	s.persist()
	s.mu.Unlock()
	s.notify()
}

func (s *Store) handleTyping(data json.RawMessage) {
	var ev struct {
		UserID   uint64 `json:"userId"`
		IsTyping bool   `json:"isTyping"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}

	s.mu.Lock()
	s.typing[ev.UserID] = ev.IsTyping
	s.mu.Unlock()
	s.notify()
}

func (s *Store) handleOnlineUsers(data json.RawMessage) {
	var ids []uint64
	if err := json.Unmarshal(data, &ids); err != nil {
		return
	}

	s.mu.Lock()
	s.online = ids
	s.mu.Unlock()
	s.notify()
}

func (s *Store) handleMessagesSeen(data json.RawMessage) {
	var ev struct {
		UserID uint64 `json:"userId"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}

	now := time.Now()
	s.mu.Lock()
	for _, m := range s.conversations[ev.UserID] {
		if m.SenderID == s.selfID && !m.Seen {
			m.Seen = true
			m.SeenAt = &now
		}
	}
	s.persist()
	s.mu.Unlock()
	s.notify()
}

// dropMessage 摘除一条消息并维护未读计数与预览，幂等。
// 调用方持锁。
func (s *Store) dropMessage(partner uint64, messageID string) {
	list := s.conversations[partner]
	idx := indexByKey(list, messageID)
	if idx < 0 {
		return
	}

	wasUnseen := list[idx].ReceiverID == s.selfID && !list[idx].Seen
	s.conversations[partner] = append(list[:idx], list[idx+1:]...)

	if sum := s.summaryOf(partner); sum != nil {
		if wasUnseen && sum.UnseenCount > 0 {
			sum.UnseenCount--
		}
	}
	s.refreshSummary(partner)
}

// bumpSummary 用一条新消息刷新会话列表：置顶、改预览、
// 自己是接收方且会话未打开时未读加一。调用方持锁。
func (s *Store) bumpSummary(msg *Message, partner uint64, open bool) {
	sum := s.summaryOf(partner)
	if sum == nil {
		// 陌生人首条消息先合成占位条目，资料异步补全
		sum = &ChatSummary{PartnerID: partner, Stub: true}
		if msg.SenderName != "" {
			sum.PartnerName = msg.SenderName
			sum.PartnerAvatar = msg.SenderProfilePic
			sum.Stub = false
		} else {
			go s.enrichSummary(partner)
		}
		s.summaries = append(s.summaries, sum)
	}

	sum.LastMessage = previewOf(msg)
	sum.LastMsgType = msg.Type
	sum.LastSenderID = msg.SenderID
	sum.LastMessageAt = msg.CreatedAt
	if msg.ReceiverID == s.selfID && !open {
		sum.UnseenCount++
	}
	s.sortSummaries()
}

// refreshSummary 按会话尾部重算预览，会话清空时移除条目。调用方持锁。
func (s *Store) refreshSummary(partner uint64) {
	list := s.conversations[partner]
	sum := s.summaryOf(partner)

	if len(list) == 0 {
		if sum != nil {
			s.summaries = removeSummary(s.summaries, partner)
		}
		return
	}

	tail := list[len(list)-1]
	if sum == nil {
		sum = &ChatSummary{PartnerID: partner, Stub: true}
		s.summaries = append(s.summaries, sum)
		go s.enrichSummary(partner)
	}
	sum.LastMessage = previewOf(tail)
	sum.LastMsgType = tail.Type
	sum.LastSenderID = tail.SenderID
	sum.LastMessageAt = tail.CreatedAt
	s.sortSummaries()
}

// enrichSummary 异步补全占位条目的对方资料
func (s *Store) enrichSummary(partner uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := s.api.GetUserSimple(ctx, partner)
	if err != nil {
		log.Warn("补全会话资料失败", "partner", partner, "error", err)
		return
	}

	s.mu.Lock()
	if sum := s.summaryOf(partner); sum != nil {
		sum.PartnerName = info.Nickname
		sum.PartnerAvatar = info.AvatarURL
		sum.Stub = false
	}
	s.mu.Unlock()
	s.notify()
}

// zeroUnseen 清零某会话未读并本地标记已读。调用方持锁。
func (s *Store) zeroUnseen(partner uint64) {
	if sum := s.summaryOf(partner); sum != nil {
		sum.UnseenCount = 0
	}
	now := time.Now()
	for _, m := range s.conversations[partner] {
		if m.ReceiverID == s.selfID && !m.Seen {
			m.Seen = true
			m.SeenAt = &now
		}
	}
}

func (s *Store) summaryOf(partner uint64) *ChatSummary {
	for _, sum := range s.summaries {
		if sum.PartnerID == partner {
			return sum
		}
	}
	return nil
}

func (s *Store) sortSummaries() {
	sort.SliceStable(s.summaries, func(i, j int) bool {
		return s.summaries[i].LastMessageAt.After(s.summaries[j].LastMessageAt)
	})
}

// decryptInto 补全消息的本地明文，解不开就留空
func (s *Store) decryptInto(m *Message) {
	if m.Text == "" || m.Plaintext != "" {
		return
	}
	if pt := cipher.Decrypt(m.Text, s.passphrase); pt != "" {
		m.Plaintext = pt
	}
}

func (s *Store) previewText(ciphertext, msgType string) string {
	switch msgType {
	case TypeImage:
		return "[图片]"
	case TypeVideoCall:
		return "[视频通话]"
	}
	if ciphertext == "" {
		return ""
	}
	if pt := cipher.Decrypt(ciphertext, s.passphrase); pt != "" {
		return pt
	}
	return EncryptedPlaceholder
}

func (s *Store) removeByKey(partner uint64, key string) {
	list := s.conversations[partner]
	if idx := indexByKey(list, key); idx >= 0 {
		s.conversations[partner] = append(list[:idx], list[idx+1:]...)
	}
}

// persist 落盘当前全部会话，失败只告警不中断。调用方持锁。
func (s *Store) persist() {
	if err := s.cache.Save(s.conversations); err != nil {
		log.Warn("写入本地会话缓存失败", "error", err)
	}
}

func (s *Store) notify() {
	if s.OnChange != nil {
		s.OnChange()
	}
}

func previewOf(m *Message) string {
	switch m.Type {
	case TypeImage:
		return "[图片]"
	case TypeVideoCall:
		return "[视频通话]"
	}
	if m.Plaintext != "" {
		return m.Plaintext
	}
	return EncryptedPlaceholder
}

func indexByKey(list []*Message, key string) int {
	if key == "" {
		return -1
	}
	for i, m := range list {
		if m.Key() == key {
			return i
		}
	}
	return -1
}

func snapshot(list []*Message) []*Message {
	out := make([]*Message, len(list))
	copy(out, list)
	return out
}

func snapshotSummaries(list []*ChatSummary) []*ChatSummary {
	out := make([]*ChatSummary, len(list))
	copy(out, list)
	return out
}

func removeSummary(list []*ChatSummary, partner uint64) []*ChatSummary {
	for i, sum := range list {
		if sum.PartnerID == partner {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
