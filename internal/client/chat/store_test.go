package chat

import (
	"Amoura/internal/client/cipher"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu       sync.Mutex
	sendFn   func(ctx context.Context, peerID uint64, req *SendMessageReq) (*Message, error)
	messages []*Message
	rows     []*SummaryRow
	profile  *Profile
	deleted  []string

	profileCalls chan uint64
}

func (f *fakeAPI) SendMessage(ctx context.Context, peerID uint64, req *SendMessageReq) (*Message, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, peerID, req)
	}
	return nil, errors.New("not configured")
}

func (f *fakeAPI) GetMessages(ctx context.Context, peerID uint64) ([]*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages, nil
}

func (f *fakeAPI) GetChats(ctx context.Context) ([]*SummaryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeAPI) GetUserSimple(ctx context.Context, userID uint64) (*Profile, error) {
	if f.profileCalls != nil {
		f.profileCalls <- userID
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profile == nil {
		return nil, errors.New("not found")
	}
	return f.profile, nil
}

type emitted struct {
	event string
	data  any
}

type fakeBus struct {
	mu       sync.Mutex
	handlers map[string]func(json.RawMessage)
	sent     []emitted
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]func(json.RawMessage))}
}

func (f *fakeBus) Handle(event string, fn func(data json.RawMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = fn
}

func (f *fakeBus) Emit(event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, emitted{event: event, data: data})
	return nil
}

func (f *fakeBus) Listen() {}

func (f *fakeBus) emitsOf(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.sent {
		if e.event == event {
			n++
		}
	}
	return n
}

type fakeCache struct {
	mu    sync.Mutex
	data  map[uint64][]*Message
	saves int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[uint64][]*Message{}}
}

func (f *fakeCache) Load() (map[uint64][]*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, nil
}

func (f *fakeCache) Save(conversations map[uint64][]*Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return nil
}

func newTestStore(api *fakeAPI) (*Store, *fakeBus, *fakeCache) {
	bus := newFakeBus()
	kv := newFakeCache()
	return NewStore(1, "pw", api, bus, kv), bus, kv
}

func serverCopy(id string, sender, receiver uint64, ciphertext string) *Message {
	return &Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       ciphertext,
		Type:       TypeText,
		CreatedAt:  time.Now(),
	}
}

func rawEvent(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestSendText_OptimisticThenConfirmed(t *testing.T) {
	api := &fakeAPI{}
	api.sendFn = func(ctx context.Context, peerID uint64, req *SendMessageReq) (*Message, error) {
		return serverCopy("srv-1", 1, peerID, req.Text), nil
	}
	store, _, _ := newTestStore(api)

	msg, err := store.SendText(context.Background(), 2, "你好")
	require.NoError(t, err)

	assert.Equal(t, "srv-1", msg.ID)
	assert.Equal(t, "你好", msg.Plaintext)

	list := store.Messages(2)
	require.Len(t, list, 1)
	assert.Equal(t, "srv-1", list[0].ID)
	assert.False(t, list[0].Pending())
}

func TestSendText_NeverSendsPlaintext(t *testing.T) {
	api := &fakeAPI{}
	var sentText string
	api.sendFn = func(ctx context.Context, peerID uint64, req *SendMessageReq) (*Message, error) {
		sentText = req.Text
		return serverCopy("srv-1", 1, peerID, req.Text), nil
	}
	store, _, _ := newTestStore(api)

	_, err := store.SendText(context.Background(), 2, "绝密内容")
	require.NoError(t, err)

	assert.NotEqual(t, "绝密内容", sentText)
	assert.Equal(t, "绝密内容", cipher.Decrypt(sentText, "pw"))
}

func TestSendText_RollbackKeepsConcurrentArrivals(t *testing.T) {
	api := &fakeAPI{}
	store, _, _ := newTestStore(api)

	incoming, err := cipher.Encrypt("对方插进来的消息", "pw")
	require.NoError(t, err)

	api.sendFn = func(ctx context.Context, peerID uint64, req *SendMessageReq) (*Message, error) {
		// 请求在途期间对方的消息先到
		store.handleNewMessage(rawEvent(t, serverCopy("other-1", 2, 1, incoming)))
		return nil, errors.New("server unavailable")
	}

	_, err = store.SendText(context.Background(), 2, "会失败的消息")
	require.Error(t, err)

	list := store.Messages(2)
	require.Len(t, list, 1)
	assert.Equal(t, "other-1", list[0].ID)
}

func TestSendText_RacedEventProducesSingleEntry(t *testing.T) {
	api := &fakeAPI{}
	store, _, _ := newTestStore(api)

	api.sendFn = func(ctx context.Context, peerID uint64, req *SendMessageReq) (*Message, error) {
		confirmed := serverCopy("srv-1", 1, peerID, req.Text)
		// 广播比 REST 回包先到
		store.handleNewMessage(rawEvent(t, confirmed))
		return confirmed, nil
	}

	_, err := store.SendText(context.Background(), 2, "只应出现一次")
	require.NoError(t, err)

	list := store.Messages(2)
	require.Len(t, list, 1)
	assert.Equal(t, "srv-1", list[0].ID)
	assert.Equal(t, "只应出现一次", list[0].Plaintext)
}

func TestHandleNewMessage_DuplicateIsNoop(t *testing.T) {
	api := &fakeAPI{}
	store, _, _ := newTestStore(api)

	msg := serverCopy("dup-1", 2, 1, "cipher")
	store.handleNewMessage(rawEvent(t, msg))
	store.handleNewMessage(rawEvent(t, msg))

	assert.Len(t, store.Messages(2), 1)
	sums := store.Summaries()
	require.Len(t, sums, 1)
	assert.Equal(t, uint64(1), sums[0].UnseenCount)
}

func TestUnseen_IncrementAndReset(t *testing.T) {
	api := &fakeAPI{}
	store, bus, _ := newTestStore(api)

	store.handleNewMessage(rawEvent(t, serverCopy("u1", 2, 1, "c1")))
	store.handleNewMessage(rawEvent(t, serverCopy("u2", 2, 1, "c2")))

	sums := store.Summaries()
	require.Len(t, sums, 1)
	assert.Equal(t, uint64(2), sums[0].UnseenCount)

	// 打开会话即上报已读并清零
	_, err := store.OpenConversation(context.Background(), 2)
	require.NoError(t, err)

	sums = store.Summaries()
	assert.Equal(t, uint64(0), sums[0].UnseenCount)
	assert.Equal(t, 1, bus.emitsOf("markSeen"))
}

func TestUnseen_OwnMessagesDoNotCount(t *testing.T) {
	api := &fakeAPI{}
	store, _, _ := newTestStore(api)

	store.handleNewMessage(rawEvent(t, serverCopy("o1", 1, 2, "c1")))

	sums := store.Summaries()
	require.Len(t, sums, 1)
	assert.Equal(t, uint64(0), sums[0].UnseenCount)
}

func TestHandleNewMessage_OpenConversationAutoSeen(t *testing.T) {
	api := &fakeAPI{}
	store, bus, _ := newTestStore(api)

	_, err := store.OpenConversation(context.Background(), 2)
	require.NoError(t, err)
	before := bus.emitsOf("markSeen")

	store.handleNewMessage(rawEvent(t, serverCopy("live-1", 2, 1, "c1")))

	list := store.Messages(2)
	require.Len(t, list, 1)
	assert.True(t, list[0].Seen)
	assert.Equal(t, before+1, bus.emitsOf("markSeen"))

	sums := store.Summaries()
	require.Len(t, sums, 1)
	assert.Equal(t, uint64(0), sums[0].UnseenCount)
}

func TestDeleteEvent_DecrementsUnseenNeverNegative(t *testing.T) {
	api := &fakeAPI{}
	store, _, _ := newTestStore(api)

	old, err := cipher.Encrypt("留下的消息", "pw")
	require.NoError(t, err)
	store.handleNewMessage(rawEvent(t, serverCopy("keep-1", 2, 1, old)))
	store.handleNewMessage(rawEvent(t, serverCopy("gone-1", 2, 1, "c2")))

	ev := rawEvent(t, map[string]any{"messageId": "gone-1", "partnerId": 2})
	store.handleDeleteMessage(ev)
	// 重复事件幂等，未读不会被减成负数
	store.handleDeleteMessage(ev)

	list := store.Messages(2)
	require.Len(t, list, 1)
	assert.Equal(t, "keep-1", list[0].ID)

	sums := store.Summaries()
	require.Len(t, sums, 1)
	assert.Equal(t, uint64(1), sums[0].UnseenCount)
	// 预览回退到剩余的尾部消息
	assert.Equal(t, "留下的消息", sums[0].LastMessage)
}

func TestDeleteEvent_LastMessageRemovesSummary(t *testing.T) {
	api := &fakeAPI{}
	store, _, _ := newTestStore(api)

	store.handleNewMessage(rawEvent(t, serverCopy("only-1", 2, 1, "c1")))
	store.handleDeleteMessage(rawEvent(t, map[string]any{"messageId": "only-1", "partnerId": 2}))

	assert.Empty(t, store.Messages(2))
	assert.Empty(t, store.Summaries())
}

func TestHandleNewMessage_StrangerStubEnriched(t *testing.T) {
	api := &fakeAPI{
		profile:      &Profile{UserID: 9, Nickname: "新来的", AvatarURL: "http://img/9.png"},
		profileCalls: make(chan uint64, 1),
	}
	store, _, _ := newTestStore(api)

	store.handleNewMessage(rawEvent(t, serverCopy("s1", 9, 1, "c1")))

	sums := store.Summaries()
	require.Len(t, sums, 1)
	assert.True(t, sums[0].Stub)

	select {
	case id := <-api.profileCalls:
		assert.Equal(t, uint64(9), id)
	case <-time.After(2 * time.Second):
		t.Fatal("profile was never fetched")
	}

	assert.Eventually(t, func() bool {
		sums := store.Summaries()
		return len(sums) == 1 && !sums[0].Stub && sums[0].PartnerName == "新来的"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleNewMessage_SenderInfoSkipsEnrichment(t *testing.T) {
	api := &fakeAPI{}
	store, _, _ := newTestStore(api)

	msg := serverCopy("s1", 9, 1, "c1")
	msg.SenderName = "带资料的首条"
	msg.SenderProfilePic = "http://img/9.png"
	store.handleNewMessage(rawEvent(t, msg))

	sums := store.Summaries()
	require.Len(t, sums, 1)
	assert.False(t, sums[0].Stub)
	assert.Equal(t, "带资料的首条", sums[0].PartnerName)
}

func TestMessagesSeen_MarksOwnMessages(t *testing.T) {
	api := &fakeAPI{}
	api.sendFn = func(ctx context.Context, peerID uint64, req *SendMessageReq) (*Message, error) {
		return serverCopy("srv-1", 1, peerID, req.Text), nil
	}
	store, _, _ := newTestStore(api)

	_, err := store.SendText(context.Background(), 2, "等待已读")
	require.NoError(t, err)

	store.handleMessagesSeen(rawEvent(t, map[string]any{"userId": 2}))

	list := store.Messages(2)
	require.Len(t, list, 1)
	assert.True(t, list[0].Seen)
	assert.NotNil(t, list[0].SeenAt)
}

func TestHandleTypingAndOnline(t *testing.T) {
	api := &fakeAPI{}
	store, _, _ := newTestStore(api)

	store.handleTyping(rawEvent(t, map[string]any{"userId": 2, "isTyping": true}))
	assert.True(t, store.IsTyping(2))

	store.handleTyping(rawEvent(t, map[string]any{"userId": 2, "isTyping": false}))
	assert.False(t, store.IsTyping(2))

	store.handleOnlineUsers(rawEvent(t, []uint64{1, 2, 5}))
	assert.Equal(t, []uint64{1, 2, 5}, store.Online())
}

func TestNotifyTyping_Debounced(t *testing.T) {
	api := &fakeAPI{}
	store, bus, _ := newTestStore(api)

	// 一串连续按键只上报一次 typing=true
	store.NotifyTyping(2)
	store.NotifyTyping(2)
	store.NotifyTyping(2)
	assert.Equal(t, 1, bus.emitsOf("typing"))

	// 静默窗口过后自动上报 typing=false
	assert.Eventually(t, func() bool {
		return bus.emitsOf("typing") == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSubscribe_Idempotent(t *testing.T) {
	api := &fakeAPI{}
	store, bus, _ := newTestStore(api)

	store.Subscribe()
	first := len(bus.handlers)
	store.Subscribe()

	assert.Equal(t, first, len(bus.handlers))
	assert.NotZero(t, first)
}

func TestOpenConversation_MergesCacheAndServer(t *testing.T) {
	api := &fakeAPI{}
	store, _, kv := newTestStore(api)

	ciphertext, err := cipher.Encrypt("历史消息", "pw")
	require.NoError(t, err)
	api.messages = []*Message{serverCopy("h1", 2, 1, ciphertext)}

	pendingAt := time.Now().Add(time.Second)
	kv.data[2] = []*Message{{
		LocalID:    TempIDPrefix + "p1",
		SenderID:   1,
		ReceiverID: 2,
		Plaintext:  "尚未确认的草稿",
		Type:       TypeText,
		CreatedAt:  pendingAt,
	}}
	store.Bootstrap()

	list, err := store.OpenConversation(context.Background(), 2)
	require.NoError(t, err)

	require.Len(t, list, 2)
	assert.Equal(t, "h1", list[0].ID)
	assert.Equal(t, "历史消息", list[0].Plaintext)
	assert.True(t, list[1].Pending())
}
