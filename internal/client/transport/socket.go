package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	log "log/slog"
)

const (
	socketWriteTimeout = 10 * time.Second
	socketReadLimit    = 1 << 16
)

type wireEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Socket 封装一条 WebSocket 连接与事件分发。
// Listen 只会启动一次读循环，重复调用是空操作。
type Socket struct {
	conn *websocket.Conn

	mu        sync.Mutex
	handlers  map[string]func(json.RawMessage)
	listening bool

	writeMu sync.Mutex
	done    chan struct{}
}

// DialSocket 建立实时连接，token 通过查询参数携带
func DialSocket(ctx context.Context, baseURL, token string) (*Socket, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/im"
	u.RawQuery = "token=" + url.QueryEscape(token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	conn.SetReadLimit(socketReadLimit)

	return &Socket{
		conn:     conn,
		handlers: make(map[string]func(json.RawMessage)),
		done:     make(chan struct{}),
	}, nil
}

// Handle 注册事件回调，同名事件后注册的覆盖先注册的
func (s *Socket) Handle(event string, fn func(data json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = fn
}

// Listen 启动读循环并按事件名分发，幂等
func (s *Socket) Listen() {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return
	}
	s.listening = true
	s.mu.Unlock()

	go s.readLoop()
}

func (s *Socket) readLoop() {
	defer close(s.done)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("实时连接异常断开", "error", err)
			}
			return
		}

		var env wireEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Warn("无法解析的实时事件", "error", err)
			continue
		}

		s.mu.Lock()
		fn := s.handlers[env.Event]
		s.mu.Unlock()
		if fn != nil {
			fn(env.Data)
		}
	}
}

// Emit 向服务端发送一个事件
func (s *Socket) Emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	payload, err := json.Marshal(wireEnvelope{Event: event, Data: raw})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Done 读循环结束后关闭，可用于等待连接退出
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}
