package im

import (
	log "log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 64 << 10
)

// EventHandler 处理客户端上行事件（typing / markSeen）
type EventHandler func(s *Session, env *Envelope)

// Session 包装一条已鉴权的 WebSocket 连接
type Session struct {
	userID  uint64
	conn    *websocket.Conn
	send    chan []byte
	closed  chan struct{}
	once    sync.Once
	onEvent EventHandler
}

func NewSession(conn *websocket.Conn, userID uint64, buffer int, onEvent EventHandler) *Session {
	if buffer <= 0 {
		buffer = 64
	}
	return &Session{
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, buffer),
		closed:  make(chan struct{}),
		onEvent: onEvent,
	}
}

func (s *Session) UserID() uint64 { return s.userID }

// Send 序列化并入队，队列满时丢弃（慢连接不阻塞扇出）
func (s *Session) Send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(&Envelope{Event: event, Data: raw})
	if err != nil {
		return err
	}

	select {
	case s.send <- payload:
		return nil
	case <-s.closed:
		return websocket.ErrCloseSent
	default:
		log.Warn("session send buffer full, dropping event", "userID", s.userID, "event", event)
		return nil
	}
}

// Run 启动写循环并阻塞在读循环上，连接断开后返回
func (s *Session) Run() {
	go s.writePump()
	s.readPump()
}

func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

func (s *Session) readPump() {
	defer s.Close()
	s.conn.SetReadLimit(maxMessageSize)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Warn("malformed realtime envelope", "userID", s.userID, "err", err)
			continue
		}
		if s.onEvent != nil {
			s.onEvent(s, &env)
		}
	}
}

func (s *Session) writePump() {
	defer s.Close()

	for {
		select {
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Error("WS 推送失败", "userID", s.userID, "err", err)
				return
			}
		case <-s.closed:
			return
		}
	}
}
