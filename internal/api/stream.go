package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"AgentHub-Chain/internal/session"
	"AgentHub-Chain/pkg/logger"

	"github.com/gorilla/websocket"
)

// 推送消息类型
const (
	MessageTypeSession      = "session"
	MessageTypeNotification = "notification"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Message 是推送给客户端的消息。
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub 将会话快照与通知广播给所有 WebSocket 客户端。客户端集合只由 Run
// 所在的 goroutine 访问。
type Hub struct {
	session    Session
	upgrader   websocket.Upgrader
	register   chan *client
	unregister chan *client
	done       chan struct{}
	log        *slog.Logger
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

// NewHub 创建 Hub。
func NewHub(s Session) *Hub {
	return &Hub{
		session: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        logger.Named("stream"),
	}
}

// Run 订阅会话变化并分发给客户端，直到 ctx 结束。
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	snapshots := make(chan session.Snapshot, sendBuffer)
	notes := make(chan session.Notification, sendBuffer)
	snapSub := h.session.Subscribe(snapshots)
	noteSub := h.session.SubscribeNotifications(notes)
	defer snapSub.Unsubscribe()
	defer noteSub.Unsubscribe()

	clients := make(map[*client]struct{})
	drop := func(c *client) {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.send)
		}
	}
	broadcast := func(msg Message) {
		for c := range clients {
			select {
			case c.send <- msg:
			default:
				h.log.Warn("客户端发送缓冲已满，断开连接")
				drop(c)
			}
		}
	}
	defer func() {
		for c := range clients {
			drop(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			clients[c] = struct{}{}
			c.send <- Message{Type: MessageTypeSession, Data: h.session.Snapshot()}
			if note, ok := h.session.Notification(); ok {
				c.send <- Message{Type: MessageTypeNotification, Data: note}
			}
			h.log.Debug("客户端已连接", slog.Int("clients", len(clients)))
		case c := <-h.unregister:
			drop(c)
			h.log.Debug("客户端已断开", slog.Int("clients", len(clients)))
		case snap := <-snapshots:
			broadcast(Message{Type: MessageTypeSession, Data: snap})
		case note := <-notes:
			broadcast(Message{Type: MessageTypeNotification, Data: note})
		case err := <-snapSub.Err():
			if err != nil {
				h.log.Warn("会话订阅中断", slog.Any("error", err))
			}
			return
		}
	}
}

// HandleConnection 升级 WebSocket 连接并注册客户端。
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket 升级失败", slog.String("remote_addr", r.RemoteAddr), slog.Any("error", err))
		return
	}
	c := &client{conn: conn, send: make(chan Message, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go h.writePump(c)
	go h.readPump(c)
}

// readPump 只用于感知客户端关闭与心跳。
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("WebSocket 读取失败", slog.Any("error", err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			body, err := json.Marshal(msg)
			if err != nil {
				h.log.Warn("序列化推送消息失败", slog.Any("error", err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
