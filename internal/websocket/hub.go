package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/monitoring"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	sendBuffer    = 64
	sessionCookie = "access_token"
)

// SessionValidator 校验访问令牌，由 auth.Service 实现
type SessionValidator interface {
	ValidateSession(accessToken string) (*domain.User, error)
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}
			for _, origin := range allowedOrigins {
				if origin == "*" || origin == requestOrigin {
					return true
				}
			}
			return false
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeConnected         MessageType = "connected"
	MessageTypeDownloadStarted   MessageType = "download_started"
	MessageTypeDownloadProgress  MessageType = "download_progress"
	MessageTypeDownloadCompleted MessageType = "download_completed"
	MessageTypeDownloadFailed    MessageType = "download_failed"
	MessageTypePing              MessageType = "ping"
	MessageTypePong              MessageType = "pong"
	MessageTypeError             MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// DownloadEvent 下载事件数据
type DownloadEvent struct {
	DownloadID      string  `json:"downloadId"`
	Platform        string  `json:"platform"`
	URL             string  `json:"url"`
	Format          string  `json:"format,omitempty"`
	Title           string  `json:"title,omitempty"`
	DownloadedBytes int64   `json:"downloadedBytes,omitempty"`
	TotalBytes      int64   `json:"totalBytes,omitempty"`
	Percent         float64 `json:"percent,omitempty"`
	Speed           string  `json:"speed,omitempty"` // 例如 "1.2 MB/s"
	DownloadURL     string  `json:"downloadUrl,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	log    *zap.Logger
}

type userMessage struct {
	userID string
	data   []byte
}

// Hub 按用户管理 WebSocket 连接并推送下载进度
//
// 同一用户可以有多个连接（多个标签页），事件会发给该用户的全部连接
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	users          map[string]map[string]*Client // userID -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan userMessage
	done           chan struct{}
	stopOnce       sync.Once
	mu             sync.RWMutex
	log            *zap.Logger
	metrics        *monitoring.Metrics
	allowedOrigins []string
	sessions       SessionValidator
}

// NewHub 创建WebSocket Hub
//
// 参数:
//   - allowedOrigins: 允许的 Origin 列表，为空时允许所有
//   - sessions: 会话校验，用于识别连接所属用户
//   - metrics: 可为 nil
//   - log: 日志记录器
func NewHub(allowedOrigins []string, sessions SessionValidator, metrics *monitoring.Metrics, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[string]*Client),
		users:          make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan userMessage, 256),
		done:           make(chan struct{}),
		log:            log.Named("websocket"),
		metrics:        metrics,
		allowedOrigins: allowedOrigins,
		sessions:       sessions,
	}
}

// Run 启动Hub，ctx 结束时关闭全部连接并返回 nil
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return nil

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.sendToUser(msg.userID, msg.data)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	if h.users[client.UserID] == nil {
		h.users[client.UserID] = make(map[string]*Client)
	}
	h.users[client.UserID][client.ID] = client
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WebsocketConnected()
	}
	h.log.Debug("client registered", zap.String("id", client.ID), zap.String("userID", client.UserID))

	client.sendMessage(&Message{Type: MessageTypeConnected, Timestamp: time.Now()})
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if clients, ok := h.users[client.UserID]; ok {
		delete(clients, client.ID)
		if len(clients) == 0 {
			delete(h.users, client.UserID)
		}
	}
	delete(h.clients, client.ID)
	close(client.send)

	if h.metrics != nil {
		h.metrics.WebsocketDisconnected()
	}
	h.log.Debug("client unregistered", zap.String("id", client.ID))
}

// Publish 向用户的全部连接推送下载事件
//
// 不阻塞调用方：Hub 未运行或缓冲区已满时事件被丢弃
func (h *Hub) Publish(userID string, msgType MessageType, event DownloadEvent) {
	if userID == "" {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal download event", zap.Error(err))
		return
	}
	payload, err := json.Marshal(&Message{Type: msgType, Data: data, Timestamp: time.Now()})
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- userMessage{userID: userID, data: payload}:
	case <-h.done:
	default:
		h.log.Warn("broadcast channel full, dropping event",
			zap.String("userID", userID),
			zap.String("type", string(msgType)),
		)
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendToUser 向指定用户的全部连接发送消息
func (h *Hub) sendToUser(userID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.users[userID] {
		select {
		case client.send <- data:
		default:
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送应用层 ping
func (h *Hub) pingAllClients() {
	data, err := json.Marshal(&Message{Type: MessageTypePing, Timestamp: time.Now()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
		if h.metrics != nil {
			h.metrics.WebsocketDisconnected()
		}
	}
	h.clients = make(map[string]*Client)
	h.users = make(map[string]map[string]*Client)
}

// authenticate 从 query token、Bearer 头或会话 Cookie 中取令牌并校验
func (h *Hub) authenticate(c *gin.Context) (*domain.User, error) {
	token := c.Query("token")
	if token == "" {
		if parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		if cookie, err := c.Cookie(sessionCookie); err == nil {
			token = cookie
		}
	}
	if token == "" {
		return nil, errors.New("missing authentication token")
	}

	return h.sessions.ValidateSession(token)
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		user, err := hub.authenticate(c)
		if err != nil {
			hub.log.Warn("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:     uuid.NewString(),
			UserID: user.ID,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			hub:    hub,
			log:    hub.log,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket error", zap.Error(err))
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// handleMessage 连接是只推送的，客户端消息仅用于心跳
//
// send 通道只在 Hub 协程中写入和关闭，这里不回写消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypePing, MessageTypePong:
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	default:
		c.log.Debug("ignoring client message", zap.String("type", string(msg.Type)))
	}
}

// sendMessage 发送消息给客户端，缓冲区满时丢弃
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}
