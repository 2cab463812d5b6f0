// Package websocket 向在线用户与管理员推送申请通知
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"bookmarket_go/middleware"
	"bookmarket_go/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64

	// 多实例之间转发通知的频道
	broadcastChannel = "bookmarket:ws"
	onlineUsersKey   = "ws:online"
	backlogPrefix    = "ws:backlog:"
	backlogMax       = 50
	backlogTTL       = 7 * 24 * time.Hour
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 握手已经过JWT校验
		return true
	},
}

// WSMessage WebSocket消息结构
type WSMessage struct {
	Type      string      `json:"type"` // notification, ping, pong
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// envelope 通过Redis频道转发的通知
type envelope struct {
	Origin       string                `json:"origin"`
	Audience     string                `json:"audience"`
	Notification services.Notification `json:"notification"`
}

// Client WebSocket客户端
type Client struct {
	UserID     int64
	Connection *websocket.Conn
	Send       chan *WSMessage
	hub        *Hub
	closed     chan struct{}
	closeOnce  sync.Once
}

// Hub 按用户ID管理连接
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	admins  map[int64]struct{}

	rdb    *redis.Client
	pubsub *redis.PubSub
	origin string
	done   chan struct{}
}

// NewHub 创建通知中心，rdb 为 nil 时只在本实例内投递
func NewHub(adminIDs []int64, rdb *redis.Client) *Hub {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		admins:  admins,
		rdb:     rdb,
		origin:  uuid.NewString(),
		done:    make(chan struct{}),
	}
}

// Start 订阅跨实例频道，订阅确认后才返回
func (h *Hub) Start(ctx context.Context) error {
	if h.rdb == nil {
		return nil
	}
	ps := h.rdb.Subscribe(ctx, broadcastChannel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return err
	}
	h.pubsub = ps
	go h.listen(ps.Channel())

	middleware.InfoLogger("✅ WebSocket hub subscribed", zap.String("channel", broadcastChannel))
	return nil
}

// Close 关闭订阅与所有连接
func (h *Hub) Close() {
	select {
	case <-h.done:
		return
	default:
		close(h.done)
	}
	if h.pubsub != nil {
		h.pubsub.Close()
	}

	h.mu.Lock()
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

// HandleConnection 处理WebSocket连接，必须放在 AuthMiddleware 之后
func (h *Hub) HandleConnection(c *gin.Context) {
	claims := middleware.CurrentClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 40100, "message": "missing token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		middleware.WarnLogger("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		UserID:     claims.UserID,
		Connection: conn,
		Send:       make(chan *WSMessage, sendBufferSize),
		hub:        h,
		closed:     make(chan struct{}),
	}
	h.register(client)

	middleware.InfoLogger("🔌 websocket connected", zap.Int64("user_id", client.UserID))

	go client.writePump()
	go client.readPump()

	h.flushBacklog(c.Request.Context(), client)
}

// NotifyAdmins 推送给所有在线管理员
func (h *Hub) NotifyAdmins(ctx context.Context, n services.Notification) error {
	h.deliver(services.AudienceAdmins, n)
	return h.publish(ctx, services.AudienceAdmins, n)
}

// NotifyUser 推送给单个用户，离线时写入积压队列
func (h *Hub) NotifyUser(ctx context.Context, n services.Notification) error {
	if !h.deliver(services.AudienceUser, n) && h.rdb != nil {
		conns, err := h.rdb.HGet(ctx, onlineUsersKey, strconv.FormatInt(n.UserID, 10)).Int64()
		if err == redis.Nil || (err == nil && conns <= 0) {
			return h.enqueueBacklog(ctx, n)
		}
	}
	return h.publish(ctx, services.AudienceUser, n)
}

// Online 用户在本实例是否有连接
func (h *Hub) Online(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// deliver 投递到本实例的连接，返回是否至少投递了一个
func (h *Hub) deliver(audience string, n services.Notification) bool {
	msg := &WSMessage{Type: "notification", Data: n, Timestamp: time.Now().Unix()}

	h.mu.RLock()
	var targets []*Client
	switch audience {
	case services.AudienceAdmins:
		for id := range h.admins {
			for c := range h.clients[id] {
				targets = append(targets, c)
			}
		}
	default:
		for c := range h.clients[n.UserID] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.Send <- msg:
		default:
			middleware.WarnLogger("websocket send queue full, closing", zap.Int64("user_id", c.UserID))
			c.close()
		}
	}
	return len(targets) > 0
}

func (h *Hub) publish(ctx context.Context, audience string, n services.Notification) error {
	if h.rdb == nil {
		return nil
	}
	data, err := json.Marshal(envelope{Origin: h.origin, Audience: audience, Notification: n})
	if err != nil {
		return err
	}
	return h.rdb.Publish(ctx, broadcastChannel, data).Err()
}

// listen 接收其他实例发布的通知
func (h *Hub) listen(ch <-chan *redis.Message) {
	for {
		select {
		case <-h.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			if env.Origin == h.origin {
				continue
			}
			h.deliver(env.Audience, env.Notification)
		}
	}
}

func (h *Hub) enqueueBacklog(ctx context.Context, n services.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := backlogPrefix + strconv.FormatInt(n.UserID, 10)
	pipe := h.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -backlogMax, -1)
	pipe.Expire(ctx, key, backlogTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// flushBacklog 连接建立后补发离线期间的通知
func (h *Hub) flushBacklog(ctx context.Context, c *Client) {
	if h.rdb == nil {
		return
	}
	key := backlogPrefix + strconv.FormatInt(c.UserID, 10)
	pipe := h.rdb.TxPipeline()
	items := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		middleware.WarnLogger("websocket backlog read failed", zap.Error(err))
		return
	}
	for _, raw := range items.Val() {
		var n services.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			continue
		}
		select {
		case c.Send <- &WSMessage{Type: "notification", Data: n, Timestamp: time.Now().Unix()}:
		default:
		}
	}
}

// 在线连接数按用户计数，跨实例共享；归零时删除字段
var releaseOnline = redis.NewScript(`
local n = redis.call("HINCRBY", KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call("HDEL", KEYS[1], ARGV[1])
end
return n
`)

func (h *Hub) register(c *Client) {
	if h.rdb != nil {
		h.rdb.HIncrBy(context.Background(), onlineUsersKey, strconv.FormatInt(c.UserID, 10), 1)
	}

	h.mu.Lock()
	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()

	if h.rdb != nil {
		releaseOnline.Run(context.Background(), h.rdb, []string{onlineUsersKey}, strconv.FormatInt(c.UserID, 10))
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.hub.unregister(c)
		c.Connection.Close()
	})
}

// readPump 读取客户端消息，只处理心跳
func (c *Client) readPump() {
	defer c.close()

	c.Connection.SetReadDeadline(time.Now().Add(pongWait))
	c.Connection.SetPongHandler(func(string) error {
		c.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.Connection.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				middleware.DebugLogger("websocket read error", zap.Int64("user_id", c.UserID), zap.Error(err))
			}
			return
		}
		if msg.Type == "ping" {
			select {
			case c.Send <- &WSMessage{Type: "pong", Timestamp: time.Now().Unix()}:
			default:
			}
		}
	}
}

// writePump 写出消息并定时发送心跳
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case message := <-c.Send:
			c.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Connection.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			c.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
