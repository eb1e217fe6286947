package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"aucmart_go/config"
	"aucmart_go/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// 升级器 - 将HTTP连接升级为WebSocket连接
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// 生产环境应该验证origin
			return true
		},
	}

	redisCtx = context.Background()
)

// 广播作用域
const (
	scopeProduct = "product" // 商品详情页的所有观看者
	scopeUser    = "user"    // 某用户的所有连接
)

// WSMessage WebSocket消息结构
type WSMessage struct {
	Type      string      `json:"type"` // 消息类型: join_view, leave_view, authenticate, unauthenticate, ping, pong
	ProductID uint        `json:"product_id,omitempty"`
	Token     string      `json:"token,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// BroadcastMessage 广播消息（本地队列与Redis跨实例同步共用）
// Origin 标记发布实例，订阅端据此丢弃自己发出的回声
type BroadcastMessage struct {
	Origin   string      `json:"origin,omitempty"`
	Scope    string      `json:"scope"`
	TargetID uint        `json:"target_id"`
	Event    string      `json:"event"`
	Data     interface{} `json:"data"`
}

// Client WebSocket客户端
// 游客也可以连接并观看商品页，认证后才能收到定向通知
type Client struct {
	ID         string          // 连接ID
	UserID     uint            // 认证后的用户ID，0表示游客
	Connection *websocket.Conn // WebSocket连接
	Send       chan *WSMessage // 发送消息队列
	Views      map[uint]bool   // 正在观看的商品页
	hub        *Hub
	mu         sync.Mutex
}

// viewRoom 商品观看房间
type viewRoom struct {
	ProductID uint
	Clients   map[string]*Client
	mu        sync.RWMutex
}

// Hub WebSocket连接中心
//
// 同时充当竞拍服务的实时通知端口：PublishProduct 推给商品页的所有
// 观看者（含游客），PublishUser 推给某用户的全部连接。事件同时发布
// 到Redis频道，多实例部署时由各实例转投本地连接。
type Hub struct {
	id string // 实例标识，用于过滤Redis回声

	clients      map[string]*Client // 连接ID -> Client
	clientsMutex sync.RWMutex

	rooms      map[uint]*viewRoom // 商品ID -> 观看房间
	roomsMutex sync.RWMutex

	broadcastQueue chan *BroadcastMessage
	redisPubSub    *redis.PubSub
}

// NewHub 创建连接中心
func NewHub() *Hub {
	return &Hub{
		id:             uuid.NewString(),
		clients:        make(map[string]*Client),
		rooms:          make(map[uint]*viewRoom),
		broadcastQueue: make(chan *BroadcastMessage, 1000),
	}
}

// Start 启动广播worker与Redis订阅
func (h *Hub) Start() {
	go h.broadcastWorker()
	if config.RedisClient != nil {
		go h.subscribeToRedis()
	}
	middleware.InfoLogger("✅ WebSocket hub started")
}

// ==================== Notifier接口实现 ====================

// PublishProduct 向某商品详情页的所有观看者广播
func (h *Hub) PublishProduct(productID uint, event string, data interface{}) {
	h.publish(&BroadcastMessage{Scope: scopeProduct, TargetID: productID, Event: event, Data: data})
}

// PublishUser 向某用户的所有连接推送定向消息
func (h *Hub) PublishUser(userID uint, event string, data interface{}) {
	h.publish(&BroadcastMessage{Scope: scopeUser, TargetID: userID, Event: event, Data: data})
}

func (h *Hub) publish(broadcast *BroadcastMessage) {
	broadcast.Origin = h.id
	select {
	case h.broadcastQueue <- broadcast:
	default:
		middleware.ErrorLogger("broadcast queue is full, dropping event",
			zap.String("event", broadcast.Event))
	}

	// 同时发布到Redis（多实例同步）
	if config.RedisClient != nil {
		go func() {
			data, _ := json.Marshal(broadcast)
			config.RedisClient.Publish(redisCtx, "auction:broadcast", data)
		}()
	}
}

// ==================== 连接处理 ====================

// HandleConnection 处理WebSocket连接
// 未携带token的连接以游客身份观看，后续可通过authenticate消息升级
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		middleware.ErrorLogger("failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:         uuid.NewString(),
		Connection: conn,
		Send:       make(chan *WSMessage, 256),
		Views:      make(map[uint]bool),
		hub:        h,
	}
	if token := c.Query("token"); token != "" {
		if claims, err := config.GetJWTService().ValidateToken(token); err == nil {
			client.UserID = claims.UserID
		}
	}

	h.clientsMutex.Lock()
	h.clients[client.ID] = client
	h.clientsMutex.Unlock()

	if client.UserID != 0 && config.RedisClient != nil {
		go func(userID uint) {
			config.RedisClient.SAdd(redisCtx, "online:users", userID)
		}(client.UserID)
	}

	middleware.DebugLogger("websocket client connected",
		zap.String("client_id", client.ID), zap.Uint("user_id", client.UserID))

	go client.readPump()
	go client.writePump()
}

// readPump 从WebSocket连接读取消息
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.Connection.Close()
	}()

	c.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Connection.SetPongHandler(func(string) error {
		c.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				middleware.DebugLogger("websocket read error",
					zap.String("client_id", c.ID), zap.Error(err))
			}
			break
		}

		var wsMessage WSMessage
		if err := json.Unmarshal(message, &wsMessage); err != nil {
			continue
		}
		c.handleMessage(&wsMessage)
	}
}

// writePump 向WebSocket连接写入消息
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Connection.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(message *WSMessage) {
	switch message.Type {
	case "join_view":
		// 进入商品详情页
		c.handleJoinView(message.ProductID)

	case "leave_view":
		// 离开商品详情页
		c.handleLeaveView(message.ProductID)

	case "authenticate":
		// 游客连接升级为认证连接
		c.handleAuthenticate(message.Token)

	case "unauthenticate":
		// 退出登录，降级为游客（保留观看中的商品页）
		c.mu.Lock()
		c.UserID = 0
		c.mu.Unlock()

	case "ping":
		select {
		case c.Send <- &WSMessage{Type: "pong", Timestamp: time.Now().Unix()}:
		default:
		}
	}
}

// handleJoinView 加入商品观看房间
func (c *Client) handleJoinView(productID uint) {
	if productID == 0 {
		return
	}
	room := c.hub.getOrCreateRoom(productID)
	room.mu.Lock()
	room.Clients[c.ID] = c
	room.mu.Unlock()

	c.mu.Lock()
	c.Views[productID] = true
	c.mu.Unlock()
}

// handleLeaveView 离开商品观看房间
func (c *Client) handleLeaveView(productID uint) {
	if productID == 0 {
		return
	}
	if room, exists := c.hub.getRoom(productID); exists {
		room.mu.Lock()
		delete(room.Clients, c.ID)
		room.mu.Unlock()
	}
	c.mu.Lock()
	delete(c.Views, productID)
	c.mu.Unlock()
}

// handleAuthenticate 验证token并绑定用户身份
func (c *Client) handleAuthenticate(token string) {
	claims, err := config.GetJWTService().ValidateToken(token)
	if err != nil {
		select {
		case c.Send <- &WSMessage{Type: "unauthorized", Timestamp: time.Now().Unix()}:
		default:
		}
		return
	}
	c.mu.Lock()
	c.UserID = claims.UserID
	c.mu.Unlock()

	if config.RedisClient != nil {
		go func(userID uint) {
			config.RedisClient.SAdd(redisCtx, "online:users", userID)
		}(claims.UserID)
	}
}

// ==================== 广播分发 ====================

// broadcastWorker 消费广播队列
func (h *Hub) broadcastWorker() {
	for broadcast := range h.broadcastQueue {
		switch broadcast.Scope {
		case scopeProduct:
			h.deliverToRoom(broadcast)
		case scopeUser:
			h.deliverToUser(broadcast)
		}
	}
}

// deliverToRoom 投递给商品观看房间的所有客户端
func (h *Hub) deliverToRoom(broadcast *BroadcastMessage) {
	room, exists := h.getRoom(broadcast.TargetID)
	if !exists {
		return
	}

	message := &WSMessage{
		Type:      broadcast.Event,
		ProductID: broadcast.TargetID,
		Data:      broadcast.Data,
		Timestamp: time.Now().Unix(),
	}

	room.mu.RLock()
	targets := make([]*Client, 0, len(room.Clients))
	for _, client := range room.Clients {
		targets = append(targets, client)
	}
	room.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.Send <- message:
		default:
			// 发送队列满了，断开连接
			client.Connection.Close()
		}
	}
}

// deliverToUser 投递给某用户的全部连接
func (h *Hub) deliverToUser(broadcast *BroadcastMessage) {
	message := &WSMessage{
		Type:      broadcast.Event,
		Data:      broadcast.Data,
		Timestamp: time.Now().Unix(),
	}

	h.clientsMutex.RLock()
	targets := make([]*Client, 0)
	for _, client := range h.clients {
		if client.UserID == broadcast.TargetID {
			targets = append(targets, client)
		}
	}
	h.clientsMutex.RUnlock()

	for _, client := range targets {
		select {
		case client.Send <- message:
		default:
			client.Connection.Close()
		}
	}
}

// subscribeToRedis 订阅Redis频道（多实例同步）
func (h *Hub) subscribeToRedis() {
	pubsub := config.RedisClient.Subscribe(redisCtx, "auction:broadcast")
	h.redisPubSub = pubsub

	ch := pubsub.Channel()
	for msg := range ch {
		var broadcast BroadcastMessage
		if err := json.Unmarshal([]byte(msg.Payload), &broadcast); err != nil {
			continue
		}
		h.enqueueRemote(&broadcast)
	}
}

// enqueueRemote 把其他实例发布的消息放入本地广播队列
// 自己发出的消息已经走过本地队列，丢弃回声保证每个事件至多投递一次
func (h *Hub) enqueueRemote(broadcast *BroadcastMessage) {
	if broadcast.Origin == h.id {
		return
	}
	select {
	case h.broadcastQueue <- broadcast:
	default:
	}
}

// removeClient 清理客户端：移出所有观看房间与连接列表
func (h *Hub) removeClient(c *Client) {
	c.mu.Lock()
	views := make([]uint, 0, len(c.Views))
	for productID := range c.Views {
		views = append(views, productID)
	}
	userID := c.UserID
	c.mu.Unlock()

	for _, productID := range views {
		if room, exists := h.getRoom(productID); exists {
			room.mu.Lock()
			delete(room.Clients, c.ID)
			room.mu.Unlock()
		}
	}

	h.clientsMutex.Lock()
	delete(h.clients, c.ID)
	h.clientsMutex.Unlock()

	if userID != 0 && config.RedisClient != nil {
		// 该用户还有别的连接时保留在线状态
		h.clientsMutex.RLock()
		stillOnline := false
		for _, other := range h.clients {
			if other.UserID == userID {
				stillOnline = true
				break
			}
		}
		h.clientsMutex.RUnlock()
		if !stillOnline {
			go config.RedisClient.SRem(redisCtx, "online:users", userID)
		}
	}
}

// getOrCreateRoom 获取或创建商品观看房间
func (h *Hub) getOrCreateRoom(productID uint) *viewRoom {
	h.roomsMutex.RLock()
	room, exists := h.rooms[productID]
	h.roomsMutex.RUnlock()

	if !exists {
		h.roomsMutex.Lock()
		room, exists = h.rooms[productID]
		if !exists {
			room = &viewRoom{
				ProductID: productID,
				Clients:   make(map[string]*Client),
			}
			h.rooms[productID] = room
		}
		h.roomsMutex.Unlock()
	}
	return room
}

// getRoom 获取商品观看房间
func (h *Hub) getRoom(productID uint) (*viewRoom, bool) {
	h.roomsMutex.RLock()
	defer h.roomsMutex.RUnlock()
	room, exists := h.rooms[productID]
	return room, exists
}

// GetOnlineUserCount 获取在线用户数
func (h *Hub) GetOnlineUserCount() (int64, error) {
	if config.RedisClient == nil {
		h.clientsMutex.RLock()
		defer h.clientsMutex.RUnlock()
		seen := make(map[uint]bool)
		for _, client := range h.clients {
			if client.UserID != 0 {
				seen[client.UserID] = true
			}
		}
		return int64(len(seen)), nil
	}
	return config.RedisClient.SCard(redisCtx, "online:users").Result()
}

// Close 关闭所有连接与Redis订阅
func (h *Hub) Close() {
	if h.redisPubSub != nil {
		h.redisPubSub.Close()
	}
	h.clientsMutex.Lock()
	for _, client := range h.clients {
		client.Connection.Close()
	}
	h.clientsMutex.Unlock()
}
