package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/bus"
)

// Hub 订阅桥。
// 按主题把总线上的事件转发给挂在该主题上的所有 WebSocket 客户端。
// 投递是 at-most-once：发送缓冲满的客户端直接移除，断线期间的事件丢失。
type Hub struct {
	bus    *bus.Bus
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string]*topicHub
	ctx    context.Context
}

type topicHub struct {
	clients map[*Client]bool
	cancel  context.CancelFunc
}

// NewHub 创建订阅桥
func NewHub(ctx context.Context, eventBus *bus.Bus, logger *zap.Logger) *Hub {
	return &Hub{
		bus:    eventBus,
		logger: logger,
		topics: make(map[string]*topicHub),
		ctx:    ctx,
	}
}

// Register 把客户端挂到主题上；该主题的第一个客户端会触发总线订阅
func (h *Hub) Register(topic string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	th, ok := h.topics[topic]
	if !ok {
		topicCtx, cancel := context.WithCancel(h.ctx)
		th = &topicHub{
			clients: make(map[*Client]bool),
			cancel:  cancel,
		}
		h.topics[topic] = th
		go h.pump(topicCtx, topic)
	}
	th.clients[client] = true

	h.logger.Info("WebSocket client registered",
		zap.String("topic", topic),
		zap.Int("client_count", len(th.clients)),
	)
}

// Unregister 移除客户端；主题没有客户端后取消总线订阅
func (h *Hub) Unregister(topic string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	th, ok := h.topics[topic]
	if !ok {
		return
	}
	if _, ok := th.clients[client]; !ok {
		return
	}
	delete(th.clients, client)
	close(client.send)

	if len(th.clients) == 0 {
		th.cancel()
		delete(h.topics, topic)
	}

	h.logger.Info("WebSocket client unregistered",
		zap.String("topic", topic),
		zap.Int("client_count", len(th.clients)),
	)
}

// pump 消费总线订阅并广播到主题下的全部客户端
func (h *Hub) pump(ctx context.Context, topic string) {
	ch := h.bus.Subscribe(ctx, topic)
	for message := range ch {
		h.broadcast(topic, message)
	}
}

func (h *Hub) broadcast(topic string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	th, ok := h.topics[topic]
	if !ok {
		return
	}
	for client := range th.clients {
		select {
		case client.send <- message:
		default:
			// 客户端发送缓冲已满或已断开，移除（at-most-once，不等待）
			h.logger.Warn("WebSocket client send buffer full, removing",
				zap.String("topic", topic),
			)
			delete(th.clients, client)
			close(client.send)
		}
	}
	if len(th.clients) == 0 {
		th.cancel()
		delete(h.topics, topic)
	}
}
