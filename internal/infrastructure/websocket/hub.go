package websocket

import (
	"encoding/json"
	"sync"
)

// Hub WebSocket 连接管理中心
// 连接按任务 ID 订阅；jobID 为空表示订阅全部任务进度
type Hub struct {
	// 按任务 ID 分组的连接
	topics map[string]map[*Connection]bool
	// 注册连接
	register chan *Connection
	// 注销连接
	unregister chan *Connection
	// 广播消息
	broadcast chan *Message
	mu        sync.RWMutex
}

// Connection WebSocket 连接
type Connection struct {
	JobID string
	Send  chan []byte
}

// Message 消息
type Message struct {
	JobID string
	Data  []byte
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		topics:     make(map[string]map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *Message),
	}
}

// Run 运行 Hub（需要在 goroutine 中运行）
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.topics[conn.JobID] == nil {
				h.topics[conn.JobID] = make(map[*Connection]bool)
			}
			h.topics[conn.JobID][conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if topic, ok := h.topics[conn.JobID]; ok {
				if _, ok := topic[conn]; ok {
					delete(topic, conn)
					close(conn.Send)
					if len(topic) == 0 {
						delete(h.topics, conn.JobID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			h.deliver(msg.JobID, msg.Data)
			// 空 JobID 订阅者接收所有任务的进度
			if msg.JobID != "" {
				h.deliver("", msg.Data)
			}
			h.mu.Unlock()
		}
	}
}

// deliver 向指定主题投递消息，慢连接直接断开
func (h *Hub) deliver(jobID string, data []byte) {
	topic, ok := h.topics[jobID]
	if !ok {
		return
	}
	for conn := range topic {
		select {
		case conn.Send <- data:
		default:
			close(conn.Send)
			delete(topic, conn)
		}
	}
}

// Start 启动 Hub（启动后台 goroutine）
func (h *Hub) Start() {
	go h.Run()
}

// Register 注册连接
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister 注销连接
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastJobProgress 向任务的订阅者广播进度
func (h *Hub) BroadcastJobProgress(jobID string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	h.broadcast <- &Message{
		JobID: jobID,
		Data:  jsonData,
	}
	return nil
}
