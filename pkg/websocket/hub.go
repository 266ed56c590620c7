package websocket

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

const broadcastBufferSize = 256

// Hub управляет подключениями и рассылкой сообщений.
// Карту клиентов трогает только горутина Run.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Info("Клиент WebSocket подключен", zap.String("workcenter_id", client.WorkcenterID), zap.Int("clients", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Info("Клиент WebSocket отсоединен", zap.String("workcenter_id", client.WorkcenterID))
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.accepts(msg.workcenterID) {
					continue
				}
				select {
				case client.Send <- msg.data:
				default:
					// медленный клиент отключается
					close(client.Send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Add регистрирует клиента. false - хаб уже остановлен.
func (h *Hub) Add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast ставит сообщение в очередь рассылки и не блокирует вызывающего.
// Пустой workcenterID - сообщение для всех клиентов.
func (h *Hub) Broadcast(messageType, workcenterID string, payload interface{}) error {
	data, err := json.Marshal(Envelope{
		Type:         messageType,
		WorkcenterID: workcenterID,
		Payload:      payload,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("Ошибка сериализации сообщения для WebSocket", zap.Error(err))
		return err
	}

	select {
	case h.broadcast <- outbound{workcenterID: workcenterID, data: data}:
	default:
		h.logger.Warn("Очередь рассылки WebSocket переполнена, сообщение отброшено", zap.String("type", messageType))
	}
	return nil
}
