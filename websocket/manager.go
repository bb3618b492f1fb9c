// websocket/manager.go
package websocket

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// Создание нового менеджера WebSocket-соединений
func NewManager(logger *utils.ETLLogger) *Manager {
	return &Manager{
		Broadcast:  make(chan []byte, broadcastBufferSize),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Clients:    make(map[string]*Client),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run запускает работу менеджера до отмены контекста
func (manager *Manager) Run(ctx context.Context) {
	defer func() {
		close(manager.done)
		manager.closeAll()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-manager.Register:
			manager.Clients[client.ID] = client
			manager.setCount(len(manager.Clients))
			manager.logger.Info("Клиент %s подключился", client.ID)

		case client := <-manager.Unregister:
			if _, ok := manager.Clients[client.ID]; ok {
				delete(manager.Clients, client.ID)
				close(client.Send)
				manager.setCount(len(manager.Clients))
				manager.logger.Info("Клиент %s отключился", client.ID)
			}

		case message := <-manager.Broadcast:
			manager.broadcast(message)
		}
	}
}

// broadcast отправляет сообщение всем подключенным клиентам.
// Клиент с переполненной очередью отключается.
func (manager *Manager) broadcast(message []byte) {
	for _, client := range manager.Clients {
		select {
		case client.Send <- message:
		default:
			close(client.Send)
			delete(manager.Clients, client.ID)
			manager.logger.Warn("Клиент %s не успевает читать события, соединение закрыто", client.ID)
		}
	}
	manager.setCount(len(manager.Clients))
}

func (manager *Manager) closeAll() {
	for id, client := range manager.Clients {
		close(client.Send)
		delete(manager.Clients, id)
	}
	manager.setCount(0)
}

func (manager *Manager) setCount(n int) {
	manager.countMutex.Lock()
	manager.clientCount = n
	manager.countMutex.Unlock()
}

// register регистрирует клиента, если менеджер еще работает
func (manager *Manager) register(client *Client) bool {
	select {
	case manager.Register <- client:
		return true
	case <-manager.done:
		return false
	}
}

// unregister снимает клиента с регистрации, если менеджер еще работает
func (manager *Manager) unregister(client *Client) {
	select {
	case manager.Unregister <- client:
	case <-manager.done:
	}
}

// ClientCount возвращает число подключенных клиентов
func (manager *Manager) ClientCount() int {
	manager.countMutex.RLock()
	defer manager.countMutex.RUnlock()
	return manager.clientCount
}

// Publish ставит событие запуска в очередь рассылки.
// При заполненной очереди событие отбрасывается.
func (manager *Manager) Publish(event models.RunEvent) {
	data, err := json.Marshal(Message{Type: MessageEvent, Event: &event})
	if err != nil {
		manager.logger.Error("Ошибка сериализации события: %v", err)
		return
	}

	select {
	case manager.Broadcast <- data:
	default:
		manager.logger.Warn("Очередь событий переполнена, событие %s отброшено", event.Type)
	}
}
