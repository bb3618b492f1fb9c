// websocket/read_pump.go
package websocket

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// readPump обрабатывает чтение служебных сообщений от клиента
func (c *Client) readPump(manager *Manager) {
	defer func() {
		// Очередь могла быть закрыта менеджером
		if r := recover(); r != nil {
			manager.logger.Warn("Паника при чтении сообщений клиента %s: %v", c.ID, r)
		}

		manager.unregister(c)
		c.Socket.Close()
		manager.logger.Debug("Завершение readPump для клиента %s", c.ID)
	}()

	c.Socket.SetReadLimit(maxMessageSize)
	c.Socket.SetReadDeadline(time.Now().Add(pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				manager.logger.Warn("Ошибка чтения от клиента %s: %v", c.ID, err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			manager.logger.Debug("Некорректное сообщение от клиента %s: %v", c.ID, err)
			continue
		}

		switch msg.Type {
		case MessagePing:
			c.Socket.SetReadDeadline(time.Now().Add(pongWait))
			reply, err := json.Marshal(Message{Type: MessagePong, ClientID: c.ID})
			if err != nil {
				continue
			}
			select {
			case c.Send <- reply:
			default:
			}
		default:
			manager.logger.Debug("Неизвестный тип сообщения от клиента %s: %s", c.ID, msg.Type)
		}
	}
}
