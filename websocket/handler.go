// websocket/handler.go
package websocket

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ServeWS переводит HTTP-запрос в WebSocket и подписывает клиента на события запусков
func (manager *Manager) ServeWS(w http.ResponseWriter, r *http.Request) {
	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		manager.logger.Warn("Ошибка при установке WebSocket-соединения: %v", err)
		return
	}

	client := &Client{
		ID:     uuid.NewString(),
		Socket: socket,
		Send:   make(chan []byte, sendBufferSize),
	}

	welcome, err := json.Marshal(Message{Type: MessageWelcome, ClientID: client.ID})
	if err != nil {
		socket.Close()
		return
	}
	client.Send <- welcome

	if !manager.register(client) {
		socket.Close()
		return
	}

	go client.writePump(manager)
	go client.readPump(manager)
}
