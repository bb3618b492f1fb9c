// websocket/constants.go
package websocket

import (
	"time"
)

// Константы для WebSocket-соединения
const (
	// Время ожидания записи сообщения клиенту
	writeWait = 10 * time.Second

	// Время ожидания сообщения от клиента
	pongWait = 60 * time.Second

	// Период отправки пинг-сообщений
	pingPeriod = (pongWait * 9) / 10

	// Клиенты присылают только служебные сообщения
	maxMessageSize = 4 * 1024

	// Размер очереди исходящих сообщений клиента
	sendBufferSize = 64

	// Размер очереди событий менеджера
	broadcastBufferSize = 256
)

// Типы служебных сообщений
const (
	MessageWelcome = "welcome"
	MessagePing    = "ping"
	MessagePong    = "pong"
	MessageEvent   = "event"
)
