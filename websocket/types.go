// websocket/types.go
package websocket

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/LilVoxy/wdi_pipeline/ETL/models"
	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// Структура сообщения для обмена через WebSocket
type Message struct {
	Type     string           `json:"type"`
	ClientID string           `json:"clientId,omitempty"`
	Event    *models.RunEvent `json:"event,omitempty"`
}

// Клиент WebSocket
type Client struct {
	ID     string
	Socket *websocket.Conn
	Send   chan []byte
}

// Менеджер WebSocket-соединений, рассылающий события запусков ETL
type Manager struct {
	Clients    map[string]*Client
	Broadcast  chan []byte
	Register   chan *Client
	Unregister chan *Client
	logger     *utils.ETLLogger
	done       chan struct{}

	// Число клиентов читается из HTTP-обработчиков
	countMutex  sync.RWMutex
	clientCount int
}

// Конфигурация WebSocket-соединения
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}
