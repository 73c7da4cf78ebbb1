// Package httpapi — feed.go: живая лента биржи. Клиент получает текущую серию
// сразу после подключения, затем новую серию после каждого тика.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/ledger"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	// медленный клиент теряет старые тики, а не тормозит рассылку
	clientBuffer = 4
)

// Feed рассылает серию биржи подключённым websocket-клиентам.
type Feed struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	closed  bool
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{} // закрывает лента
	gone chan struct{} // закрывает readLoop
}

// NewFeed создаёт пустую ленту.
func NewFeed() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// Clients — число подключённых клиентов.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Broadcast отправляет серию всем клиентам. Подходит как слушатель stock.OnTick.
func (f *Feed) Broadcast(series ledger.StockSeries) {
	msg, err := encodeTick(series)
	if err != nil {
		log.WithError(err).Error("Ошибка кодирования тика биржи")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- msg:
		default:
			// буфер полон: выбрасываем самый старый тик
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- msg:
			default:
			}
		}
	}
}

// Close отключает всех клиентов и перестаёт принимать новых.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for c := range f.clients {
		close(c.done)
		delete(f.clients, c)
	}
}

// Serve переводит запрос в websocket и держит соединение до отключения клиента.
func (f *Feed) Serve(w http.ResponseWriter, r *http.Request, initial ledger.StockSeries) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	first, err := encodeTick(initial)
	if err != nil {
		conn.Close()
		return
	}

	c := &feedClient{
		conn: conn,
		send: make(chan []byte, clientBuffer),
		done: make(chan struct{}),
		gone: make(chan struct{}),
	}
	c.send <- first
	if !f.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	log.WithField("remote", r.RemoteAddr).Debug("Клиент ленты биржи подключён")

	go c.readLoop()
	c.writeLoop()
	f.remove(c)
	conn.Close()
}

func (f *Feed) add(c *feedClient) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.clients[c] = struct{}{}
	return true
}

func (f *Feed) remove(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.done)
	}
}

// readLoop читает только control-фреймы; ошибка чтения значит, что клиент ушёл.
func (c *feedClient) readLoop() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	defer close(c.gone)
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (c *feedClient) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-c.gone:
			return
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// tick — сообщение ленты.
type tick struct {
	Type    string              `json:"type"`
	Pct     float64             `json:"pct"`
	At      time.Time           `json:"at"`
	History []ledger.StockPoint `json:"history"`
}

func encodeTick(s ledger.StockSeries) ([]byte, error) {
	return json.Marshal(tick{Type: "stock", Pct: s.CurrentPct, At: s.LastTick, History: s.History})
}
