// Package sync pushes browse session events to connected clients over line
// delimited JSON on TCP and over websockets.
package sync

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"osusume/internal/browse"
)

const writeTimeout = 2 * time.Second

// Hub tracks subscribers by the session whose events they receive.
type Hub struct {
	log zerolog.Logger

	mu        sync.Mutex
	clients   map[net.Conn]string
	wsClients map[*websocket.Conn]string
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:       log.With().Str("component", "hub").Logger(),
		clients:   make(map[net.Conn]string),
		wsClients: make(map[*websocket.Conn]string),
	}
}

func (h *Hub) Add(conn net.Conn, sessionID string) {
	h.mu.Lock()
	h.clients[conn] = sessionID
	h.mu.Unlock()
}

func (h *Hub) Remove(conn net.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) AddWS(ws *websocket.Conn, sessionID string) {
	h.mu.Lock()
	h.wsClients[ws] = sessionID
	h.mu.Unlock()
}

func (h *Hub) RemoveWS(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.wsClients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// Publish sends ev to the clients subscribed to its session.
func (h *Hub) Publish(ev browse.Event) {
	h.SendJSON(ev.SessionID, ev)
}

// SendJSON writes v as one line to every client of sessionID. Clients that
// fail to take the write are dropped.
func (h *Hub) SendJSON(sessionID string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("encode event failed")
		return
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	// TCP clients
	for c, sid := range h.clients {
		if sid != sessionID {
			continue
		}
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		w := bufio.NewWriter(c)
		if _, err := w.Write(b); err != nil {
			h.dropTCP(c, err)
			continue
		}
		if err := w.Flush(); err != nil {
			h.dropTCP(c, err)
			continue
		}
	}

	// WebSocket clients
	for ws, sid := range h.wsClients {
		if sid != sessionID {
			continue
		}
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			h.log.Debug().Err(err).Msg("ws client dropped")
			_ = ws.Close()
			delete(h.wsClients, ws)
		}
	}
}

// dropTCP is called with mu held.
func (h *Hub) dropTCP(c net.Conn, err error) {
	h.log.Debug().Err(err).Str("remote", c.RemoteAddr().String()).Msg("tcp client dropped")
	_ = c.Close()
	delete(h.clients, c)
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients) + len(h.wsClients)
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		TCPClients: len(h.clients),
		WSClients:  len(h.wsClients),
	}
}

type welcome struct {
	Type      string `json:"type"`
	Transport string `json:"transport"`
	SessionID string `json:"session_id"`
	Clients   int    `json:"clients"`
}

func (h *Hub) welcome(transport, sessionID string) []byte {
	b, _ := json.Marshal(welcome{Type: "welcome", Transport: transport, SessionID: sessionID, Clients: h.Count()})
	return append(b, '\n')
}
