package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/pkg/idgen"
	"github.com/gorilla/websocket"
)

// Number of messages that we will buffer on the send side of each websocket,
// before dropping messages to that client.
const WebSocketSendBufferSize = 50

// Hub pushes events to every connected websocket client
type Hub struct {
	Log logs.Log

	// If not nil, Greeting is sent to every client as soon as it connects
	Greeting func() Event

	clientsLock sync.Mutex
	clients     map[uint32]*hubClient
	nextID      idgen.Uint32
}

type hubClient struct {
	log         logs.Log
	id          uint32
	sendQueue   chan []byte
	closed      atomic.Bool
	nDropped    int64
	nSent       int64
	lastDropMsg time.Time
}

func NewHub(log logs.Log) *Hub {
	return &Hub{
		Log:     logs.NewPrefixLogger(log, "Hub"),
		clients: map[uint32]*hubClient{},
	}
}

// Number of connected clients
func (h *Hub) NumClients() int {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	return len(h.clients)
}

// Emit queues the event for every client. Slow clients lose events instead of blocking us.
func (h *Hub) Emit(ev Event) {
	msg, err := json.Marshal(&ev)
	if err != nil {
		h.Log.Errorf("Failed to marshal %v event: %v", ev.Type, err)
		return
	}
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	for _, c := range h.clients {
		c.enqueue(msg)
	}
}

// Run services the websocket until it is closed by the client.
// This function blocks, so it is typically called directly from the HTTP handler that upgraded the connection.
func (h *Hub) Run(conn *websocket.Conn) {
	c := &hubClient{
		id:        h.nextID.Next(),
		sendQueue: make(chan []byte, WebSocketSendBufferSize),
	}
	c.log = logs.NewPrefixLogger(h.Log, fmt.Sprintf("WebSocket %v", c.id))
	c.log.Infof("Client connected")

	if h.Greeting != nil {
		greeting := h.Greeting()
		if msg, err := json.Marshal(&greeting); err == nil {
			c.enqueue(msg)
		}
	}

	h.clientsLock.Lock()
	h.clients[c.id] = c
	h.clientsLock.Unlock()

	writerDone := make(chan bool)
	go c.webSocketWriter(conn, writerDone)

	// The client doesn't send us anything meaningful, but we must read in order to
	// process control messages, and to detect when the connection closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.clientsLock.Lock()
	delete(h.clients, c.id)
	h.clientsLock.Unlock()

	c.closed.Store(true)
	close(c.sendQueue)
	<-writerDone
	conn.Close()
	c.log.Infof("Client disconnected. Sent %v, dropped %v", c.nSent, c.nDropped)
}

// Must be called with the hub's clientsLock held, which also serializes enqueue against close(sendQueue)
func (c *hubClient) enqueue(msg []byte) {
	if c.closed.Load() {
		return
	}
	select {
	case c.sendQueue <- msg:
		c.nSent++
	default:
		c.nDropped++
		now := time.Now()
		if now.Sub(c.lastDropMsg) > 5*time.Second {
			c.log.Warnf("Dropped %v/%v messages", c.nDropped, c.nDropped+c.nSent)
			c.lastDropMsg = now
		}
	}
}

// Run a goroutine that is responsible for writing to the websocket, so that
// a slow browser never blocks the emitter.
func (c *hubClient) webSocketWriter(conn *websocket.Conn, done chan bool) {
	for msg := range c.sendQueue {
		if c.closed.Load() {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.log.Infof("Error writing to websocket: %v", err)
		}
	}
	close(done)
}
