// Package debugserver exposes an HTTP+WebSocket observability surface
// for a device controller: registered interfaces, connection state,
// and a live feed of state changes and received publishes, grounded on the
// teacher's server.Server (ServeMux-based Register/EndPoints) and its
// intended websocket broadcast (server/ws_test.go) extended into a
// working implementation.
package debugserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is broadcast to every connected websocket client whenever the
// device controller observes something worth showing a human:
// a state transition or an incoming publish (topic and raw payload).
type Event struct {
	Kind    string `json:"kind"`
	Topic   string `json:"topic,omitempty"`
	Payload string `json:"payload,omitempty"`
	State   string `json:"state,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin always allows the upgrade: this server is meant for
// local/operator debugging, not for exposure to untrusted browsers.
func checkOrigin(r *http.Request) bool {
	return true
}

// client is one connected websocket debugger, with its own buffered
// write queue so a slow reader can't block the broadcaster.
type client struct {
	conn   *websocket.Conn
	writeQ chan Event
	done   chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		writeQ: make(chan Event, 32),
		done:   make(chan struct{}),
	}
}

func (c *client) run() {
	defer c.conn.Close()
	for {
		select {
		case ev, ok := <-c.writeQ:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// IntrospectionProvider reports the device's currently-registered
// interfaces for the /debug/introspection endpoint.
type IntrospectionProvider interface {
	String() string
}

// StateProvider reports the connection state for the /debug/state
// endpoint.
type StateProvider interface {
	String() string
}

// Server is the debug HTTP+WS surface. It is mounted, not started: a
// caller embeds Handler() into its own http.Server or test recorder.
type Server struct {
	mux *http.ServeMux

	mu      sync.Mutex
	clients []*client

	Introspection IntrospectionProvider
	State         StateProvider
}

// New builds a Server with its routes registered.
func New() *Server {
	s := &Server{mux: http.NewServeMux()}
	s.mux.HandleFunc("/debug/introspection", s.serveIntrospection)
	s.mux.HandleFunc("/debug/state", s.serveState)
	s.mux.HandleFunc("/debug/ws", s.serveWS)
	return s
}

// Handler returns the mountable http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) serveIntrospection(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body := ""
	if s.Introspection != nil {
		body = s.Introspection.String()
	}
	if err := json.NewEncoder(w).Encode(map[string]string{"interfaces": body}); err != nil {
		slog.Error("debugserver: encode introspection failed", "error", err)
	}
}

func (s *Server) serveState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	state := ""
	if s.State != nil {
		state = s.State.String()
	}
	if err := json.NewEncoder(w).Encode(map[string]string{"state": state}); err != nil {
		slog.Error("debugserver: encode state failed", "error", err)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("debugserver: websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn)
	s.mu.Lock()
	s.clients = append(s.clients, c)
	s.mu.Unlock()

	go c.run()
}

// Broadcast pushes ev to every connected debug client, dropping it for
// any client whose write queue is full rather than blocking.
func (s *Server) Broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alive := s.clients[:0]
	for _, c := range s.clients {
		select {
		case <-c.done:
			continue
		default:
		}
		select {
		case c.writeQ <- ev:
			alive = append(alive, c)
		default:
			alive = append(alive, c)
		}
	}
	s.clients = alive
}

// ClientCount reports how many websocket debuggers are connected.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
