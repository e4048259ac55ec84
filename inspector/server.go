// Copyright 2024 The probejs Authors
// This file is part of probejs.

package inspector

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// Server multiplexes any number of named Sessions behind one HTTP+
// websocket listener: `GET /sessions` lists active session ids, `GET
// /sessions/:id/ws` upgrades to the control protocol described by the
// command and event types.
type Server struct {
	mu       sync.Mutex
	sessions map[string]*Session
	router   *httprouter.Router
}

// NewServer creates an empty Server; call Register to attach sessions
// before (or after) starting it with ListenAndServe.
func NewServer() *Server {
	s := &Server{sessions: make(map[string]*Session)}
	router := httprouter.New()
	router.GET("/sessions", s.handleList)
	router.GET("/sessions/:id/ws", s.handleWS)
	s.router = router
	return s
}

// Register attaches sess under id, making it reachable at
// /sessions/:id/ws. Registering over an existing id replaces it.
func (s *Server) Register(id string, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sess
}

// Unregister removes id, so new connections to it get a 404; a websocket
// connection that is already open keeps the Session it resolved and goes
// on serving commands against it.
func (s *Server) Unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Handler returns the Server's routes wrapped in a permissive CORS policy,
// the shape a locally-hosted debug UI needs to reach the server from a
// browser origin that differs from the server's own.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{http.MethodGet}})
	return c.Handler(s.router)
}

// ListenAndServe starts the server on addr; it blocks until the listener
// fails, matching net/http.ListenAndServe's own contract.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ids)
}

// upgrader accepts any origin: this server is meant to run on localhost
// for a developer's own debug UI, not as a public-facing endpoint.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// command is one client-to-server control frame.
type command struct {
	Type string `json:"type"` // "pause", "resume", "step", "status", or "frames"
}

// event is one server-to-client frame.
type event struct {
	Type   string      `json:"type"`
	Paused bool        `json:"paused,omitempty"`
	Frames interface{} `json:"frames,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var cmd command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		switch cmd.Type {
		case "pause":
			sess.Pause()
		case "resume":
			sess.Resume()
		case "step":
			sess.Step()
		case "status":
			if err := conn.WriteJSON(event{Type: "status", Paused: sess.Paused()}); err != nil {
				return
			}
		case "frames":
			if err := conn.WriteJSON(event{Type: "frames", Frames: sess.Frames()}); err != nil {
				return
			}
		}
	}
}
