// Package debugserver exposes a running Interp's fiber and GC state to a
// local client, the same "let a client inspect a live VM" role the
// teacher's server/inspect_service.go played over Connect/gRPC. That
// package depends on a generated maggiev1connect stub this exercise
// cannot regenerate (no protoc, no Go toolchain runs allowed), so this
// package re-implements the role directly over net/http and
// github.com/gorilla/websocket: a GET /stats snapshot for one-shot
// polling and a GET /ws stream that pushes the same snapshot on an
// interval and forwards every internal/diag diagnostic as it is emitted.
package debugserver

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chazu/vo/internal/diag"
	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/gc"
)

// Snapshot is the JSON shape served by /stats and pushed over /ws.
type Snapshot struct {
	GC     gc.Stats             `json:"gc"`
	Fibers []fiber.FiberSnapshot `json:"fibers"`
}

// Source supplies the live state a Server reports; internal/interp.Interp
// satisfies it trivially (GC field, Sched field), kept as an interface
// here so this package never needs to import internal/interp and risk a
// cycle (interp would need debugserver to install a diag sink, and
// debugserver needs interp's types).
type Source interface {
	GCStats() gc.Stats
	FiberSnapshot() []fiber.FiberSnapshot
}

// Server is a debugserver instance bound to one Source. It also
// implements diag.Sink, so cmd/vo can register it into a diag.MultiSink
// and have every diagnostic fan out to connected websocket clients
// alongside stderr.
type Server struct {
	src Source

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	log *log.Logger
}

// New returns a Server reporting src's state. It serves no traffic until
// ListenAndServe is called.
func New(src Source) *Server {
	return &Server{
		src:      src,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
		log:      log.New(log.Writer(), "debugserver: ", log.LstdFlags),
	}
}

// SetLogger overrides the default logger.
func (s *Server) SetLogger(l *log.Logger) { s.log = l }

func (s *Server) snapshot() Snapshot {
	return Snapshot{GC: s.src.GCStats(), Fibers: s.src.FiberSnapshot()}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.log.Printf("encoding /stats response: %v", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("websocket upgrade failed: %v", err)
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	if err := conn.WriteJSON(s.snapshot()); err != nil {
		return
	}
	// Drain and discard anything the client sends — this endpoint is
	// push-only, but a connection whose reads are never serviced never
	// notices a close from the other side.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Emit implements diag.Sink: every diagnostic is broadcast to every
// currently connected websocket client as {"diagnostic": "..."}.
func (s *Server) Emit(d diag.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return
	}
	msg := struct {
		Diagnostic string `json:"diagnostic"`
	}{Diagnostic: d.String()}
	for conn := range s.clients {
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Printf("broadcasting diagnostic to a client: %v", err)
		}
	}
}

// broadcastLoop pushes a fresh snapshot to every connected client every
// interval, until stop is closed.
func (s *Server) broadcastLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := s.snapshot()
			s.mu.Lock()
			for conn := range s.clients {
				if err := conn.WriteJSON(snap); err != nil {
					s.log.Printf("broadcasting snapshot to a client: %v", err)
				}
			}
			s.mu.Unlock()
		}
	}
}

// ListenAndServe starts serving /stats and /ws on addr, pushing a fresh
// snapshot to every websocket client every interval, until stop is
// closed. It blocks like http.ListenAndServe; run it in its own
// goroutine alongside the interpreter's run loop.
func (s *Server) ListenAndServe(addr string, interval time.Duration, stop <-chan struct{}) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWS)

	go s.broadcastLoop(interval, stop)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-stop
		srv.Close()
	}()
	return srv.ListenAndServe()
}
