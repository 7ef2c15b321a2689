// Package dashboard serves the control-plane HTTP interface: queue
// management and a status summary. It talks to the engine only through the
// persisted files, never through shared in-process state.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/autonet-code/molt/internal/queue"
)

// StatusFunc loads a status summary from the persisted state files.
type StatusFunc func() (any, error)

// Server wraps the HTTP listener and handlers for the control plane.
type Server struct {
	port   int
	queue  *queue.Queue
	status StatusFunc

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New prepares a control-plane server. The listener binds loopback only.
func New(port int, q *queue.Queue, status StatusFunc) *Server {
	return &Server{port: port, queue: q, status: status}
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("dashboard: already started")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("dashboard: listen %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/queue", s.handleQueue)
	mux.HandleFunc("/api/queue/", s.handleQueueItem)

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[dashboard] serve error: %v", err)
		}
	}()

	log.Printf("[dashboard] listening on http://%s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	return err
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	status, err := s.status()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false, "error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": status})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		posts, err := s.queue.List()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success": false, "error": err.Error(),
			})
			return
		}
		if posts == nil {
			posts = []queue.Post{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "queue": posts})

	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false, "error": "unable to read body",
			})
			return
		}
		var p queue.Post
		if err := json.Unmarshal(body, &p); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false, "error": "invalid JSON",
			})
			return
		}
		if p.Title == "" || p.Content == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false, "error": "title and content are required",
			})
			return
		}
		n, err := s.queue.Add(p)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success": false, "error": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "queue_length": n})

	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	indexStr := strings.TrimPrefix(r.URL.Path, "/api/queue/")
	index, err := strconv.Atoi(indexStr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "error": "invalid queue index",
		})
		return
	}
	if err := s.queue.Remove(index); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false, "error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"success": false, "error": "method not allowed",
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
