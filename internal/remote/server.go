package remote

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"
)

// Header names shared by Server and Client.
const (
	HeaderAPIKey   = "apikey"
	HeaderClientID = "X-Crewflo-Client"
)

// maxDocumentSize bounds the body of an upsert.
const maxDocumentSize = 16 << 20

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Addr to listen on (default ":8787")
	Addr string

	// APIKey required on every request; empty disables the check
	APIKey string

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:   ":8787",
		Logger: log.New(os.Stderr, "[server] ", log.LstdFlags),
	}
}

// rowPayload is the wire form of a Row.
type rowPayload struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Server exposes a DB and its Hub over HTTP and WebSocket.
type Server struct {
	db     *DB
	hub    *Hub
	config *ServerConfig
	logger *log.Logger

	listener net.Listener
	server   *http.Server

	// ctx ends open realtime streams on Stop
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server over db. The hub may be shared with in-process
// LocalBackends; pass nil to create a private one.
func NewServer(db *DB, hub *Hub, config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}
	if config.Addr == "" {
		config.Addr = ":8787"
	}
	if hub == nil {
		hub = NewHub(config.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		db:     db,
		hub:    hub,
		config: config,
		logger: config.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Hub returns the hub changes are published on.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.requireAPIKey)
	api.HandleFunc("/keys", s.handleKeys).Methods(http.MethodGet)
	api.HandleFunc("/rows/{key}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/rows/{key}", s.handlePut).Methods(http.MethodPut)
	api.HandleFunc("/rows/{key}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/realtime", s.handleRealtime).Methods(http.MethodGet)
	return r
}

// Start begins listening in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Sync server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop closes realtime streams and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping sync server")

	s.cancel()
	s.hub.Close()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Println("Sync server stopped")
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			key = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if key == "" {
			key = r.URL.Query().Get(HeaderAPIKey)
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.config.APIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.db.Keys(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		s.logger.Printf("Failed to list keys: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list keys")
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	row, err := s.db.Get(r.Context(), key)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logger.Printf("Failed to get %s: %v", key, err)
		writeError(w, http.StatusInternalServerError, "failed to read document")
		return
	}
	writeJSON(w, http.StatusOK, rowPayload{Key: row.Key, Data: row.Data, UpdatedAt: row.UpdatedAt})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxDocumentSize {
		writeError(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "body must be a JSON document")
		return
	}

	row, err := s.db.Upsert(r.Context(), key, json.RawMessage(body))
	if err != nil {
		s.logger.Printf("Failed to upsert %s: %v", key, err)
		writeError(w, http.StatusInternalServerError, "failed to write document")
		return
	}

	s.hub.Publish(Change{
		Key:       key,
		Data:      row.Data,
		Origin:    r.Header.Get(HeaderClientID),
		UpdatedAt: row.UpdatedAt,
	})
	writeJSON(w, http.StatusOK, rowPayload{Key: row.Key, Data: row.Data, UpdatedAt: row.UpdatedAt})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := s.db.Delete(r.Context(), key); err != nil {
		s.logger.Printf("Failed to delete %s: %v", key, err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRealtime upgrades to WebSocket and streams the changes of one key.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.CloseNow()

	sub := s.hub.Subscribe(key)
	defer sub.Close()

	// CloseRead handles control frames (pings) and cancels ctx once the
	// client goes away.
	ctx := conn.CloseRead(s.ctx)
	s.logger.Printf("Realtime client subscribed to %s (total: %d)", key, s.hub.SubscriberCount(key))

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case change, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusTryAgainLater, "subscription dropped")
				return
			}
			data, err := json.Marshal(change)
			if err != nil {
				s.logger.Printf("Failed to marshal change: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.logger.Printf("Failed to send to realtime client: %v", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
