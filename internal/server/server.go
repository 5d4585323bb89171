// Package server exposes the game service over websockets and a small
// read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/service"
)

// Server is the websocket gateway. It observes the game service and fans
// committed changes out to connected clients.
type Server struct {
	addr        string
	service     *service.GameService
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	logger      *log.Logger
	mu          sync.RWMutex
}

// NewServer creates a server and subscribes it to svc.
func NewServer(addr string, svc *service.GameService, logger *log.Logger) *Server {
	s := &Server{
		addr:    addr,
		service: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		logger:      logger.WithPrefix("server"),
	}
	svc.Subscribe(s)
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("GET /games/{id}", s.handleGetGame)
	return mux
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting WebSocket server", "addr", s.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	s.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Stop closes every client connection.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		_ = conn.Close()
	}
}

func (s *Server) register(conn *Connection) {
	s.mu.Lock()
	s.connections[conn] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "total", total)
}

func (s *Server) unregister(conn *Connection) {
	s.mu.Lock()
	delete(s.connections, conn)
	total := len(s.connections)
	s.mu.Unlock()
	_ = conn.Close()
	s.logger.Info("Client disconnected", "player", conn.GetPlayer(), "total", total)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s)
	s.register(client)
	client.Start()

	go func() {
		<-client.ctx.Done()
		s.unregister(client)
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.View(r.Context(), r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, game.ErrNotFound) {
			status = http.StatusNotFound
		} else {
			s.logger.Error("Failed to load game", "game", r.PathValue("id"), "error", err)
		}
		writeJSON(w, status, ErrorData{Code: string(game.CodeOf(err)), Message: http.StatusText(status)})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OnEvent implements service.Observer.
func (s *Server) OnEvent(ctx context.Context, event service.Event) {
	if event.Type == service.EventGameDeleted {
		s.broadcast(event.GameID, MessageTypeGameDeleted, GameDeletedData{GameID: event.GameID})
		return
	}

	res := event.Result
	s.broadcast(event.GameID, MessageTypeGameState, res.View)
	for _, hand := range res.Hands {
		s.sendToPlayer(hand.PlayerID, MessageTypeHand, hand)
	}

	switch event.Type {
	case service.EventCardProposed:
		if res.Resolution != nil {
			s.broadcast(event.GameID, MessageTypeCardProposed, cardProposedFromResult(res))
		}
	case service.EventGameEnded:
		s.broadcast(event.GameID, MessageTypeGameEnded, gameEndedFromResult(res))
	}
}

// broadcast sends a message to every connection watching a game.
func (s *Server) broadcast(gameID string, messageType MessageType, data any) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		s.logger.Error("Failed to create message", "type", messageType, "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for conn := range s.connections {
		if conn.GetGame() != gameID {
			continue
		}
		if err := conn.SendMessage(msg); err != nil {
			s.logger.Error("Failed to send message to client", "error", err, "player", conn.GetPlayer())
			continue
		}
		count++
	}
	s.logger.Debug("Broadcast message", "game", gameID, "type", messageType, "recipients", count)
}

// sendToPlayer sends a private message to every connection of one player.
func (s *Server) sendToPlayer(playerID string, messageType MessageType, data any) int {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		s.logger.Error("Failed to create message", "type", messageType, "error", err)
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for conn := range s.connections {
		if conn.GetPlayer() == playerID && conn.SendMessage(msg) == nil {
			count++
		}
	}
	return count
}

// ConnectedPlayers returns the ids of authenticated connections.
func (s *Server) ConnectedPlayers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var players []string
	for conn := range s.connections {
		if playerID := conn.GetPlayer(); playerID != "" {
			players = append(players, playerID)
		}
	}
	return players
}
