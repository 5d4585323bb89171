package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/service"
)

// Connection is one websocket client. It is bound to a player after hello
// and watches at most one game at a time.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	playerID  string
	gameID    string
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, server *Server) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		server: server,
		logger: server.logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client without blocking.
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// send was closed by a concurrent Close
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection", "player", c.GetPlayer())
		_ = c.Close()
		return ErrConnectionClosed
	}
}

func (c *Connection) SetPlayer(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
}

func (c *Connection) GetPlayer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// Watch switches the game this connection receives broadcasts for and
// returns the previous one.
func (c *Connection) Watch(gameID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.gameID
	c.gameID = gameID
	return prev
}

func (c *Connection) GetGame() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gameID
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

type gameCommand func(s *service.GameService, ctx context.Context, gameID, playerID string) (service.Result, error)

var gameCommands = map[MessageType]gameCommand{
	MessageTypeJoinGame:     (*service.GameService).JoinGame,
	MessageTypeLeaveGame:    (*service.GameService).LeaveGame,
	MessageTypeStartGame:    (*service.GameService).StartGame,
	MessageTypeProposeCard:  (*service.GameService).ProposeCard,
	MessageTypeChangeTopic:  (*service.GameService).ChangeTopic,
	MessageTypeCancelGame:   (*service.GameService).CancelGame,
	MessageTypeForceEndGame: (*service.GameService).ForceEndGame,
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.GetPlayer())

	switch msg.Type {
	case MessageTypeHello:
		var data HelloData
		if err := msg.Decode(&data); err != nil {
			c.sendError(msg, ErrCodeInvalidMessage, "Failed to parse hello data")
			return
		}
		c.handleHello(msg, data)
		return
	}

	playerID := c.GetPlayer()
	if playerID == "" {
		c.sendError(msg, ErrCodeNotAuthenticated, "Send hello first")
		return
	}

	switch msg.Type {
	case MessageTypeCreateGame:
		var data CreateGameData
		if err := msg.Decode(&data); err != nil {
			c.sendError(msg, ErrCodeInvalidMessage, "Failed to parse create game data")
			return
		}
		c.handleCreateGame(msg, playerID, data)

	case MessageTypeGetGame:
		var data GameRefData
		if err := msg.Decode(&data); err != nil || data.GameID == "" {
			c.sendError(msg, ErrCodeInvalidMessage, "Failed to parse game reference")
			return
		}
		c.handleGetGame(msg, playerID, data.GameID)

	case MessageTypeDeleteGame:
		var data GameRefData
		if err := msg.Decode(&data); err != nil || data.GameID == "" {
			c.sendError(msg, ErrCodeInvalidMessage, "Failed to parse game reference")
			return
		}
		if err := c.server.service.DeleteGame(c.ctx, data.GameID, playerID); err != nil {
			c.sendServiceError(msg, err)
		}

	default:
		command, ok := gameCommands[msg.Type]
		if !ok {
			c.sendError(msg, ErrCodeUnknownType, "Unknown message type: "+msg.Type.String())
			return
		}
		var data GameRefData
		if err := msg.Decode(&data); err != nil || data.GameID == "" {
			c.sendError(msg, ErrCodeInvalidMessage, "Failed to parse game reference")
			return
		}
		// Watch first so the broadcast for this command reaches us too.
		prev := c.Watch(data.GameID)
		if _, err := command(c.server.service, c.ctx, data.GameID, playerID); err != nil {
			c.Watch(prev)
			c.sendServiceError(msg, err)
		}
	}
}

func (c *Connection) handleHello(msg *Message, data HelloData) {
	if data.PlayerID == "" {
		c.sendError(msg, ErrCodeInvalidMessage, "Player id required")
		return
	}
	name := data.Name
	if name == "" {
		name = data.PlayerID
	}
	p, err := c.server.service.Identity(c.ctx, data.PlayerID, name)
	if err != nil {
		c.sendServiceError(msg, err)
		return
	}
	c.SetPlayer(p.ID)
	c.logger.Info("Player connected", "player", p.ID, "name", p.Name)
	c.reply(msg, MessageTypeWelcome, WelcomeData{PlayerID: p.ID, Name: p.Name, Defaults: c.server.service.Defaults()})
}

func (c *Connection) handleCreateGame(msg *Message, playerID string, data CreateGameData) {
	res, err := c.server.service.CreateGame(c.ctx, service.CreateParams{
		ChannelID: data.ChannelID,
		CreatorID: playerID,
		Config:    data.Config,
	})
	if err != nil {
		c.sendServiceError(msg, err)
		return
	}
	// The game did not exist when the broadcast went out.
	c.Watch(res.Game.ID)
	c.reply(msg, MessageTypeGameState, res.View)
}

func (c *Connection) handleGetGame(msg *Message, playerID, gameID string) {
	view, err := c.server.service.View(c.ctx, gameID)
	if err != nil {
		c.sendServiceError(msg, err)
		return
	}
	c.Watch(gameID)
	c.reply(msg, MessageTypeGameState, view)
	if view.Status != game.StatusPlaying {
		return
	}
	if hand, err := c.server.service.Hand(c.ctx, gameID, playerID); err == nil {
		c.reply(msg, MessageTypeHand, hand)
	}
}

func (c *Connection) reply(req *Message, messageType MessageType, data any) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", messageType, "error", err)
		return
	}
	msg.RequestID = req.RequestID
	_ = c.SendMessage(msg)
}

func (c *Connection) sendError(req *Message, code, message string) {
	c.reply(req, MessageTypeError, ErrorData{Code: code, Message: message})
}

// sendServiceError reports a failed operation. Rule violations carry their
// message; anything else is logged and reported as internal.
func (c *Connection) sendServiceError(req *Message, err error) {
	var gameErr *game.Error
	if errors.As(err, &gameErr) {
		c.sendError(req, string(gameErr.Code), gameErr.Message)
		return
	}
	c.logger.Error("Operation failed", "type", req.Type, "player", c.GetPlayer(), "error", err)
	c.sendError(req, string(game.CodeInternal), "internal error")
}
