package server

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thraizz/oath-server-go/internal/config"
	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

// Message types sent by clients.
const (
	MsgStartGame      = "start_game"
	MsgJoinGame       = "join_game"
	MsgStartAction    = "start_action"
	MsgContinueAction = "continue_action"
	MsgCancelAction   = "cancel_action"
	MsgPeek           = "peek"
	MsgView           = "view"
)

// Message types sent by the server.
const (
	MsgGameState = "game_state"
	MsgResult    = "result"
	MsgOpen      = "open"
	MsgEvent     = "event"
	MsgError     = "error"
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type       string              `json:"type"`
	RequestID  string              `json:"request_id,omitempty"`
	GameID     string              `json:"game_id,omitempty"`
	PlayerID   string              `json:"player_id,omitempty"`
	Action     string              `json:"action,omitempty"`
	Seed       uint64              `json:"seed,omitempty"`
	Players    int                 `json:"players,omitempty"`
	Submission map[string][]string `json:"submission,omitempty"`
	Data       any                 `json:"data,omitempty"`
	Error      *WSError            `json:"error,omitempty"`
}

// WSError carries an engine error code to the client.
type WSError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// Client is one WebSocket connection. It follows at most one game.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu          sync.Mutex
	gameID      string
	playerID    string
	unsubscribe func()
}

// Hub serves WebSocket clients and forwards each game's notifications to the
// clients following it.
type Hub struct {
	service  *Service
	broker   *Broker
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub(cfg config.WebSocketConfig, service *Service, broker *Broker, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		service: service,
		broker:  broker,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		clients: make(map[*Client]struct{}),
	}
}

// originChecker allows any origin when the list is empty or holds "*".
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// ServeHTTP upgrades the connection and runs the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))

	go c.writePump()
	c.readPump()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	c.follow("", "")
	close(c.send)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.reply(WSMessage{Type: MsgError, Error: &WSError{Code: string(oatherr.CodeInvalidArgument), Message: "malformed message"}})
			continue
		}
		c.handle(context.Background(), msg)
	}
}

func (c *Client) writePump() {
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
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(ctx context.Context, msg WSMessage) {
	svc := c.hub.service
	gameID, playerID := c.current()
	if msg.GameID == "" {
		msg.GameID = gameID
	}
	if msg.PlayerID == "" {
		msg.PlayerID = playerID
	}
	player := state.Key(msg.PlayerID)

	switch msg.Type {
	case MsgStartGame:
		snap, err := svc.StartGame(ctx, msg.Seed, msg.Players)
		if err != nil {
			c.fail(msg, err)
			return
		}
		c.follow(snap.ID, player)
		c.reply(WSMessage{Type: MsgGameState, RequestID: msg.RequestID, GameID: snap.ID, Data: snap})

	case MsgJoinGame:
		snap, err := svc.View(msg.GameID)
		if err != nil {
			c.fail(msg, err)
			return
		}
		c.follow(snap.ID, player)
		c.reply(WSMessage{Type: MsgGameState, RequestID: msg.RequestID, GameID: snap.ID, Data: snap})

	case MsgStartAction:
		res, err := svc.StartAction(ctx, msg.GameID, player, msg.Action)
		c.result(msg, res, err)

	case MsgContinueAction:
		res, err := svc.ContinueAction(ctx, msg.GameID, player, msg.Submission)
		c.result(msg, res, err)

	case MsgCancelAction:
		res, err := svc.CancelAction(ctx, msg.GameID, player)
		c.result(msg, res, err)

	case MsgPeek:
		open, err := svc.Peek(msg.GameID)
		if err != nil {
			c.fail(msg, err)
			return
		}
		c.reply(WSMessage{Type: MsgOpen, RequestID: msg.RequestID, GameID: msg.GameID, Data: open})

	case MsgView:
		snap, err := svc.View(msg.GameID)
		if err != nil {
			c.fail(msg, err)
			return
		}
		c.reply(WSMessage{Type: MsgGameState, RequestID: msg.RequestID, GameID: msg.GameID, Data: snap})

	default:
		c.fail(msg, oatherr.InvalidArgumentf("unknown message type %q", msg.Type))
	}
}

func (c *Client) result(msg WSMessage, res *game.Result, err error) {
	if err != nil {
		c.fail(msg, err)
		return
	}
	c.reply(WSMessage{Type: MsgResult, RequestID: msg.RequestID, GameID: res.GameID, Data: res})
}

func (c *Client) fail(msg WSMessage, err error) {
	c.hub.logger.Debug("websocket request rejected",
		zap.String("type", msg.Type),
		zap.String("game_id", msg.GameID),
		zap.Error(err))
	c.reply(WSMessage{
		Type:      MsgError,
		RequestID: msg.RequestID,
		GameID:    msg.GameID,
		Error: &WSError{
			Code:        string(oatherr.GetCode(err)),
			Message:     err.Error(),
			Recoverable: oatherr.IsRecoverable(err),
		},
	})
}

// reply queues msg, dropping it when the client is not keeping up.
func (c *Client) reply(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("encode websocket message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("websocket send buffer full", zap.String("type", msg.Type))
	}
}

// current returns the followed game and the seat the client plays.
func (c *Client) current() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameID, c.playerID
}

// follow switches the client to gameID's notifications. An empty id stops
// following.
func (c *Client) follow(gameID string, player state.Key) {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.gameID = gameID
	c.playerID = string(player)
	if gameID == "" {
		c.mu.Unlock()
		return
	}
	notifications, unsubscribe := c.hub.broker.Subscribe(gameID, sendBuffer)
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	go func() {
		for n := range notifications {
			c.reply(WSMessage{Type: MsgEvent, GameID: n.GameID, PlayerID: n.PlayerID, Data: n.Event})
		}
	}()
}

// NewWebSocketServer mounts hub on cfg.Path.
func NewWebSocketServer(cfg config.WebSocketConfig, hub *Hub) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
