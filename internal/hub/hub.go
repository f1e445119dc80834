package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 256
)

var ErrForeignSession = errors.New("session belongs to another user")

// Broker moves published events to the clients subscribed to a topic.
type Broker interface {
	Attach(ctx context.Context, client *Client) error
	Detach(client *Client)
	Subscribe(ctx context.Context, client *Client, topics ...string) error
	Unsubscribe(ctx context.Context, client *Client, topics ...string) error
	Publish(ctx context.Context, topic string, payload string) error
}

type Client struct {
	UserID    int64
	SessionID int64

	conn  *websocket.Conn
	send  chan string
	ctx   context.Context
	close context.CancelFunc

	// guards views, held across broker calls so a view switch is atomic
	mutex sync.Mutex
	views views

	// set by the redis broker
	pubsub pubsubConn
}

func NewClient(userID int64, sessionID int64) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		UserID:    userID,
		SessionID: sessionID,
		send:      make(chan string, sendBufferSize),
		ctx:       ctx,
		close:     cancel,
		views:     newViews(),
	}
}

// Messages is the outgoing queue of the client.
func (c *Client) Messages() <-chan string {
	return c.send
}

func (c *Client) deliver(message string) bool {
	select {
	case <-c.ctx.Done():
		return false
	case c.send <- message:
		return true
	default:
		return false
	}
}

type Hub struct {
	sugar  *zap.SugaredLogger
	broker Broker

	clientsMutex sync.Mutex
	clients      map[int64]*Client

	upgrader websocket.Upgrader
}

func New(sugar *zap.SugaredLogger, broker Broker) *Hub {
	return &Hub{
		sugar:   sugar,
		broker:  broker,
		clients: make(map[int64]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// HandleClient upgrades the request and serves the websocket until the
// client disconnects.
func (h *Hub) HandleClient(w http.ResponseWriter, r *http.Request, userID int64, sessionID int64) {
	h.sugar.Debugf("Connecting user ID [%d] to WebSocket", userID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered the request
		h.sugar.Debug(err)
		return
	}
	defer conn.Close()

	client := NewClient(userID, sessionID)
	client.conn = conn

	err = h.Register(client)
	if err != nil {
		h.sugar.Error(err)
		return
	}
	defer h.Unregister(client)

	go h.writePump(client)

	// listening to incoming messages directly from client, only control
	// frames are expected
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.sugar.Error(err)
			}
			break
		}
	}
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-client.ctx.Done():
			_ = client.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case message := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := client.conn.WriteMessage(websocket.TextMessage, []byte(message))
			if err != nil {
				h.sugar.Debug(err)
				client.close()
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := client.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				client.close()
				return
			}
		}
	}
}

// Register adds the client to the hub and subscribes it to its own user topic.
// A reconnect with the same session replaces the old connection, as long as
// both belong to the same user.
func (h *Hub) Register(client *Client) error {
	h.clientsMutex.Lock()
	old, exists := h.clients[client.SessionID]
	if exists && old.UserID != client.UserID {
		h.clientsMutex.Unlock()
		return fmt.Errorf("%w: user ID [%d] tried to take over session ID [%d] of user ID [%d]", ErrForeignSession, client.UserID, client.SessionID, old.UserID)
	}
	h.clients[client.SessionID] = client
	h.clientsMutex.Unlock()

	if exists {
		h.sugar.Debugf("Session ID [%d] reconnected, dropping old connection", client.SessionID)
		h.teardown(old)
	}

	err := h.broker.Attach(client.ctx, client)
	if err != nil {
		h.Unregister(client)
		return err
	}

	h.sugar.Debugf("Adding user ID [%d] to clients as session ID [%d]", client.UserID, client.SessionID)
	return h.Subscribe(client.ctx, client.SessionID, ViewUser, client.UserID)
}

func (h *Hub) Unregister(client *Client) {
	h.clientsMutex.Lock()
	if current, ok := h.clients[client.SessionID]; ok && current == client {
		delete(h.clients, client.SessionID)
	}
	h.clientsMutex.Unlock()

	h.sugar.Debugf("Removing session ID [%d] from clients", client.SessionID)
	h.teardown(client)
}

func (h *Hub) teardown(client *Client) {
	client.mutex.Lock()
	client.views = newViews()
	client.mutex.Unlock()

	h.broker.Detach(client)
	client.close()
}

func (h *Hub) GetClient(sessionID int64) (*Client, bool) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	client, exists := h.clients[sessionID]
	return client, exists
}

// Sessions returns the IDs of every connected session of the user.
func (h *Hub) Sessions(userID int64) []int64 {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	var sessionIDs []int64
	for sessionID, client := range h.clients {
		if client.UserID == userID {
			sessionIDs = append(sessionIDs, sessionID)
		}
	}
	return sessionIDs
}

// Subscribe makes the view of kind with the given ID the active one for the
// session. Views it excludes are unsubscribed before the new one starts, so
// the client never receives both.
func (h *Hub) Subscribe(ctx context.Context, sessionID int64, kind ViewKind, id int64) error {
	client, exists := h.GetClient(sessionID)
	if !exists {
		return fmt.Errorf("session ID [%d] tried to subscribe to %s [%d] but the session isn't connected to hub", sessionID, kind, id)
	}

	client.mutex.Lock()
	defer client.mutex.Unlock()

	stale, fresh := client.views.switchTo(kind, Topic(kind, id))

	if len(stale) > 0 {
		err := h.broker.Unsubscribe(ctx, client, stale...)
		if err != nil {
			return err
		}
		h.sugar.Debugf("Session ID %d unsubscribed from %v", sessionID, stale)
	}

	if len(fresh) > 0 {
		err := h.broker.Subscribe(ctx, client, fresh...)
		if err != nil {
			return err
		}
		h.sugar.Debugf("Session ID %d subscribed to %v", sessionID, fresh)
	}

	return nil
}

// Unsubscribe removes a single view of the user's session, used when a
// server disappears from the client's list.
func (h *Hub) Unsubscribe(ctx context.Context, userID int64, sessionID int64, kind ViewKind, id int64) error {
	client, exists := h.GetClient(sessionID)
	if !exists {
		return nil
	}
	if client.UserID != userID {
		return fmt.Errorf("%w: user ID [%d] tried to unsubscribe session ID [%d]", ErrForeignSession, userID, sessionID)
	}

	client.mutex.Lock()
	defer client.mutex.Unlock()

	topic := Topic(kind, id)
	if !client.views.leave(topic) {
		return nil
	}
	return h.broker.Unsubscribe(ctx, client, topic)
}

// ActiveView returns the ID of the currently open view of kind.
func (h *Hub) ActiveView(sessionID int64, kind ViewKind) (int64, bool) {
	client, exists := h.GetClient(sessionID)
	if !exists {
		return 0, false
	}

	client.mutex.Lock()
	topic, open := client.views.current(kind)
	client.mutex.Unlock()
	if !open {
		return 0, false
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(topic, string(kind)+":"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func PrepareMessage(messageType string, message any) (string, error) {
	jsonBytes, err := json.Marshal(message)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.Grow(len(messageType) + 1 + len(jsonBytes))
	buf.WriteString(messageType)
	buf.WriteByte('\n')
	buf.Write(jsonBytes)

	return buf.String(), nil
}

// Emit sends message to everyone who has the view of kind with the given ID open.
func (h *Hub) Emit(ctx context.Context, messageType string, kind ViewKind, id int64, message any) error {
	payload, err := PrepareMessage(messageType, message)
	if err != nil {
		return err
	}

	topic := Topic(kind, id)
	h.sugar.Debugf("Sending %s to those on %s", messageType, topic)

	return h.broker.Publish(ctx, topic, payload)
}
