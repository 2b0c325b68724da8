package ddp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/perfana/perfana-dash/pkg/logger"
)

var (
	// ErrClosed is returned for calls pending or issued after the connection ended
	ErrClosed = errors.New("ddp: connection closed")
	// ErrVersion is returned when the server refuses every offered protocol version
	ErrVersion = errors.New("ddp: protocol version not supported")
)

// Handler receives the collection data of all subscriptions.
// Methods run on the read goroutine and must not block.
type Handler interface {
	Added(collection, id string, fields map[string]json.RawMessage)
	Changed(collection, id string, fields map[string]json.RawMessage, cleared []string)
	Removed(collection, id string)
	Ready(sub *Subscription)
	NoSub(sub *Subscription, err error)
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Client is one DDP connection
type Client struct {
	url     string
	header  http.Header
	handler Handler

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	session string
	nextID  uint64
	calls   map[string]chan callResult
	subs    map[string]*Subscription
	closed  bool
	err     error

	done chan struct{}
}

// NewClient prepares a client for url; Connect opens the connection
func NewClient(url string, header http.Header, handler Handler) *Client {
	return &Client{
		url:     url,
		header:  header,
		handler: handler,
		calls:   make(map[string]chan callResult),
		subs:    make(map[string]*Subscription),
		done:    make(chan struct{}),
	}
}

// Connect dials the server and performs the DDP handshake
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 30 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	c.conn = conn

	if err := c.send(Message{Msg: MsgConnect, Version: Version, Support: supportedVersions}); err != nil {
		conn.Close()
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return fmt.Errorf("failed to read handshake: %w", err)
		}
		switch msg.Msg {
		case MsgConnected:
			conn.SetReadDeadline(time.Time{})
			c.mu.Lock()
			c.session = msg.Session
			c.mu.Unlock()
			logger.Debugf("ddp session %s established", msg.Session)
			go c.readLoop()
			return nil
		case MsgFailed:
			conn.Close()
			return fmt.Errorf("%w: server offers %s", ErrVersion, msg.Version)
		}
		// server_id and other pre-handshake frames are skipped
	}
}

// Session returns the server assigned session id
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Call invokes a server method and waits for its result.
// Without a deadline on ctx the call waits until the server answers or the
// connection ends.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)
	ch := make(chan callResult, 1)
	c.calls[id] = ch
	c.mu.Unlock()

	if params == nil {
		params = []interface{}{}
	}
	if err := c.send(Message{Msg: MsgMethod, ID: id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		c.forget(id)
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.calls, id)
	c.mu.Unlock()
}

// Subscribe starts a subscription. Documents flow to the Handler; use
// Subscription.Wait to block until the initial data set is complete.
func (c *Client) Subscribe(name string, params ...interface{}) (*Subscription, error) {
	sub := &Subscription{
		ID:     uuid.NewString(),
		Name:   name,
		Params: params,
		client: c,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.subs[sub.ID] = sub
	c.mu.Unlock()

	if params == nil {
		params = []interface{}{}
	}
	if err := c.send(Message{Msg: MsgSub, ID: sub.ID, Name: name, Params: params}); err != nil {
		c.mu.Lock()
		delete(c.subs, sub.ID)
		c.mu.Unlock()
		return nil, err
	}
	return sub, nil
}

func (c *Client) unsubscribe(sub *Subscription) error {
	c.mu.Lock()
	_, ok := c.subs[sub.ID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.send(Message{Msg: MsgUnsub, ID: sub.ID})
}

// Close ends the connection; pending calls fail with ErrClosed
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.writeMu.Lock()
	err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.shutdown(ErrClosed)
	c.conn.Close()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

func (c *Client) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", msg.Msg, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s message: %w", msg.Msg, err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warnf("ddp connection lost: %v", err)
			}
			c.shutdown(err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("ddp: ignoring malformed frame: %v", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	switch msg.Msg {
	case MsgPing:
		if err := c.send(Message{Msg: MsgPong, ID: msg.ID}); err != nil {
			logger.Warnf("ddp: %v", err)
		}

	case MsgResult:
		c.mu.Lock()
		ch, ok := c.calls[msg.ID]
		delete(c.calls, msg.ID)
		c.mu.Unlock()
		if !ok {
			return
		}
		if msg.Error != nil {
			ch <- callResult{err: msg.Error}
			return
		}
		ch <- callResult{result: NormalizeDates(msg.Result)}

	case MsgReady:
		for _, id := range msg.Subs {
			c.mu.Lock()
			sub, ok := c.subs[id]
			c.mu.Unlock()
			if !ok {
				continue
			}
			if c.handler != nil {
				c.handler.Ready(sub)
			}
			sub.markReady()
		}

	case MsgNoSub:
		c.mu.Lock()
		sub, ok := c.subs[msg.ID]
		delete(c.subs, msg.ID)
		c.mu.Unlock()
		if !ok {
			return
		}
		var err error
		if msg.Error != nil {
			err = msg.Error
		}
		if c.handler != nil {
			c.handler.NoSub(sub, err)
		}
		sub.stop(err)

	case MsgAdded:
		if c.handler != nil {
			c.handler.Added(msg.Collection, msg.ID, normalizeFields(msg.Fields))
		}
	case MsgChanged:
		if c.handler != nil {
			c.handler.Changed(msg.Collection, msg.ID, normalizeFields(msg.Fields), msg.Cleared)
		}
	case MsgRemoved:
		if c.handler != nil {
			c.handler.Removed(msg.Collection, msg.ID)
		}

	case MsgError:
		logger.Errorf("ddp: server rejected a message: %s", msg.Reason)

	case MsgUpdated, MsgPong:
	default:
		logger.Debugf("ddp: unhandled %q frame", msg.Msg)
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = err
	c.calls = make(map[string]chan callResult)
	subs := c.subs
	c.subs = make(map[string]*Subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.stop(ErrClosed)
	}
	close(c.done)
}
