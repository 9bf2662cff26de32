// Package ws is the event channel: one persistent websocket per
// authenticated session, pushing server events in and carrying client
// intents out.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pborman/uuid"

	"github.com/mqy/minichat/types"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 25 * time.Second

	// websocket max message size to read. Chat lists come in one frame.
	readLimit = 256 << 10

	dialTimeout    = 10 * time.Second
	reconnectDelay = time.Second

	// MaxConnectAttempts bounds dialing; exhaustion degrades to disconnected.
	MaxConnectAttempts = 5
)

// TokenSource supplies the bearer token at connect time.
type TokenSource interface {
	Token() string
}

// Sink receives inbound channel events. Implemented by the chat store.
// Calls arrive from the channel's recv goroutine, one at a time.
type Sink interface {
	OnConnected()
	OnDisconnected(err error)
	OnChatList(chats []*types.Chat)
	OnMessage(msg *types.Message)
	OnChatUpdated(update *types.ChatUpdate)
	OnChatCreated(chat *types.Chat)
	OnChatStarted(started *types.ChatStarted)
	OnChannelError(message string)
}

// Channel manages the single websocket connection of a session.
// Establishing a new connection disposes of the previous one first.
type Channel struct {
	url    string
	tokens TokenSource
	sink   Sink

	mu        sync.Mutex
	conn      *websocket.Conn
	sendChan  chan *types.Envelope
	connected bool
	closing   bool

	// wg belongs to the current connection's loop pair. A connection lost
	// in-loop leaves its loops draining; the next Connect waits on the old
	// wg before starting new loops.
	wg *sync.WaitGroup
}

func NewChannel(wsURL string, tokens TokenSource, sink Sink) *Channel {
	return &Channel{
		url:    wsURL,
		tokens: tokens,
		sink:   sink,
	}
}

// SetSink late-binds the sink; the store and channel reference each other, so
// one of them is wired after construction. Must be called before Connect.
func (c *Channel) SetSink(sink Sink) {
	c.sink = sink
}

// Connect dials the server, retrying up to MaxConnectAttempts. It blocks
// until the connection is established or attempts are exhausted; run it on
// its own goroutine. On success the recv/send loops are started and the sink
// is notified.
func (c *Channel) Connect(ctx context.Context) error {
	tok := c.tokens.Token()
	if tok == "" {
		return fmt.Errorf("channel: no authentication token available")
	}

	// Only one logical connection per session. Disconnect waits for the
	// loops itself; after an in-loop teardown it is a no-op, so wait on the
	// previous connection's loops here before reusing the channel.
	c.Disconnect()
	c.mu.Lock()
	prev := c.wg
	c.mu.Unlock()
	if prev != nil {
		prev.Wait()
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("channel: parse url `%s`: %v", c.url, err)
	}
	q := u.Query()
	q.Set("token", tok)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+tok)
	header.Set("X-Client-Session", strings.ReplaceAll(uuid.New(), "-", ""))

	dialer := &websocket.Dialer{HandshakeTimeout: dialTimeout}

	var conn *websocket.Conn
	var lastErr error
	for attempt := 1; attempt <= MaxConnectAttempts; attempt++ {
		conn, _, lastErr = dialer.DialContext(ctx, u.String(), header)
		if lastErr == nil {
			break
		}
		connectFailures.Inc()
		glog.Errorf("channel: dial attempt %d/%d failed: %v", attempt, MaxConnectAttempts, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
	if lastErr != nil {
		return fmt.Errorf("channel: connect failed after %d attempts: %v", MaxConnectAttempts, lastErr)
	}

	wg := &sync.WaitGroup{}
	c.mu.Lock()
	c.conn = conn
	c.sendChan = make(chan *types.Envelope, 16)
	c.connected = true
	c.closing = false
	c.wg = wg
	c.mu.Unlock()

	connects.Inc()
	glog.Infof("channel: connected to %s", c.url)

	wg.Add(2)
	go c.recvLoop(conn, wg)
	go c.sendLoop(conn, c.sendChan, wg)

	c.sink.OnConnected()
	return nil
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect closes the connection and waits for both loops to exit.
// Safe to call when not connected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if !c.connected || c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.connected = false
	conn := c.conn
	wg := c.wg
	close(c.sendChan)
	c.mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	conn.Close()

	wg.Wait()

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	glog.Info("channel: disconnected")
}

// teardown handles a connection lost from inside a loop, as opposed to a
// deliberate Disconnect.
func (c *Channel) teardown(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.closing || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.connected = false
	close(c.sendChan)
	c.mu.Unlock()

	conn.Close()
	glog.Errorf("channel: connection lost: %v", cause)
	c.sink.OnDisconnected(cause)
}

// emit queues an outbound intent. Intents sent while disconnected are
// rejected, not queued.
func (c *Channel) emit(event string, data interface{}) error {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("channel: marshal %s: %v", event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.closing {
		return fmt.Errorf("channel: not connected")
	}
	select {
	case c.sendChan <- env:
		intentsSent.WithLabelValues(event).Inc()
		return nil
	default:
		return fmt.Errorf("channel: send queue full")
	}
}

func (c *Channel) RequestChatList() error {
	return c.emit(types.EvGetChatList, nil)
}

func (c *Channel) JoinChat(chatID string) error {
	return c.emit(types.EvJoinChat, &types.JoinChatIntent{ChatID: chatID})
}

func (c *Channel) LeaveChat(chatID string) error {
	return c.emit(types.EvLeaveChat, &types.LeaveChatIntent{ChatID: chatID})
}

func (c *Channel) SendMessage(chatID, content string) error {
	return c.emit(types.EvSendMessage, &types.SendMessageIntent{ChatID: chatID, Content: content})
}

func (c *Channel) StartChatByEmail(recipientEmail, initialMessage string) error {
	return c.emit(types.EvStartChatByEmail, &types.StartChatIntent{
		RecipientEmail: recipientEmail,
		InitialMessage: initialMessage,
	})
}

func (c *Channel) recvLoop(conn *websocket.Conn, wg *sync.WaitGroup) {
	defer func() {
		glog.V(5).Info("channel: recvLoop exited")
		wg.Done()
	}()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			c.teardown(conn, err)
			return
		}
		if msgType != websocket.TextMessage {
			glog.Errorf("channel: unexpected message type: %d", msgType)
			continue
		}

		glog.V(5).Infof("channel: incoming event: %s", string(raw))

		var env types.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			glog.Errorf("channel: bad frame: %s, err: %v", string(raw), err)
			continue
		}
		c.dispatch(&env)
	}
}

func (c *Channel) dispatch(env *types.Envelope) {
	eventsReceived.WithLabelValues(env.Event).Inc()

	switch env.Event {
	case types.EvChatListInitial:
		var chats []*types.Chat
		if err := json.Unmarshal(env.Data, &chats); err != nil {
			glog.Errorf("channel: decode %s: %v", env.Event, err)
			return
		}
		c.sink.OnChatList(chats)
	case types.EvMessage:
		var msg types.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			glog.Errorf("channel: decode %s: %v", env.Event, err)
			return
		}
		c.sink.OnMessage(&msg)
	case types.EvChatUpdated:
		var update types.ChatUpdate
		if err := json.Unmarshal(env.Data, &update); err != nil {
			glog.Errorf("channel: decode %s: %v", env.Event, err)
			return
		}
		c.sink.OnChatUpdated(&update)
	case types.EvChatCreated:
		var chat types.Chat
		if err := json.Unmarshal(env.Data, &chat); err != nil {
			glog.Errorf("channel: decode %s: %v", env.Event, err)
			return
		}
		c.sink.OnChatCreated(&chat)
	case types.EvChatStarted:
		var started types.ChatStarted
		if err := json.Unmarshal(env.Data, &started); err != nil {
			glog.Errorf("channel: decode %s: %v", env.Event, err)
			return
		}
		c.sink.OnChatStarted(&started)
	case types.EvChatJoined, types.EvChatLeft:
		var ack types.ChatAck
		_ = json.Unmarshal(env.Data, &ack)
		glog.V(5).Infof("channel: %s ack for chat %s", env.Event, ack.ChatID)
	case types.EvError:
		var ce types.ChannelError
		if err := json.Unmarshal(env.Data, &ce); err != nil {
			glog.Errorf("channel: decode %s: %v", env.Event, err)
			return
		}
		c.sink.OnChannelError(ce.Message)
	default:
		glog.Errorf("channel: unsupported event: %s", env.Event)
	}
}

func (c *Channel) sendLoop(conn *websocket.Conn, sendChan <-chan *types.Envelope, wg *sync.WaitGroup) {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		glog.V(5).Info("channel: sendLoop exited")
		wg.Done()
	}()

	for {
		select {
		case env, ok := <-sendChan:
			if !ok { // chan was closed
				return
			}
			raw, _ := json.Marshal(env)
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				sendErrors.Inc()
				c.teardown(conn, fmt.Errorf("write %s: %v", env.Event, err))
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sendErrors.Inc()
				c.teardown(conn, fmt.Errorf("write ping: %v", err))
				return
			}
		}
	}
}
