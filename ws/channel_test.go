package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/minichat/types"
)

type staticTokens struct{ tok string }

func (s *staticTokens) Token() string { return s.tok }

type fakeSink struct {
	connected    chan struct{}
	disconnected chan error
	chats        chan []*types.Chat
	messages     chan *types.Message
	updates      chan *types.ChatUpdate
	created      chan *types.Chat
	started      chan *types.ChatStarted
	errs         chan string
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		connected:    make(chan struct{}, 4),
		disconnected: make(chan error, 4),
		chats:        make(chan []*types.Chat, 4),
		messages:     make(chan *types.Message, 4),
		updates:      make(chan *types.ChatUpdate, 4),
		created:      make(chan *types.Chat, 4),
		started:      make(chan *types.ChatStarted, 4),
		errs:         make(chan string, 4),
	}
}

func (f *fakeSink) OnConnected()                           { f.connected <- struct{}{} }
func (f *fakeSink) OnDisconnected(err error)               { f.disconnected <- err }
func (f *fakeSink) OnChatList(chats []*types.Chat)         { f.chats <- chats }
func (f *fakeSink) OnMessage(msg *types.Message)           { f.messages <- msg }
func (f *fakeSink) OnChatUpdated(u *types.ChatUpdate)      { f.updates <- u }
func (f *fakeSink) OnChatCreated(c *types.Chat)            { f.created <- c }
func (f *fakeSink) OnChatStarted(s *types.ChatStarted)     { f.started <- s }
func (f *fakeSink) OnChannelError(message string)          { f.errs <- message }

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testServer accepts one websocket client and exposes both directions.
type testServer struct {
	srv    *httptest.Server
	conns  chan *websocket.Conn
	frames chan *types.Envelope
	auth   chan *http.Request
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{
		conns:  make(chan *websocket.Conn, 1),
		frames: make(chan *types.Envelope, 16),
		auth:   make(chan *http.Request, 1),
	}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case ts.auth <- r.Clone(context.Background()):
		default:
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
		for {
			var env types.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			ts.frames <- &env
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
}

func (ts *testServer) push(t *testing.T, event string, data interface{}) {
	t.Helper()
	conn := <-ts.conns
	ts.conns <- conn
	env, err := types.NewEnvelope(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestConnectCarriesToken(t *testing.T) {
	ts := newTestServer(t)
	sink := newFakeSink()
	c := NewChannel(ts.wsURL(), &staticTokens{tok: "tok123"}, sink)

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	waitFor(t, sink.connected, "OnConnected")
	assert.True(t, c.Connected())

	r := waitFor(t, ts.auth, "handshake request")
	assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
	assert.Equal(t, "tok123", r.URL.Query().Get("token"))
	assert.NotEmpty(t, r.Header.Get("X-Client-Session"))
}

func TestConnectWithoutToken(t *testing.T) {
	sink := newFakeSink()
	c := NewChannel("ws://127.0.0.1:0/ws", &staticTokens{}, sink)
	require.Error(t, c.Connect(context.Background()))
	assert.False(t, c.Connected())
}

func TestInboundDispatch(t *testing.T) {
	ts := newTestServer(t)
	sink := newFakeSink()
	c := NewChannel(ts.wsURL(), &staticTokens{tok: "tok123"}, sink)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	waitFor(t, sink.connected, "OnConnected")

	now := time.Now().UTC().Truncate(time.Second)

	ts.push(t, types.EvMessage, &types.Message{
		ID: "m1", ChatID: "c1", SenderID: "u2", Content: "hey", CreatedAt: now,
	})
	msg := waitFor(t, sink.messages, "OnMessage")
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "hey", msg.Content)

	ts.push(t, types.EvChatListInitial, []*types.Chat{{ID: "c1", Type: types.ChatPrivate}})
	chats := waitFor(t, sink.chats, "OnChatList")
	require.Len(t, chats, 1)
	assert.Equal(t, "c1", chats[0].ID)

	ts.push(t, types.EvChatUpdated, &types.ChatUpdate{ChatID: "c1", UpdatedAt: now})
	update := waitFor(t, sink.updates, "OnChatUpdated")
	assert.Equal(t, "c1", update.ChatID)

	ts.push(t, types.EvError, &types.ChannelError{Message: "nope"})
	assert.Equal(t, "nope", waitFor(t, sink.errs, "OnChannelError"))
}

func TestOutboundIntents(t *testing.T) {
	ts := newTestServer(t)
	sink := newFakeSink()
	c := NewChannel(ts.wsURL(), &staticTokens{tok: "tok123"}, sink)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	waitFor(t, sink.connected, "OnConnected")

	require.NoError(t, c.JoinChat("c1"))
	env := waitFor(t, ts.frames, "joinChat frame")
	assert.Equal(t, types.EvJoinChat, env.Event)
	var join types.JoinChatIntent
	require.NoError(t, json.Unmarshal(env.Data, &join))
	assert.Equal(t, "c1", join.ChatID)

	require.NoError(t, c.SendMessage("c1", "hi"))
	env = waitFor(t, ts.frames, "sendMessage frame")
	assert.Equal(t, types.EvSendMessage, env.Event)
	var send types.SendMessageIntent
	require.NoError(t, json.Unmarshal(env.Data, &send))
	assert.Equal(t, "hi", send.Content)
}

func TestEmitWhileDisconnected(t *testing.T) {
	sink := newFakeSink()
	c := NewChannel("ws://127.0.0.1:0/ws", &staticTokens{tok: "tok123"}, sink)
	assert.Error(t, c.SendMessage("c1", "hi"))
	assert.Error(t, c.JoinChat("c1"))
}

func TestServerCloseNotifiesSink(t *testing.T) {
	ts := newTestServer(t)
	sink := newFakeSink()
	c := NewChannel(ts.wsURL(), &staticTokens{tok: "tok123"}, sink)
	require.NoError(t, c.Connect(context.Background()))
	waitFor(t, sink.connected, "OnConnected")

	conn := <-ts.conns
	conn.Close()

	waitFor(t, sink.disconnected, "OnDisconnected")
	assert.False(t, c.Connected())
}

func TestReconnectAfterConnectionLost(t *testing.T) {
	ts := newTestServer(t)
	sink := newFakeSink()
	c := NewChannel(ts.wsURL(), &staticTokens{tok: "tok123"}, sink)
	require.NoError(t, c.Connect(context.Background()))
	waitFor(t, sink.connected, "OnConnected")

	// Server drops the connection out from under the client.
	conn := <-ts.conns
	conn.Close()
	waitFor(t, sink.disconnected, "OnDisconnected")

	// A fresh Connect must not share loop bookkeeping with the dead
	// connection's goroutines.
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	waitFor(t, sink.connected, "OnConnected")
	assert.True(t, c.Connected())

	require.NoError(t, c.JoinChat("c1"))
	env := waitFor(t, ts.frames, "joinChat frame")
	assert.Equal(t, types.EvJoinChat, env.Event)
}
