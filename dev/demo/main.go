// The demo server is a throwaway in-memory chat backend, just enough to run
// the minichat client end to end: REST auth/history on one port, the event
// channel on another.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pborman/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mqy/minichat/types"
)

var (
	flagAPIAddr = flag.String("api-addr", "127.0.0.1:3001", "REST API address")
	flagWsAddr  = flag.String("ws-addr", "127.0.0.1:3002", "event channel address")
	flagSecret  = flag.String("secret", "demo-secret", "jwt signing secret")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type account struct {
	user types.User
	hash []byte
}

type server struct {
	secret []byte

	mu       sync.Mutex
	accounts map[string]*account // by email
	byID     map[string]*account
	chats    map[string]*types.Chat
	messages map[string][]*types.Message
	conns    map[string][]*websocket.Conn // by user id
}

func newServer(secret string) *server {
	return &server{
		secret:   []byte(secret),
		accounts: make(map[string]*account),
		byID:     make(map[string]*account),
		chats:    make(map[string]*types.Chat),
		messages: make(map[string][]*types.Message),
		conns:    make(map[string][]*websocket.Conn),
	}
}

func main() {
	flag.Parse()
	defer glog.Flush()

	s := newServer(*flagSecret)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/auth/register", s.handleRegister)
	apiMux.HandleFunc("/api/auth/login", s.handleLogin)
	apiMux.HandleFunc("/api/auth/logout", s.handleLogout)
	apiMux.HandleFunc("/api/auth/profile", s.handleProfile)
	apiMux.HandleFunc("/api/chat", s.handleChats)
	apiMux.HandleFunc("/api/chat/start-by-email", s.handleStartByEmail)
	apiMux.HandleFunc("/api/chat/", s.handleMessages)

	go func() {
		glog.Infof("demo REST API on %s", *flagAPIAddr)
		if err := http.ListenAndServe(*flagAPIAddr, apiMux); err != nil {
			glog.Exitf("api listener: %v", err)
		}
	}()

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", s.handleWs)
	glog.Infof("demo event channel on %s", *flagWsAddr)
	if err := http.ListenAndServe(*flagWsAddr, wsMux); err != nil {
		glog.Exitf("ws listener: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func (s *server) issueToken(userID string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	})
	return tok.SignedString(s.secret)
}

func (s *server) userFromToken(tok string) *account {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil
	}
	sub, _ := claims.GetSubject()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[sub]
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s *server) authed(w http.ResponseWriter, r *http.Request) *account {
	acc := s.userFromToken(bearer(r))
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "invalid or missing token")
		return nil
	}
	return acc
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct{ Name, Email, Password string }
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hash failure")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[req.Email]; exists {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	now := time.Now()
	acc := &account{
		user: types.User{
			ID:        strings.ReplaceAll(uuid.New(), "-", ""),
			Email:     req.Email,
			Name:      req.Name,
			CreatedAt: now,
			UpdatedAt: now,
		},
		hash: hash,
	}
	s.accounts[req.Email] = acc
	s.byID[acc.user.ID] = acc
	glog.Infof("registered %s", req.Email)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"message": "registered", "user": acc.user})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct{ Email, Password string }
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	s.mu.Lock()
	acc := s.accounts[req.Email]
	s.mu.Unlock()
	if acc == nil || bcrypt.CompareHashAndPassword(acc.hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	tok, err := s.issueToken(acc.user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "ok",
		"user":        acc.user,
		"accessToken": tok,
	})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Stateless tokens; nothing to revoke in a demo.
	writeJSON(w, http.StatusOK, map[string]string{"message": "bye"})
}

func (s *server) handleProfile(w http.ResponseWriter, r *http.Request) {
	acc := s.authed(w, r)
	if acc == nil {
		return
	}
	writeJSON(w, http.StatusOK, acc.user)
}

func (s *server) handleChats(w http.ResponseWriter, r *http.Request) {
	acc := s.authed(w, r)
	if acc == nil {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.chatsFor(acc.user.ID))
	case http.MethodPost:
		var req struct {
			Participants []string `json:"participants"`
			Type         string   `json:"type"`
			Name         string   `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		chat, err := s.createChat(acc, req.Participants, req.Type, req.Name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, chat)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *server) handleMessages(w http.ResponseWriter, r *http.Request) {
	acc := s.authed(w, r)
	if acc == nil {
		return
	}
	// /api/chat/{id}/messages
	rest := strings.TrimPrefix(r.URL.Path, "/api/chat/")
	chatID := strings.TrimSuffix(rest, "/messages")
	if chatID == rest || chatID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.mu.Lock()
	msgs := append([]*types.Message(nil), s.messages[chatID]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, msgs)
}

func (s *server) handleStartByEmail(w http.ResponseWriter, r *http.Request) {
	acc := s.authed(w, r)
	if acc == nil {
		return
	}
	var req struct {
		RecipientEmail string `json:"recipientEmail"`
		InitialMessage string `json:"initialMessage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	chat, err := s.startByEmail(acc, req.RecipientEmail, req.InitialMessage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "chat": chat, "message": "ok"})
}

func (s *server) chatsFor(userID string) []*types.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Chat
	for _, c := range s.chats {
		for _, p := range c.Participants {
			if p.ID == userID {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (s *server) createChat(acc *account, participantIDs []string, chatType, name string) (*types.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := map[string]bool{acc.user.ID: true}
	for _, id := range participantIDs {
		ids[id] = true
	}
	var participants []types.User
	for id := range ids {
		other := s.byID[id]
		if other == nil {
			return nil, fmt.Errorf("unknown participant: %s", id)
		}
		participants = append(participants, other.user)
	}
	if chatType == types.ChatPrivate && len(participants) != 2 {
		return nil, fmt.Errorf("a private chat needs exactly two participants")
	}
	if chatType == types.ChatGroup && len(participants) < 2 {
		return nil, fmt.Errorf("a group chat needs at least two participants")
	}

	now := time.Now()
	chat := &types.Chat{
		ID:           strings.ReplaceAll(uuid.New(), "-", ""),
		Type:         chatType,
		Name:         name,
		Participants: participants,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.chats[chat.ID] = chat
	s.broadcastLocked(chat, types.EvChatCreated, chat)
	return chat, nil
}

func (s *server) startByEmail(acc *account, email, initialMessage string) (*types.Chat, error) {
	s.mu.Lock()
	other := s.accounts[email]
	if other == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("no user with email %s", email)
	}
	// Reuse an existing private chat when there is one.
	for _, c := range s.chats {
		if c.Type != types.ChatPrivate {
			continue
		}
		var mine, theirs bool
		for _, p := range c.Participants {
			mine = mine || p.ID == acc.user.ID
			theirs = theirs || p.ID == other.user.ID
		}
		if mine && theirs {
			s.mu.Unlock()
			if initialMessage != "" {
				s.deliver(acc, c.ID, initialMessage)
			}
			return c, nil
		}
	}
	s.mu.Unlock()

	chat, err := s.createChat(acc, []string{other.user.ID}, types.ChatPrivate, "")
	if err != nil {
		return nil, err
	}
	if initialMessage != "" {
		s.deliver(acc, chat.ID, initialMessage)
	}
	return chat, nil
}

// deliver appends a message and pushes message + chatUpdated events to every
// participant's connections.
func (s *server) deliver(acc *account, chatID, content string) {
	s.mu.Lock()
	chat := s.chats[chatID]
	if chat == nil {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	msg := &types.Message{
		ID:          strings.ReplaceAll(uuid.New(), "-", ""),
		ChatID:      chatID,
		SenderID:    acc.user.ID,
		SenderEmail: acc.user.Email,
		Content:     content,
		CreatedAt:   now,
	}
	s.messages[chatID] = append(s.messages[chatID], msg)
	chat.UpdatedAt = now
	chat.LastMessage = &types.LastMessage{
		Content:     content,
		SenderID:    acc.user.ID,
		SenderEmail: acc.user.Email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.broadcastLocked(chat, types.EvMessage, msg)
	s.broadcastLocked(chat, types.EvChatUpdated, &types.ChatUpdate{
		ChatID:      chatID,
		LastMessage: chat.LastMessage,
		UpdatedAt:   now,
	})
	s.mu.Unlock()
}

// broadcastLocked pushes one event to all connections of the chat's
// participants. Caller holds s.mu.
func (s *server) broadcastLocked(chat *types.Chat, event string, data interface{}) {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		glog.Errorf("broadcast %s: %v", event, err)
		return
	}
	for _, p := range chat.Participants {
		for _, conn := range s.conns[p.ID] {
			conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
			if err := conn.WriteJSON(env); err != nil {
				glog.Errorf("broadcast to %s: %v", p.Email, err)
			}
		}
	}
}

func (s *server) send(conn *websocket.Conn, event string, data interface{}) {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		glog.Errorf("send %s: %v", event, err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
	if err := conn.WriteJSON(env); err != nil {
		glog.Errorf("send %s: %v", event, err)
	}
}

func (s *server) handleWs(w http.ResponseWriter, r *http.Request) {
	acc := s.userFromToken(bearer(r))
	if acc == nil {
		http.Error(w, "authenticate error", http.StatusForbidden)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Errorf("upgrade: %v", err)
		return
	}
	glog.Infof("channel open for %s", acc.user.Email)

	s.mu.Lock()
	s.conns[acc.user.ID] = append(s.conns[acc.user.ID], conn)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		list := s.conns[acc.user.ID]
		for i, c := range list {
			if c == conn {
				s.conns[acc.user.ID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		conn.Close()
		glog.Infof("channel closed for %s", acc.user.Email)
	}()

	conn.SetPingHandler(nil) // default: reply pong

	for {
		var env types.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Event {
		case types.EvGetChatList:
			s.send(conn, types.EvChatListInitial, s.chatsFor(acc.user.ID))
		case types.EvJoinChat:
			var in types.JoinChatIntent
			_ = json.Unmarshal(env.Data, &in)
			s.send(conn, types.EvChatJoined, &types.ChatAck{ChatID: in.ChatID})
		case types.EvLeaveChat:
			var in types.LeaveChatIntent
			_ = json.Unmarshal(env.Data, &in)
			s.send(conn, types.EvChatLeft, &types.ChatAck{ChatID: in.ChatID})
		case types.EvSendMessage:
			var in types.SendMessageIntent
			if err := json.Unmarshal(env.Data, &in); err != nil || in.ChatID == "" || in.Content == "" {
				s.send(conn, types.EvError, &types.ChannelError{Message: "bad sendMessage payload"})
				continue
			}
			s.deliver(acc, in.ChatID, in.Content)
		case types.EvStartChatByEmail:
			var in types.StartChatIntent
			if err := json.Unmarshal(env.Data, &in); err != nil {
				s.send(conn, types.EvError, &types.ChannelError{Message: "bad startChatByEmail payload"})
				continue
			}
			chat, err := s.startByEmail(acc, in.RecipientEmail, in.InitialMessage)
			if err != nil {
				s.send(conn, types.EvError, &types.ChannelError{Message: err.Error()})
				continue
			}
			s.send(conn, types.EvChatStarted, &types.ChatStarted{Success: true, Chat: chat})
		default:
			s.send(conn, types.EvError, &types.ChannelError{Message: "unsupported event: " + env.Event})
		}
	}
}
