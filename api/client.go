// Package api is the request/response side of the transport: auth calls and
// bulk history fetch. Real-time traffic goes over the ws channel instead.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/mqy/minichat/types"
)

const requestTimeout = 15 * time.Second

type LoginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResp struct {
	Message     string     `json:"message,omitempty"`
	User        types.User `json:"user"`
	AccessToken string     `json:"accessToken"`
}

type createChatReq struct {
	Participants []string `json:"participants"`
	Type         string   `json:"type"`
	Name         string   `json:"name,omitempty"`
}

type startChatReq struct {
	RecipientEmail string `json:"recipientEmail"`
	InitialMessage string `json:"initialMessage,omitempty"`
}

type startChatResp struct {
	Success bool        `json:"success"`
	Chat    *types.Chat `json:"chat"`
	Message string      `json:"message,omitempty"`
}

// errorBody is what the server returns on a non-2xx status.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Client is the stateless REST client; the only thing it holds between calls
// is the bearer token.
type Client struct {
	baseURL string
	hc      *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

func (c *Client) ClearToken() {
	c.SetToken("")
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// request runs one call and decodes the response into out (skipped if nil).
// A non-2xx response becomes a single error carrying the server message, or a
// generic status-based one.
func (c *Client) request(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: marshal request: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("api: new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		glog.Errorf("api: %s %s failed: %v", method, endpoint, err)
		return fmt.Errorf("api: %s %s: %v", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		msg := eb.Message
		if msg == "" {
			msg = eb.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)
		}
		glog.Errorf("api: %s %s: status %d: %s", method, endpoint, resp.StatusCode, msg)
		return fmt.Errorf("%s", msg)
	}

	if out == nil {
		// drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s response: %v", method, endpoint, err)
	}
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResp, error) {
	var out AuthResp
	if err := c.request(ctx, http.MethodPost, "/auth/login", &LoginReq{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken != "" {
		c.SetToken(out.AccessToken)
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*types.User, error) {
	var out AuthResp
	if err := c.request(ctx, http.MethodPost, "/auth/register",
		&RegisterReq{Name: name, Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.request(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.ClearToken()
	return err
}

func (c *Client) GetProfile(ctx context.Context) (*types.User, error) {
	var out types.User
	if err := c.request(ctx, http.MethodGet, "/auth/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetChats(ctx context.Context) ([]*types.Chat, error) {
	var out []*types.Chat
	if err := c.request(ctx, http.MethodGet, "/chat", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateChat(ctx context.Context, participants []string, chatType, name string) (*types.Chat, error) {
	var out types.Chat
	req := &createChatReq{Participants: participants, Type: chatType, Name: name}
	if err := c.request(ctx, http.MethodPost, "/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetMessages(ctx context.Context, chatID string) ([]*types.Message, error) {
	var out []*types.Message
	if err := c.request(ctx, http.MethodGet, "/chat/"+chatID+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StartChatByEmail(ctx context.Context, recipientEmail, initialMessage string) (*types.Chat, error) {
	var out startChatResp
	req := &startChatReq{RecipientEmail: recipientEmail, InitialMessage: initialMessage}
	if err := c.request(ctx, http.MethodPost, "/chat/start-by-email", req, &out); err != nil {
		return nil, err
	}
	return out.Chat, nil
}
