// Package session holds the authenticated identity for the lifetime of the
// application session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"

	"github.com/mqy/minichat/api"
	"github.com/mqy/minichat/types"
)

type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// IAuthAPI is the slice of the request client the session needs.
type IAuthAPI interface {
	Login(ctx context.Context, email, password string) (*api.AuthResp, error)
	Register(ctx context.Context, name, email, password string) (*types.User, error)
	Logout(ctx context.Context) error
	GetProfile(ctx context.Context) (*types.User, error)
	SetToken(tok string)
	ClearToken()
}

// ITokenStore persists the bearer token across runs.
type ITokenStore interface {
	Token() string
	SetToken(tok string) error
	Clear() error
}

// Session is the identity store: anonymous -> authenticating ->
// authenticated, back to anonymous on logout, failure or token rejection.
type Session struct {
	auth   IAuthAPI
	tokens ITokenStore

	mu      sync.Mutex
	state   State
	user    *types.User
	err     string
	changed chan struct{}
}

func New(auth IAuthAPI, tokens ITokenStore) *Session {
	return &Session{
		auth:    auth,
		tokens:  tokens,
		changed: make(chan struct{}, 1),
	}
}

// Changes delivers a coalesced signal on every state transition.
func (s *Session) Changes() <-chan struct{} {
	return s.changed
}

func (s *Session) set(state State, user *types.User, errMsg string) {
	s.mu.Lock()
	s.state = state
	s.user = user
	s.err = errMsg
	s.mu.Unlock()
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Authenticated() bool {
	return s.State() == Authenticated
}

func (s *Session) Loading() bool {
	return s.State() == Authenticating
}

// CurrentUser implements store.IIdentity; nil when not authenticated.
func (s *Session) CurrentUser() *types.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) ClearError() {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()
}

func (s *Session) Login(ctx context.Context, email, password string) error {
	s.set(Authenticating, nil, "")
	resp, err := s.auth.Login(ctx, email, password)
	if err != nil {
		s.set(Anonymous, nil, err.Error())
		return err
	}
	if resp.AccessToken != "" {
		if err := s.tokens.SetToken(resp.AccessToken); err != nil {
			glog.Errorf("session: persist token: %v", err)
		}
	}
	user := resp.User
	s.set(Authenticated, &user, "")
	glog.Infof("session: logged in as %s", user.Email)
	return nil
}

// Register creates the account, then logs in with the same credentials.
func (s *Session) Register(ctx context.Context, name, email, password string) error {
	s.set(Authenticating, nil, "")
	if _, err := s.auth.Register(ctx, name, email, password); err != nil {
		s.set(Anonymous, nil, err.Error())
		return err
	}
	return s.Login(ctx, email, password)
}

// Logout tells the server best effort and resets to anonymous either way.
func (s *Session) Logout(ctx context.Context) {
	if err := s.auth.Logout(ctx); err != nil {
		glog.Errorf("session: logout: %v", err)
	}
	if err := s.tokens.Clear(); err != nil {
		glog.Errorf("session: clear token: %v", err)
	}
	s.auth.ClearToken()
	s.set(Anonymous, nil, "")
}

// CheckStatus revalidates a persisted token at startup. An invalid or
// expired token is cleared and the session stays anonymous without
// surfacing an error.
func (s *Session) CheckStatus(ctx context.Context) {
	tok := s.tokens.Token()
	if tok == "" {
		return
	}
	if tokenExpired(tok) {
		glog.Info("session: stored token is expired, clearing")
		s.dropToken()
		return
	}

	s.auth.SetToken(tok)
	s.set(Authenticating, nil, "")
	user, err := s.auth.GetProfile(ctx)
	if err != nil {
		glog.Infof("session: stored token rejected: %v", err)
		s.dropToken()
		s.set(Anonymous, nil, "")
		return
	}
	s.set(Authenticated, user, "")
	glog.Infof("session: resumed as %s", user.Email)
}

func (s *Session) dropToken() {
	if err := s.tokens.Clear(); err != nil {
		glog.Errorf("session: clear token: %v", err)
	}
	s.auth.ClearToken()
}

// tokenExpired checks the exp claim locally, without verifying the
// signature. Anything unparsable is left for the server to judge.
func tokenExpired(tok string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
