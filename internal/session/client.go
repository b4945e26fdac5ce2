package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/medibridge/telecall/internal/rtcerr"
)

// Client talks to the registry HTTP API. A degraded registry never blocks the
// call path: CreateSession falls back to a locally generated room code so
// signaling and negotiation can proceed without it.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

// ClientConfig carries registry client dependencies.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *zerolog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  cfg.Logger.With().Str("component", "registry-client").Logger(),
	}
}

// Login obtains a JWT for subsequent authenticated calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return rtcerr.New("login", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return rtcerr.New("login", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rtcerr.Wrap("login", fmt.Errorf("unexpected status %d", resp.StatusCode), c.baseURL)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return rtcerr.New("login", err)
	}
	c.token = lr.Token
	return nil
}

// CreateSession asks the registry for a room identifier for the encounter.
// Registry failure is recovered locally: the returned room id is then a
// freshly generated code and the session exists only on this endpoint.
func (c *Client) CreateSession(ctx context.Context, encounterID, calleeID string) (roomID string, err error) {
	resp, err := c.createSession(ctx, encounterID, calleeID)
	if err != nil {
		local := NewCode()
		c.logger.Warn().
			Err(err).
			Str("encounterID", encounterID).
			Str("roomID", local).
			Msg("registry unreachable, using local room id")
		return local, nil
	}
	return resp.RoomID, nil
}

func (c *Client) createSession(ctx context.Context, encounterID, calleeID string) (*CreateResponse, error) {
	body, _ := json.Marshal(CreateRequest{EncounterID: encounterID, CalleeID: calleeID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, rtcerr.New("create session", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, rtcerr.Wrap("create session", rtcerr.ErrSessionCreateFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, rtcerr.Wrap("create session", rtcerr.ErrSessionCreateFailed,
			fmt.Sprintf("status %d", resp.StatusCode))
	}

	var cr CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, rtcerr.New("create session", err)
	}
	return &cr, nil
}

// GetSession looks up a session by room id or short code.
func (c *Client) GetSession(ctx context.Context, idOrCode string) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sessions/"+idOrCode, nil)
	if err != nil {
		return nil, rtcerr.New("get session", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, rtcerr.New("get session", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, rtcerr.Wrap("get session", fmt.Errorf("unexpected status %d", resp.StatusCode), idOrCode)
	}

	var s Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, rtcerr.New("get session", err)
	}
	return &s, nil
}

// ListSessions returns all known sessions (authenticated).
func (c *Client) ListSessions(ctx context.Context) ([]*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sessions", nil)
	if err != nil {
		return nil, rtcerr.New("list sessions", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, rtcerr.New("list sessions", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, rtcerr.Wrap("list sessions", fmt.Errorf("unexpected status %d", resp.StatusCode), "")
	}

	var out []*Session
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, rtcerr.New("list sessions", err)
	}
	return out, nil
}

// SetActive marks a session live once media is flowing. Best effort on the
// call path.
func (c *Client) SetActive(ctx context.Context, roomID string) error {
	return c.postStatus(ctx, roomID, "activate", "activate session")
}

// EndSession marks a session ended on hangup or teardown. Best effort on the
// call path.
func (c *Client) EndSession(ctx context.Context, roomID string) error {
	return c.postStatus(ctx, roomID, "end", "end session")
}

func (c *Client) postStatus(ctx context.Context, roomID, action, op string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sessions/"+roomID+"/"+action, nil)
	if err != nil {
		return rtcerr.New(op, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return rtcerr.New(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rtcerr.Wrap(op, fmt.Errorf("unexpected status %d", resp.StatusCode), roomID)
	}
	return nil
}
