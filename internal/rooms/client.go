// Package rooms talks to the chat REST API for room listing and creation.
package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/market-chat/internal/domain"
)

// Errors
var (
	// ErrRoomUnavailable means the room could not be created, typically
	// because it already exists; callers fall back to the room list.
	ErrRoomUnavailable  = errors.New("chat room unavailable")
	ErrLoginRequired    = errors.New("login required")
	ErrUnexpectedStatus = errors.New("unexpected status from chat api")
)

// Client wraps the chat REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	group      singleflight.Group
}

// NewClient creates a client for baseURL. token, when set, is sent as a
// bearer credential on every request.
func NewClient(baseURL string, timeout time.Duration, token string) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
	}
}

// CreateRequest describes a room to create. UserID and ProductID are sent
// as numbers when they look like numbers.
type CreateRequest struct {
	Name      string
	UserID    string
	ProductID string
}

type createBody struct {
	Name      string `json:"name"`
	UserID    any    `json:"userId,omitempty"`
	ProductID any    `json:"productId,omitempty"`
}

// List returns every room. Concurrent calls share one request.
func (c *Client) List(ctx context.Context) ([]domain.ChatRoom, error) {
	v, err, _ := c.group.Do("list", func() (any, error) {
		var rooms []domain.ChatRoom
		if err := c.do(ctx, http.MethodGet, "/api/chat/rooms", c.token, nil, &rooms); err != nil {
			return nil, err
		}
		return rooms, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.ChatRoom(nil), v.([]domain.ChatRoom)...), nil
}

// Create creates a room. Conflicts and server errors map to
// ErrRoomUnavailable.
func (c *Client) Create(ctx context.Context, req CreateRequest) (domain.ChatRoom, error) {
	return c.create(ctx, req, c.token)
}

func (c *Client) create(ctx context.Context, req CreateRequest, token string) (domain.ChatRoom, error) {
	body := createBody{Name: req.Name, UserID: idValue(req.UserID), ProductID: idValue(req.ProductID)}

	var room domain.ChatRoom
	if err := c.do(ctx, http.MethodPost, "/api/chat/room", token, body, &room); err != nil {
		return domain.ChatRoom{}, err
	}
	return room, nil
}

// Opened is the outcome of OpenForProduct: either the room to join, or the
// room list to pick from when creation was refused.
type Opened struct {
	Room  *domain.ChatRoom
	Rooms []domain.ChatRoom
}

// OpenForProduct creates the buyer's room for a product listing, named
// "<title> - <seller>". If the API refuses, the room list is returned
// instead.
func (c *Client) OpenForProduct(ctx context.Context, who domain.Identity, productID, title, seller string) (Opened, error) {
	if !who.LoggedIn() {
		return Opened{}, ErrLoginRequired
	}

	token := who.AccessToken
	room, err := c.create(ctx, CreateRequest{
		Name:      fmt.Sprintf("%s - %s", title, seller),
		UserID:    who.UserID,
		ProductID: productID,
	}, token)
	if err == nil {
		return Opened{Room: &room}, nil
	}
	if !errors.Is(err, ErrRoomUnavailable) {
		return Opened{}, err
	}

	rooms, err := c.List(ctx)
	if err != nil {
		return Opened{}, err
	}
	return Opened{Rooms: rooms}, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusInternalServerError:
		if method == http.MethodPost {
			return fmt.Errorf("%w: status %d", ErrRoomUnavailable, resp.StatusCode)
		}
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func idValue(id string) any {
	if id == "" {
		return nil
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
