// Package rest is the typed client for the request/response collaborator:
// user records, experience settlement, ticket balances, room membership and
// the friend directory.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var ErrStatus = errors.New("rest: unexpected status")

type User struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Level     int    `json:"level"`
	FishImage string `json:"mainFishImage"`
}

type ExpResult struct {
	CurExp         int     `json:"curExp"`
	ExpToNextLevel int     `json:"expToNextLevel"`
	ExpProgress    float64 `json:"expProgress"`
	UserLevel      int     `json:"userLevel"`
	Message        string  `json:"message"`
}

type TicketBalance struct {
	UserID     string `json:"userId"`
	FishTicket int    `json:"fishTicket"`
}

type RoomMember struct {
	ID        string `json:"userId"`
	Nickname  string `json:"nickname"`
	FishImage string `json:"mainFishImage"`
	Host      bool   `json:"isHost"`
	Level     int    `json:"level"`
}

type Friend struct {
	ID       string `json:"friendId"`
	Nickname string `json:"nickname"`
}

type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log.Named("rest"),
	}
}

func (c *Client) User(ctx context.Context, id string) (User, error) {
	var u User
	err := c.get(ctx, "/users/"+id, &u)
	return u, err
}

// ExpUp posts an experience award and returns the resulting level state.
func (c *Client) ExpUp(ctx context.Context, userID string, earnedExp int) (ExpResult, error) {
	req := struct {
		UserID    string `json:"userId"`
		EarnedExp int    `json:"earnedExp"`
	}{userID, earnedExp}
	var res ExpResult
	err := c.post(ctx, "/users/exp-up", req, &res)
	return res, err
}

func (c *Client) FishTicket(ctx context.Context, userID string) (TicketBalance, error) {
	var t TicketBalance
	err := c.get(ctx, "/fish/ticket/"+userID, &t)
	return t, err
}

func (c *Client) RoomMembers(ctx context.Context, roomID string) ([]RoomMember, error) {
	var members []RoomMember
	err := c.get(ctx, "/chatrooms/"+roomID, &members)
	return members, err
}

func (c *Client) Friends(ctx context.Context, userID string) ([]Friend, error) {
	var friends []Friend
	err := c.get(ctx, "/friends/"+userID, &friends)
	return friends, err
}

func (c *Client) Invite(ctx context.Context, hostID, guestID, roomID string) error {
	req := struct {
		HostID  string `json:"hostId"`
		GuestID string `json:"guestId"`
		RoomID  string `json:"roomId"`
	}{hostID, guestID, roomID}
	return c.post(ctx, "/chatrooms/invite", req, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s -> %d", ErrStatus, req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rest: decode %s: %w", req.URL.Path, err)
	}
	return nil
}
