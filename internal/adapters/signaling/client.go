// Package signaling is the HTTP client for the meeting backend.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrServer      = errors.New("server error")
	ErrBadResponse = errors.New("bad response")
)

const maxBodySize = 1 << 20

// Client talks to /join, /attendee and /end.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c := &Client{base: u, http: http.DefaultClient, timeout: 10 * time.Second}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type joinResponse struct {
	JoinInfo *domain.JoinInfo `json:"JoinInfo"`
	Error    string           `json:"error"`
}

// Join creates (or reuses) the meeting titled title and an attendee named name.
// A backend {error} body is returned as ErrServer carrying the server message.
func (c *Client) Join(ctx context.Context, title domain.MeetingTitle, name, region string) (*domain.JoinInfo, error) {
	q := url.Values{}
	q.Set("title", string(title))
	q.Set("name", name)
	q.Set("region", region)

	var resp joinResponse
	if err := c.do(ctx, http.MethodPost, "join", q, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrServer, resp.Error)
	}
	if resp.JoinInfo == nil {
		return nil, fmt.Errorf("%w: missing JoinInfo", ErrBadResponse)
	}
	return resp.JoinInfo, nil
}

type attendeeResponse struct {
	AttendeeInfo struct {
		AttendeeID domain.AttendeeID `json:"AttendeeId"`
		Name       string            `json:"Name"`
	} `json:"AttendeeInfo"`
	Error string `json:"error"`
}

// AttendeeName looks up the display name of an attendee.
func (c *Client) AttendeeName(ctx context.Context, title domain.MeetingTitle, id domain.AttendeeID) (string, error) {
	q := url.Values{}
	q.Set("title", string(title))
	q.Set("attendee", string(id))

	var resp attendeeResponse
	if err := c.do(ctx, http.MethodGet, "attendee", q, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrServer, resp.Error)
	}
	return resp.AttendeeInfo.Name, nil
}

// End asks the backend to end the meeting for everyone.
func (c *Client) End(ctx context.Context, title domain.MeetingTitle) error {
	q := url.Values{}
	q.Set("title", string(title))
	return c.do(ctx, http.MethodPost, "end", q, nil)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.base.ResolveReference(&url.URL{Path: path, RawQuery: q.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	log.Debug().Str("module", "signaling").Str("method", method).Str("url", u.String()).Msg("request")
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if out == nil {
		if res.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("%w: %s %s", ErrServer, path, res.Status)
		}
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		if res.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("%w: %s %s", ErrServer, path, res.Status)
		}
		return fmt.Errorf("%w: %s: %v", ErrBadResponse, path, err)
	}
	return nil
}
