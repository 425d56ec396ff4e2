// Package backend talks to the remote audio service: it reports whether an
// item's audio is generated yet and records play counts.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/logging"
	"golang.org/x/oauth2"
)

type AudioStatus string

const (
	AudioReady      AudioStatus = "ready"
	AudioGenerating AudioStatus = "generating"
	AudioFailed     AudioStatus = "failed"
)

// AudioSource is the backend's answer for one item.
type AudioSource struct {
	Status AudioStatus `json:"status"`
	URL    string      `json:"url,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type Client struct {
	base *url.URL
	http *http.Client
	log  logging.Logger
}

// New returns a client for baseURL. A non-empty token is sent as a bearer
// token with every request.
func New(baseURL, token string, timeout time.Duration, log logging.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q: %w", baseURL, common.ErrInvalidArgument)
	}

	hc := &http.Client{Timeout: timeout}
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
		hc.Timeout = timeout
	}
	if log == nil {
		log = logging.Nop()
	}

	return &Client{base: u, http: hc, log: log}, nil
}

func (c *Client) itemURL(itemID, suffix string) string {
	return c.base.String() + "/api/items/" + url.PathEscape(itemID) + "/" + suffix
}

func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch {
	case code == http.StatusNotFound:
		return fmt.Errorf("backend: %w", common.ErrNotFound)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("backend status %d: %w", code, common.ErrTransientNetwork)
	default:
		return fmt.Errorf("backend status %d: %s", code, msg)
	}
}

// ResolveAudio asks whether the audio of itemID is ready and where it lives.
func (c *Client) ResolveAudio(ctx context.Context, itemID string) (AudioSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.itemURL(itemID, "audio"), nil)
	if err != nil {
		return AudioSource{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return AudioSource{}, ctx.Err()
		}
		return AudioSource{}, fmt.Errorf("backend: %w: %w", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return AudioSource{}, fmt.Errorf("backend: %w: %w", common.ErrTransientNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return AudioSource{}, statusError(resp.StatusCode, body)
	}

	var src AudioSource
	if err := json.Unmarshal(body, &src); err != nil {
		return AudioSource{}, fmt.Errorf("decode audio source: %w", err)
	}

	switch src.Status {
	case AudioReady:
		if src.URL == "" {
			return AudioSource{}, fmt.Errorf("ready audio without url")
		}
		if ref, err := url.Parse(src.URL); err == nil {
			src.URL = c.base.ResolveReference(ref).String()
		}
	case AudioGenerating, AudioFailed:
	default:
		return AudioSource{}, fmt.Errorf("unknown audio status %q", src.Status)
	}
	return src, nil
}

type playEvent struct {
	PlayedAt time.Time `json:"played_at"`
}

// RecordPlay increments the play count of itemID.
func (c *Client) RecordPlay(ctx context.Context, itemID string) error {
	payload, err := json.Marshal(playEvent{PlayedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.itemURL(itemID, "plays"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("record play: %w: %w", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode, body)
	}
	c.log.Debug(ctx, "play recorded", "item_id", itemID)
	return nil
}
