// Package upstream fetches session documents from a telemetry export service.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/source"
)

type (
	Option func(*Client)
	Client struct {
		baseURL string
		client  *http.Client
		token   string
		l       *log.Logger
	}
)

func WithHTTPClient(c *http.Client) Option {
	return func(u *Client) {
		u.client = c
	}
}

func WithToken(token string) Option {
	return func(u *Client) {
		u.token = token
	}
}

func WithTimeout(d time.Duration) Option {
	return func(u *Client) {
		u.client.Timeout = d
	}
}

func New(baseURL string, opts ...Option) *Client {
	ret := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
		l:       log.Default().Named("upstream"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (c *Client) URL(key model.SessionKey) string {
	return fmt.Sprintf("%s/sessions/%d/%d/%s", c.baseURL, key.Year, key.Round, key.Type)
}

// Fetch requests the session document. Errors are not retried.
//
//nolint:whitespace // can't make both editor and linter happy
func (c *Client) Fetch(
	ctx context.Context, key model.SessionKey, _ source.LoadOptions,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(key), http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", source.ErrSessionNotFound, key)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("upstream responded %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	c.l.Debug("fetched session document",
		log.String("session", key.String()),
		log.Int("bytes", len(data)),
		log.Duration("duration", time.Since(start)))
	return data, nil
}
