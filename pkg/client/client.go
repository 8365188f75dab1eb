package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/cenkalti/backoff.v1"

	"github.com/charlie0129/drip/pkg/events"
)

// Client is a struct for communicating with the drip daemon, either over its
// unix socket or over TCP.
type Client struct {
	baseURL    string
	target     string
	httpClient *http.Client
}

// NewClient returns a Client that talks to the daemon's unix socket.
func NewClient(socketPath string) *Client {
	return &Client{
		baseURL: "http://unix",
		target:  socketPath,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					conn, err := d.DialContext(ctx, "unix", socketPath)
					if err != nil {
						return nil, dialError(err)
					}
					return conn, nil
				},
			},
		},
	}
}

// NewHTTPClient returns a Client that talks to the daemon over TCP. addr is
// either a base URL or a host:port pair.
func NewHTTPClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		target:  base,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
					var d net.Dialer
					conn, err := d.DialContext(ctx, network, address)
					if err != nil {
						return nil, dialError(err)
					}
					return conn, nil
				},
			},
		},
	}
}

func dialError(err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ECONNREFUSED):
		return ErrDaemonNotRunning
	case errors.Is(err, os.ErrPermission):
		return ErrPermissionDenied
	}
	logrus.Errorf("failed to connect to daemon: %v", err)
	return err
}

// Send is a method for sending a request to the drip daemon
func (c *Client) Send(method string, path string, data string) (string, error) {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"data":   data,
		"target": c.target,
	}).Debug("sending request")

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut:
	default:
		return "", fmt.Errorf("unknown method: %s", method)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	respBody := string(b)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	case http.StatusServiceUnavailable:
		return "", fmt.Errorf("%w: %s", ErrUnavailable, errorMessage(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("got %d: %s", resp.StatusCode, errorMessage(respBody))
	}

	return respBody, nil
}

// errorMessage unquotes error bodies that the daemon sends as JSON strings.
func errorMessage(body string) string {
	var s string
	if err := json.Unmarshal([]byte(body), &s); err == nil {
		return s
	}
	return strings.TrimSpace(body)
}

// Get is a method for sending a GET request to the drip daemon
func (c *Client) Get(path string) (string, error) {
	return c.Send(http.MethodGet, path, "")
}

// Put is a method for sending a PUT request to the drip daemon
func (c *Client) Put(path string, data string) (string, error) {
	return c.Send(http.MethodPut, path, data)
}

// Post is a method for sending a POST request to the drip daemon
func (c *Client) Post(path string, data string) (string, error) {
	return c.Send(http.MethodPost, path, data)
}

// SubscribeEvents opens the daemon's event stream. It returns once the
// stream is established; a daemon that cannot be reached is reported right
// away. A dropped connection is re-established with backoff. The returned
// channel is closed when ctx is done or the daemon ends the stream.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan events.Event, error) {
	connected := make(chan struct{})
	var once sync.Once

	sc := sse.NewClient(c.baseURL + "/api/events")
	sc.Connection = c.httpClient
	sc.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return fmt.Errorf("got %d when subscribing to events", resp.StatusCode)
		}
		once.Do(func() { close(connected) })
		return nil
	}
	sc.ReconnectStrategy = newStreamBackOff(ctx, connected)
	sc.ReconnectNotify = func(err error, next time.Duration) {
		logrus.Warnf("event stream dropped: %v; reconnecting in %s", err, next.Round(time.Millisecond))
	}

	ch := make(chan events.Event, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(ch)

		err := sc.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			ev, ok := toEvent(msg)
			if !ok {
				return
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil && ctx.Err() == nil {
			logrus.Debugf("event stream ended: %v", err)
		}
		errc <- err
	}()

	select {
	case <-connected:
		return ch, nil
	case err := <-errc:
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to events: %w", err)
		}
		return ch, nil
	}
}

// toEvent converts a received message, skipping frames without a payload
// such as keep-alive comments.
func toEvent(msg *sse.Event) (events.Event, bool) {
	if msg == nil || (len(msg.Event) == 0 && len(msg.Data) == 0) {
		return events.Event{}, false
	}
	name := string(msg.Event)
	if name == "" {
		name = "message"
	}
	return events.Event{Name: name, Data: json.RawMessage(append([]byte(nil), msg.Data...))}, true
}

// streamBackOff never retries before the first successful connection, so
// SubscribeEvents can report an unreachable daemon, and stops once ctx is
// done.
type streamBackOff struct {
	backoff.BackOff
	ctx       context.Context
	connected <-chan struct{}
}

func newStreamBackOff(ctx context.Context, connected <-chan struct{}) *streamBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return &streamBackOff{BackOff: b, ctx: ctx, connected: connected}
}

func (b *streamBackOff) NextBackOff() time.Duration {
	if b.ctx.Err() != nil {
		return backoff.Stop
	}
	select {
	case <-b.connected:
		return b.BackOff.NextBackOff()
	default:
		return backoff.Stop
	}
}
