package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// ClientConfig holds client configuration.
type ClientConfig struct {
	// BaseURL of the sync server, e.g. "https://sync.example.com"
	BaseURL string

	// APIKey sent with every request
	APIKey string

	// HTTPClient for request/response calls (default: 15s timeout client)
	HTTPClient *http.Client

	// BreakerTimeout is how long the circuit stays open after tripping
	BreakerTimeout time.Duration

	// BreakerFailures is the number of consecutive failures that trips it
	BreakerFailures uint32

	// Logger for client activity (default: stderr logger)
	Logger *log.Logger
}

// Client talks to a Server. It implements Backend.
//
// A Client is constructed once at startup and passed to every coordinator
// that needs it; Close releases its idle connections.
type Client struct {
	base     *url.URL
	apiKey   string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	clientID string
	logger   *log.Logger
}

// NewClient validates config and creates a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if !strings.HasPrefix(config.BaseURL, "http") {
		return nil, fmt.Errorf("invalid base URL %q: must start with http", config.BaseURL)
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = 10 * time.Second
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = 5
	}

	logger := config.Logger
	failures := config.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "crewflo-remote",
		MaxRequests: 1,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// A missing row or a rejected key is an answer, not an outage.
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	})

	return &Client{
		base:     base,
		apiKey:   config.APIKey,
		http:     config.HTTPClient,
		breaker:  breaker,
		clientID: uuid.NewString(),
		logger:   logger,
	}, nil
}

// ClientID implements Backend.
func (c *Client) ClientID() string {
	return c.clientID
}

// Close releases idle HTTP connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Fetch implements Store.
func (c *Client) Fetch(ctx context.Context, key string) (json.RawMessage, error) {
	var row rowPayload
	if err := c.do(ctx, http.MethodGet, "/rows/"+url.PathEscape(key), nil, &row); err != nil {
		return nil, err
	}
	return row.Data, nil
}

// Upsert implements Store.
func (c *Client) Upsert(ctx context.Context, key string, data json.RawMessage) error {
	return c.do(ctx, http.MethodPut, "/rows/"+url.PathEscape(key), data, nil)
}

// Keys lists the keys stored on the server starting with prefix.
func (c *Client) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	path := "/keys"
	if prefix != "" {
		path += "?prefix=" + url.QueryEscape(prefix)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// Ping checks that the server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("remote unavailable: %w", err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(HeaderAPIKey, c.apiKey)
	req.Header.Set(HeaderClientID, c.clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Subscribe implements Feed over a WebSocket stream.
func (c *Client) Subscribe(ctx context.Context, key string) (<-chan Change, <-chan error, error) {
	if key == "" {
		return nil, nil, fmt.Errorf("key cannot be empty")
	}

	wsURL := *c.base
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path += "/realtime"
	wsURL.RawQuery = url.Values{"key": {key}}.Encode()

	header := http.Header{}
	header.Set(HeaderAPIKey, c.apiKey)
	header.Set(HeaderClientID, c.clientID)

	conn, resp, err := websocket.Dial(ctx, wsURL.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, fmt.Errorf("failed to open realtime channel for %s: %w", key, err)
	}
	conn.SetReadLimit(2 * maxDocumentSize)

	changes := make(chan Change)
	errs := make(chan error, 1)

	go func() {
		defer close(changes)
		defer conn.CloseNow()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("realtime channel for %s closed: %w", key, err)
				}
				return
			}

			var change Change
			if err := json.Unmarshal(data, &change); err != nil {
				c.logger.Printf("Ignoring malformed realtime message: %v", err)
				continue
			}
			if change.Key != key {
				continue
			}
			change.Source = SourceRemote

			select {
			case changes <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return changes, errs, nil
}
