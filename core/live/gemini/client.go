package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-live/core/live"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultHandshakeTimeout = 15 * time.Second
)

var _ live.Connector = (*Client)(nil)

// Client opens Gemini Live sessions over a raw websocket.
type Client struct {
	apiKey           string
	endpoint         string
	dialer           *websocket.Dialer
	handshakeTimeout time.Duration
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

// WithEndpoint overrides the websocket URL, mostly useful for tests.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = endpoint }
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) { c.dialer = dialer }
}

func WithHandshakeTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.handshakeTimeout = timeout }
}

// NewClient creates a client. Without [WithAPIKey] the key is read from
// GEMINI_API_KEY, then API_KEY, when a session is opened.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		endpoint:         DefaultEndpoint,
		dialer:           websocket.DefaultDialer,
		handshakeTimeout: defaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Open(ctx context.Context, config live.Config, callbacks live.Callbacks) (live.Session, error) {
	ctx, span := tracer.Start(ctx, "open live session")
	defer span.End()
	span.SetAttributes(attribute.String("live.model", config.Model))

	session, err := c.open(ctx, config, callbacks.WithDefaults())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return session, nil
}

func (c *Client) open(ctx context.Context, config live.Config, callbacks live.Callbacks) (*session, error) {
	apiKey := c.resolveAPIKey()
	if apiKey == "" {
		return nil, live.ErrMissingAPIKey
	}

	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid live endpoint: %w", err)
	}
	query := endpoint.Query()
	query.Set("key", apiKey)
	endpoint.RawQuery = query.Encode()

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.handshakeTimeout)
		defer cancel()
	}

	conn, resp, err := c.dialer.DialContext(dialCtx, endpoint.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to open live websocket (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to open live websocket: %w", err)
	}

	if err := writeMessage(conn, newSetupMessage(config)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send setup: %w", err)
	}

	if err := awaitSetupComplete(dialCtx, conn, c.handshakeTimeout); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s := newSession(conn, callbacks)
	go s.readLoop()
	callbacks.OnOpen()
	return s, nil
}

func (c *Client) resolveAPIKey() string {
	if c.apiKey != "" {
		return c.apiKey
	}
	if apiKey, ok := os.LookupEnv("GEMINI_API_KEY"); ok && apiKey != "" {
		return apiKey
	}
	return os.Getenv("API_KEY")
}

func awaitSetupComplete(ctx context.Context, conn *websocket.Conn, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	// Cancellation unblocks the pending read by expiring its deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			stop()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("setup acknowledgement interrupted: %w", ctxErr)
			}
			return fmt.Errorf("failed to read setup acknowledgement: %w", err)
		}

		msg, err := decodeServerMessage(data)
		if err != nil {
			stop()
			return err
		}
		if msg.SetupComplete != nil {
			if !stop() {
				return fmt.Errorf("setup acknowledgement interrupted: %w", ctx.Err())
			}
			return nil
		}
	}
}

func writeMessage(conn *websocket.Conn, msg clientMessage) error {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal client message: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
