// Package genai opens live sessions through the official Google Gen AI SDK.
// It is an alternative to the raw websocket transport in core/live/gemini.
package genai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/koscakluka/ema-live/core/live"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

const defaultHandshakeTimeout = 15 * time.Second

var _ live.Connector = (*Client)(nil)

type Client struct {
	apiKey           string
	httpClient       *http.Client
	handshakeTimeout time.Duration
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithHandshakeTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.handshakeTimeout = timeout }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:       &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		handshakeTimeout: defaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Open(ctx context.Context, config live.Config, callbacks live.Callbacks) (live.Session, error) {
	ctx, span := tracer.Start(ctx, "open genai live session")
	defer span.End()
	span.SetAttributes(attribute.String("live.model", config.Model))

	s, err := c.open(ctx, config, callbacks.WithDefaults())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return s, nil
}

func (c *Client) open(ctx context.Context, config live.Config, callbacks live.Callbacks) (*session, error) {
	apiKey := c.apiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("API_KEY")
	}
	if apiKey == "" {
		return nil, live.ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	connectConfig, err := newConnectConfig(config)
	if err != nil {
		return nil, err
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	conn, err := client.Live.Connect(handshakeCtx, config.Model, connectConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}

	if err := awaitSetupComplete(handshakeCtx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s := newSession(conn, callbacks)
	go s.receiveLoop()
	callbacks.OnOpen()
	return s, nil
}

func awaitSetupComplete(ctx context.Context, conn *genai.Session) error {
	result := make(chan error, 1)
	go func() {
		for {
			msg, err := conn.Receive()
			if err != nil {
				result <- fmt.Errorf("failed to read setup acknowledgement: %w", err)
				return
			}
			if msg.SetupComplete != nil {
				result <- nil
				return
			}
		}
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		// Closing unblocks the pending Receive.
		_ = conn.Close()
		<-result
		return fmt.Errorf("live setup not acknowledged: %w", ctx.Err())
	}
}
