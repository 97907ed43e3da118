package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/fediverse-client/pkg/apijson"
	"github.com/Sternrassler/fediverse-client/pkg/stream"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// StreamKind names a streaming timeline.
type StreamKind string

const (
	StreamKindUser         StreamKind = "user"
	StreamKindPublic       StreamKind = "public"
	StreamKindPublicLocal  StreamKind = "public:local"
	StreamKindHashtag      StreamKind = "hashtag"
	StreamKindHashtagLocal StreamKind = "hashtag:local"
	StreamKindList         StreamKind = "list"
	StreamKindDirect       StreamKind = "direct"
)

const (
	streamingPath           = "/api/v1/streaming"
	defaultHandshakeTimeout = 45 * time.Second
)

// ErrInvalidStream is returned for a StreamRequest that names no known
// stream or lacks the tag or list it needs.
var ErrInvalidStream = errors.New("invalid stream request")

// StreamRequest selects the stream to open and how its reader behaves.
type StreamRequest struct {
	Stream StreamKind

	// Tag is required for the hashtag streams, without "#".
	Tag string

	// List is the list id, required for StreamKindList.
	List string

	Reader stream.ReaderConfig
}

func (r StreamRequest) validate() error {
	switch r.Stream {
	case StreamKindUser, StreamKindPublic, StreamKindPublicLocal, StreamKindDirect:
		return nil
	case StreamKindHashtag, StreamKindHashtagLocal:
		if r.Tag == "" {
			return fmt.Errorf("%w: %s stream needs a tag", ErrInvalidStream, r.Stream)
		}
		return nil
	case StreamKindList:
		if r.List == "" {
			return fmt.Errorf("%w: list stream needs a list id", ErrInvalidStream)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown stream %q", ErrInvalidStream, r.Stream)
	}
}

func (r StreamRequest) query() url.Values {
	q := url.Values{}
	if r.Tag != "" {
		q.Set("tag", r.Tag)
	}
	if r.List != "" {
		q.Set("list", r.List)
	}
	return q
}

// websocketURL builds the ws(s) URL for r on the streaming host.
func (c *Client) websocketURL(r StreamRequest) *url.URL {
	u := c.streaming.JoinPath(streamingPath)
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	q := r.query()
	q.Set("stream", string(r.Stream))
	if ts, ok := c.auth.(tokenSource); ok && ts.AccessToken() != "" {
		q.Set("access_token", ts.AccessToken())
	}
	u.RawQuery = q.Encode()
	return u
}

// DialStream opens r over WebSocket and returns a reader of its events.
// The caller closes the reader.
func (c *Client) DialStream(ctx context.Context, r StreamRequest) (*stream.Reader, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	// The handshake carries the same headers as API requests.
	probe, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streaming.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if err := c.auth.AttachCredentials(probe); err != nil {
		return nil, fmt.Errorf("attach credentials: %w", err)
	}
	probe.Header.Set("User-Agent", c.userAgent)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = c.config.Timeout
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = defaultHandshakeTimeout
	}

	target := c.websocketURL(r)
	conn, resp, err := dialer.DialContext(ctx, target.String(), probe.Header)
	if err != nil {
		requestsTotal.WithLabelValues(streamingPath, "handshake_error").Inc()
		if resp == nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return nil, &HTTPError{
				ErrorClass: ErrorClassNetwork,
				Message:    "websocket dial",
				Err:        err,
			}
		}
		return nil, handshakeError(resp, err)
	}
	requestsTotal.WithLabelValues(streamingPath, "101").Inc()

	c.logger.Info().
		Str("stream", string(r.Stream)).
		Str("transport", "websocket").
		Msg("Stream connected")

	reader, err := stream.NewReader(stream.NewWebSocketSource(conn), c.readerConfig(r))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return reader, nil
}

// handshakeError turns a refused upgrade into an *HTTPError, keeping the
// API error message when the body carries one.
func handshakeError(resp *http.Response, err error) error {
	defer resp.Body.Close()

	class := classifyStatus(resp.StatusCode)
	if class == "" {
		class = ErrorClassServer
	}
	errorsTotal.WithLabelValues(string(class)).Inc()

	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		ErrorClass: class,
		Message:    resp.Status,
		Err:        err,
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if apiErr, ok := apijson.ParseAPIError(body); ok {
		apiErr.StatusCode = resp.StatusCode
		httpErr.Err = apiErr
	}
	return httpErr
}

// StreamHTTP opens r as a chunked HTTP response of server-sent events.
// Useful where WebSocket upgrades are blocked.
func (c *Client) StreamHTTP(ctx context.Context, r StreamRequest) (*stream.Reader, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	path := streamingPath + "/" + strings.ReplaceAll(string(r.Stream), ":", "/")
	u := c.streaming.JoinPath(path)
	if q := r.query(); len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// A client timeout would cut the stream off.
	sc := *c
	sc.httpClient = &http.Client{
		Transport:     c.httpClient.Transport,
		CheckRedirect: c.httpClient.CheckRedirect,
		Jar:           c.httpClient.Jar,
	}

	resp, err := sc.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		_, err := apijson.DecodeResponse[struct{}](resp)
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    resp.Status,
			Err:        err,
		}
	}

	c.logger.Info().
		Str("stream", string(r.Stream)).
		Str("transport", "sse").
		Msg("Stream connected")

	reader, err := stream.NewReader(stream.NewBodySource(resp.Body), c.readerConfig(r))
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	return reader, nil
}

func (c *Client) readerConfig(r StreamRequest) stream.ReaderConfig {
	cfg := r.Reader
	if cfg.Logger == nil {
		logger := log.With().
			Str("component", "stream").
			Str("instance", c.base.Host).
			Str("stream", string(r.Stream)).
			Logger()
		cfg.Logger = &logger
	}
	return cfg
}

// Stream opens r over WebSocket. It is DialStream under a shorter name.
func (c *Client) Stream(ctx context.Context, r StreamRequest) (*stream.Reader, error) {
	return c.DialStream(ctx, r)
}

// StreamUser streams the authenticated account's home timeline and
// notifications.
func (c *Client) StreamUser(ctx context.Context) (*stream.Reader, error) {
	return c.DialStream(ctx, StreamRequest{Stream: StreamKindUser})
}

// StreamPublic streams the federated timeline.
func (c *Client) StreamPublic(ctx context.Context) (*stream.Reader, error) {
	return c.DialStream(ctx, StreamRequest{Stream: StreamKindPublic})
}

// StreamLocal streams statuses posted on this instance.
func (c *Client) StreamLocal(ctx context.Context) (*stream.Reader, error) {
	return c.DialStream(ctx, StreamRequest{Stream: StreamKindPublicLocal})
}

// StreamHashtag streams public statuses tagged with tag.
func (c *Client) StreamHashtag(ctx context.Context, tag string, local bool) (*stream.Reader, error) {
	kind := StreamKindHashtag
	if local {
		kind = StreamKindHashtagLocal
	}
	return c.DialStream(ctx, StreamRequest{Stream: kind, Tag: tag})
}

// StreamList streams the statuses of a list.
func (c *Client) StreamList(ctx context.Context, listID string) (*stream.Reader, error) {
	return c.DialStream(ctx, StreamRequest{Stream: StreamKindList, List: listID})
}

// StreamDirect streams direct messages.
func (c *Client) StreamDirect(ctx context.Context) (*stream.Reader, error) {
	return c.DialStream(ctx, StreamRequest{Stream: StreamKindDirect})
}
