package stream

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// LineSource yields the lines of a connected stream. ReadLine blocks until
// a line is available and returns an error once the transport is done.
// Close may be called from another goroutine to unblock a pending ReadLine.
type LineSource interface {
	ReadLine() (string, error)
	Close() error
}

// BodySource reads lines from a chunked HTTP response body.
type BodySource struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// NewBodySource wraps an HTTP response body. Lines may end in LF or CRLF.
func NewBodySource(body io.ReadCloser) *BodySource {
	return &BodySource{body: body, reader: bufio.NewReader(body)}
}

// ReadLine returns the next line without its terminator. A final line that
// is not terminated is returned before io.EOF.
func (s *BodySource) ReadLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r"), nil
		}
		return "", err
	}
	return strings.TrimRight(line[:len(line)-1], "\r"), nil
}

// Close closes the body.
func (s *BodySource) Close() error {
	return s.body.Close()
}

// closeGracePeriod bounds how long Close waits to send the close frame.
const closeGracePeriod = time.Second

// WebSocketSource reads lines from a WebSocket connection. Every message is
// split on newlines; a message without newlines is one line.
type WebSocketSource struct {
	conn      *websocket.Conn
	lines     []string
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketSource wraps a connected WebSocket.
func NewWebSocketSource(conn *websocket.Conn) *WebSocketSource {
	return &WebSocketSource{conn: conn}
}

// ReadLine returns the next buffered line, reading a new message when the
// buffer is empty. A normal close from the server is reported as io.EOF.
func (s *WebSocketSource) ReadLine() (string, error) {
	for len(s.lines) == 0 {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		s.lines = strings.Split(strings.TrimSuffix(string(msg), "\n"), "\n")
	}

	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

// Close sends a close frame and closes the connection.
func (s *WebSocketSource) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
