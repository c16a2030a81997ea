package serialport

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
)

// LineConn runs newline-terminated request/reply exchanges over a port.
// Safe for concurrent use; exchanges are serialized.
type LineConn struct {
	port Port

	mu      sync.Mutex
	pending []byte
}

// NewLineConn wraps an open port.
func NewLineConn(port Port) *LineConn {
	return &LineConn{port: port}
}

// Exchange writes req plus a newline and returns the next reply line with
// surrounding whitespace trimmed. The port's read timeout bounds each poll;
// ctx bounds the whole exchange.
func (c *LineConn) Exchange(ctx context.Context, req string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.port.Write([]byte(req + "\n")); err != nil {
		return "", fmt.Errorf("write %q: %w", req, err)
	}

	chunk := make([]byte, 64)
	for {
		if line, ok := c.takeLine(); ok {
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := c.port.Read(chunk)
		if err != nil {
			return "", fmt.Errorf("read reply to %q: %w", req, err)
		}
		c.pending = append(c.pending, chunk[:n]...)
	}
}

// Close releases the port.
func (c *LineConn) Close() error {
	return c.port.Close()
}

func (c *LineConn) takeLine() (string, bool) {
	i := bytes.IndexByte(c.pending, '\n')
	if i < 0 {
		return "", false
	}
	line := string(c.pending[:i])
	c.pending = c.pending[i+1:]
	return strings.TrimSpace(line), true
}
