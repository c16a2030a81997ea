package serialport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPort answers each write with the next reply, one byte per read.
type scriptedPort struct {
	replies []string
	in      []byte
	writes  []string
	readErr error
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.writes = append(p.writes, string(b))
	if len(p.replies) > 0 {
		p.in = append(p.in, p.replies[0]...)
		p.replies = p.replies[1:]
	}
	return len(b), nil
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.in) == 0 || len(b) == 0 {
		return 0, nil
	}
	b[0] = p.in[0]
	p.in = p.in[1:]
	return 1, nil
}

func (p *scriptedPort) Close() error { return nil }

func TestLineConn_Exchange(t *testing.T) {
	port := &scriptedPort{replies: []string{"OK\r\n", "ERR busy\n"}}
	c := NewLineConn(port)

	line, err := c.Exchange(context.Background(), "DRIVE F")
	require.NoError(t, err)
	assert.Equal(t, "OK", line)

	line, err = c.Exchange(context.Background(), "PAN 0.500")
	require.NoError(t, err)
	assert.Equal(t, "ERR busy", line)

	assert.Equal(t, []string{"DRIVE F\n", "PAN 0.500\n"}, port.writes)
}

func TestLineConn_BuffersExtraLines(t *testing.T) {
	port := &scriptedPort{replies: []string{"A\nB\n"}}
	c := NewLineConn(port)

	first, err := c.Exchange(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "A", first)

	second, err := c.Exchange(context.Background(), "Y")
	require.NoError(t, err)
	assert.Equal(t, "B", second)
}

func TestLineConn_Deadline(t *testing.T) {
	c := NewLineConn(&scriptedPort{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Exchange(ctx, "R")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLineConn_ReadError(t *testing.T) {
	boom := errors.New("unplugged")
	c := NewLineConn(&scriptedPort{readErr: boom})
	_, err := c.Exchange(context.Background(), "R")
	assert.ErrorIs(t, err, boom)
}
