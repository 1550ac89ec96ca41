// Package transport frames a TCP stream into newline-delimited text lines.
package transport

import (
	"bufio"
	"chat-relay/contract"
	relayerrors "chat-relay/errors"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxLineLength = 64 * 1024
	initialBufferSize    = 4 * 1024
)

var _ contract.LineTransport = (*Conn)(nil)

// Conn reads and writes one line at a time.
// ReadLine must only be called by one goroutine, and so must WriteLine.
type Conn struct {
	conn          net.Conn
	scanner       *bufio.Scanner
	maxLineLength int
	writeTimeout  time.Duration
	closeOnce     sync.Once
	closeErr      error
}

type Option func(c *Conn)

// WithMaxLineLength bounds the size of an inbound line, longer lines end the stream.
func WithMaxLineLength(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.maxLineLength = n
		}
	}
}

// WithWriteTimeout sets a deadline on every write, zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d >= 0 {
			c.writeTimeout = d
		}
	}
}

func NewConn(conn net.Conn, options ...Option) *Conn {
	c := &Conn{conn: conn, maxLineLength: DefaultMaxLineLength}
	for _, option := range options {
		option(c)
	}
	c.scanner = bufio.NewScanner(conn)
	c.scanner.Buffer(make([]byte, 0, min(initialBufferSize, c.maxLineLength)), c.maxLineLength)
	return c
}

// ReadLine returns the next line without its "\n" or "\r\n" terminator.
// io.EOF means the peer closed the stream cleanly.
func (c *Conn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return strings.TrimSuffix(c.scanner.Text(), "\r"), nil
	}
	err := c.scanner.Err()
	switch {
	case err == nil:
		return "", io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return "", fmt.Errorf("%w: limit is %d bytes", relayerrors.ErrLineTooLong, c.maxLineLength)
	default:
		return "", err
	}
}

func (c *Conn) WriteLine(line string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Close is safe to call from several goroutines, only the first call closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
