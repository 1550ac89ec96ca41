package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/gookit/color"
)

const usernamePrompt = "Enter your username:"

// Session pipes one terminal to one relay connection.
type Session struct {
	log      *slog.Logger
	conn     net.Conn
	out      io.Writer
	username string
	colours  bool
}

func NewSession(log *slog.Logger, conn net.Conn, out io.Writer, username string, colours bool) *Session {
	return &Session{log: log, conn: conn, out: out, username: username, colours: colours}
}

// Run returns when the server closes the connection, input ends or ctx is cancelled.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()
	defer s.conn.Close()

	received := make(chan error, 1)
	go func() { received <- s.receive() }()

	sent := make(chan error, 1)
	go func() { sent <- s.send(in) }()

	var err error
	select {
	case err = <-received:
		s.log.Info("Server closed the connection")
	case err = <-sent:
		s.log.Info("Input closed")
	}
	if ctx.Err() != nil || isClosed(err) {
		return nil
	}
	return err
}

func (s *Session) receive() error {
	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == usernamePrompt && s.username != "" {
			if _, err := fmt.Fprintln(s.conn, s.username); err != nil {
				return fmt.Errorf("failed to send username: %w", err)
			}
			continue
		}
		if _, err := fmt.Fprintln(s.out, Render(line, s.colours)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *Session) send(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if _, err := fmt.Fprintln(s.conn, scanner.Text()); err != nil {
			return fmt.Errorf("failed to send line: %w", err)
		}
	}
	return scanner.Err()
}

// Render colours a server line according to its kind.
func Render(line string, colours bool) string {
	if !colours {
		return line
	}
	switch {
	case line == usernamePrompt:
		return color.New(color.FgMagenta, color.OpBold).Render(line)
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "] :)"):
		return color.New(color.FgGreen).Render(line)
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, " :(]"):
		return color.New(color.FgYellow).Render(line)
	default:
		sender, content, ok := strings.Cut(line, ": ")
		if !ok {
			return line
		}
		return color.New(color.FgCyan, color.OpBold).Render(sender+":") + " " + content
	}
}

func isClosed(err error) bool {
	return err == nil || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
