package internal

import (
	"chat-relay/observability"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// StatsProvider returns the current server counters.
type StatsProvider func() observability.Stats

const inspectPage = `<!DOCTYPE html>
<html>
<head><title>chat-relay</title><meta http-equiv="refresh" content="5"></head>
<body>
<h1>chat-relay</h1>
<p>Up since {{.StartedAt.Format "15:04:05"}} ({{.Uptime}})</p>
<table>
<tr><td>Peers online</td><td>{{.PeersOnline}}</td></tr>
<tr><td>Accepted</td><td>{{.Accepted}}</td></tr>
<tr><td>Joined / Left</td><td>{{.Joined}} / {{.Left}}</td></tr>
<tr><td>Chats</td><td>{{.Chats}}</td></tr>
<tr><td>Delivered / Dropped</td><td>{{.Delivered}} / {{.Dropped}}</td></tr>
<tr><td>Evicted</td><td>{{.Evicted}}</td></tr>
</table>
<ul>{{range .Usernames}}<li>{{.}}</li>{{end}}</ul>
</body>
</html>`

var inspectTemplate = template.Must(template.New("inspect").Parse(inspectPage))

// NewDebugHandler serves GET /stats as JSON and GET /inspect as a small HTML page.
func NewDebugHandler(stats StatsProvider) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats())
	})

	mux.HandleFunc("GET /inspect", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = inspectTemplate.Execute(w, stats())
	})

	return mux
}

// StartDebugServer listens on port until ctx is cancelled.
func StartDebugServer(ctx context.Context, log *slog.Logger, port int, stats StatsProvider) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on debug port %d: %w", port, err)
	}

	server := &http.Server{
		Handler:           NewDebugHandler(stats),
		ReadHeaderTimeout: 5 * time.Second,
	}
	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	go func() {
		log.Info("Debug server started", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Debug server stopped", "error", err)
		}
	}()
	return nil
}
