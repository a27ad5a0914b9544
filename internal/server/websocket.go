package server

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
)

// Live update intervals.
const (
	LevelsInterval = 100 * time.Millisecond // 10 fps for VU meters
	StatusInterval = 3 * time.Second
)

// WebSocketConn is the interface for WebSocket connection operations.
type WebSocketConn interface {
	io.Closer
	WriteJSON(v any) error
	ReadJSON(v any) error
}

// LiveSource provides the data pushed to WebSocket clients.
type LiveSource interface {
	WSStatus() types.WSStatusResponse
	Levels() types.AudioLevels
}

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin reports whether the WebSocket connection origin is allowed.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests and non-browser clients omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected WebSocket connection: invalid origin URL", "origin", origin)
		return false
	}
	host := u.Hostname()

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost || host == "localhost" {
		return true
	}

	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	slog.Warn("rejected WebSocket connection", "origin", origin, "host", host)
	return false
}

// UpgradeConnection upgrades an HTTP connection to WebSocket.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// ServeLive streams status and meter levels to conn until the client goes
// away, and dispatches the commands it sends.
func ServeLive(conn WebSocketConn, src LiveSource, commands *CommandHandler) {
	// Only the writer goroutine writes to the connection.
	send := make(chan any, 16)
	done := make(chan struct{})

	go runWriter(conn, send)
	go runReader(conn, commands, send, done)

	runEventLoop(src, send, done)
}

// runWriter writes messages from the send channel to the connection.
func runWriter(conn WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runReader reads commands from the connection and dispatches them.
func runReader(conn WebSocketConn, commands *CommandHandler, send chan<- any, done chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		if commands != nil {
			commands.Handle(cmd, send)
		}
	}
}

// runEventLoop pushes periodic status and level updates.
func runEventLoop(src LiveSource, send chan any, done <-chan struct{}) {
	levelsTicker := time.NewTicker(LevelsInterval)
	statusTicker := time.NewTicker(StatusInterval)
	defer levelsTicker.Stop()
	defer statusTicker.Stop()
	defer close(send)

	push := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !push(src.WSStatus()) {
		return
	}

	for {
		var msg any
		select {
		case <-done:
			return
		case <-levelsTicker.C:
			msg = types.WSLevelsResponse{Type: "levels", Levels: src.Levels()}
		case <-statusTicker.C:
			msg = src.WSStatus()
		}
		if !push(msg) {
			return
		}
	}
}
