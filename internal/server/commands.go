package server

import (
	"encoding/json"
	"log/slog"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SessionController starts and stops the recording session.
type SessionController interface {
	Start() error
	Stop() error
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	session SessionController
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(session SessionController) *CommandHandler {
	return &CommandHandler{session: session}
}

// Handle performs the requested action and sends its result. Commands use
// slash-style format: namespace/action (e.g., "session/start").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any) {
	switch cmd.Type {
	case "session/start":
		h.runAsync(cmd, h.session.Start, send)
	case "session/stop":
		h.runAsync(cmd, h.session.Stop, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
		trySend(send, cmd.Type, types.WSCommandResult{
			Type:  cmd.Type + "_result",
			Error: "unknown command",
		})
	}
}

// runAsync runs action in the background so a slow start or stop does not
// block the reader.
func (h *CommandHandler) runAsync(cmd WSCommand, action func() error, send chan<- any) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in WebSocket command", "type", cmd.Type, "panic", r)
			}
		}()

		result := types.WSCommandResult{Type: cmd.Type + "_result", Success: true}
		if err := action(); err != nil {
			result.Success = false
			result.Error = err.Error()
		}
		trySend(send, cmd.Type, result)
	}()
}

// trySend attempts to send a message, logging a warning if the channel is full.
func trySend(send chan<- any, cmdType string, msg any) {
	defer func() {
		if recover() != nil {
			slog.Debug("dropped response for closed WebSocket", "type", cmdType)
		}
	}()
	select {
	case send <- msg:
	default:
		slog.Warn("failed to send response: channel full", "type", cmdType)
	}
}
