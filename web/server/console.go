package server

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ConsoleMessage is one log line destined for the browser console.
type ConsoleMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // "debug", "info", "warn", "error"
}

// consoleWriter is an io.Writer for zerolog that turns each JSON event
// into a ConsoleMessage on a channel. Sends never block: when the
// channel is full the line is dropped rather than stalling the render.
type consoleWriter struct {
	events chan<- ConsoleMessage
}

func newConsoleWriter(events chan<- ConsoleMessage) *consoleWriter {
	return &consoleWriter{events: events}
}

// Write implements io.Writer. Lines that are not zerolog JSON pass
// through verbatim at info level.
func (cw *consoleWriter) Write(p []byte) (int, error) {
	msg := ConsoleMessage{Level: "info", Timestamp: time.Now()}

	var fields map[string]interface{}
	if err := json.Unmarshal(p, &fields); err == nil {
		if level, ok := fields["level"].(string); ok {
			msg.Level = level
			delete(fields, "level")
		}
		if text, ok := fields["message"].(string); ok {
			msg.Message = text
			delete(fields, "message")
		}
		// Append remaining structured fields in a stable order.
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg.Message += fmt.Sprintf(" %s=%v", k, fields[k])
		}
		msg.Message = strings.TrimSpace(msg.Message)
	} else {
		msg.Message = strings.TrimSpace(string(p))
	}

	select {
	case cw.events <- msg:
	default:
	}
	return len(p), nil
}
