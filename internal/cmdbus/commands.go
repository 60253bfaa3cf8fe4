package cmdbus

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/precision.land/internal/guidance"
	"github.com/banshee-data/precision.land/internal/monitoring"
)

// Command payload values.
const (
	CommandStart = "start"
	CommandStop  = "stop"
)

type commandMessage struct {
	Command string `json:"command"`
}

// ParseCommand decodes a {"command": "..."} payload into a guidance request.
func ParseCommand(payload []byte) (guidance.Request, error) {
	var msg commandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return guidance.Request{}, fmt.Errorf("failed to parse command: %w", err)
	}
	switch msg.Command {
	case CommandStart:
		return guidance.Request{Kind: guidance.BeginLanding}, nil
	case CommandStop:
		return guidance.Request{Kind: guidance.AbortLanding}, nil
	}
	return guidance.Request{}, fmt.Errorf("unknown command %q", msg.Command)
}

// CommandHandler returns a Handler that turns command payloads into requests
// for submit. Problems are reported on the bus status topic.
func (b *Bus) CommandHandler(submit func(guidance.Request) error) Handler {
	return func(topic string, payload []byte) {
		req, err := ParseCommand(payload)
		if err != nil {
			monitoring.Logf("cmdbus: %s: %v", topic, err)
			b.Status(fmt.Sprintf("rejected: %v", err))
			return
		}
		if err := submit(req); err != nil {
			monitoring.Warnf("cmdbus: %s request dropped: %v", req.Kind, err)
			b.Status(fmt.Sprintf("busy: %s not queued", req.Kind))
			return
		}
		monitoring.Logf("cmdbus: queued %s request", req.Kind)
	}
}
