package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/npezzotti/ride-relay/internal/types"
)

const (
	EventMessage      = "message"
	EventConnected    = string(types.PresenceConnected)
	EventDisconnected = string(types.PresenceDisconnected)
)

// ServerMessage is the envelope for every frame the relay writes.
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Publish is a validated inbound chat submission.
type Publish struct {
	Message     string
	SenderId    int64
	RecipientId int64
}

type publishObject struct {
	Message     json.RawMessage `json:"message"`
	SenderId    json.RawMessage `json:"senderId"`
	RecipientId json.RawMessage `json:"recipientId"`
}

// ParsePublish decodes an inbound payload. Two shapes are accepted: the
// positional array [message, senderId, recipientId] and an object with
// message, senderId and recipientId keys. Ids may be integers or decimal
// strings. Any other field, including a client supplied date, is ignored.
func ParsePublish(raw []byte) (*Publish, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidMessageFormat)
	}

	var body, sender, recipient json.RawMessage
	switch raw[0] {
	case '[':
		var fields []json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessageFormat, err)
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: expected 3 fields, got %d", ErrInvalidMessageFormat, len(fields))
		}
		body, sender, recipient = fields[0], fields[1], fields[2]
	case '{':
		var obj publishObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessageFormat, err)
		}
		body, sender, recipient = obj.Message, obj.SenderId, obj.RecipientId
	default:
		return nil, fmt.Errorf("%w: payload must be an array or an object", ErrInvalidMessageFormat)
	}

	pub := &Publish{}
	var err error
	if pub.Message, err = parseBody(body); err != nil {
		return nil, err
	}
	if pub.SenderId, err = parseId("senderId", sender); err != nil {
		return nil, err
	}
	if pub.RecipientId, err = parseId("recipientId", recipient); err != nil {
		return nil, err
	}

	return pub, nil
}

func parseBody(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", fmt.Errorf("%w: message must be a string", ErrInvalidMessageFormat)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: message: %v", ErrInvalidMessageFormat, err)
	}
	return s, nil
}

func parseId(field string, raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidMessageFormat, field)
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidMessageFormat, field, err)
		}
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrInvalidMessageFormat, field, s)
	}
	return id, nil
}

func NewChatMessage(ev *types.ChatEvent) *ServerMessage {
	return &ServerMessage{
		Event: EventMessage,
		Data:  ev,
	}
}

func NewPresenceMessage(ev *types.PresenceEvent) *ServerMessage {
	return &ServerMessage{
		Event: string(ev.Kind),
		Data:  ev,
	}
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// Now returns the current UTC time at millisecond precision, rounded up so
// a stamp is never earlier than the instant it records.
func Now() time.Time {
	t := time.Now().UTC()
	if ms := t.Truncate(time.Millisecond); !ms.Equal(t) {
		return ms.Add(time.Millisecond)
	}
	return t.Round(0)
}
