package transport

import (
	"encoding/json"

	"github.com/pairshare/pairshare/internal/relay"
	"github.com/pairshare/pairshare/internal/sessions"
)

// Inbound frame types
const (
	FrameCreateSession = "create-session"
	FrameJoinSession   = "join-session"
	FrameSendMessage   = "send-message"
	FrameFileAnnounce  = "file-announce"
	FrameLeaveSession  = "leave-session"
)

// EventConnected is the first frame every connection receives
const EventConnected relay.EventType = "connected"

// InboundFrame is a request sent by a client
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ConnectedPayload tells a client its connection id
type ConnectedPayload struct {
	ID sessions.ConnectionID `json:"id"`
}

type joinRequest struct {
	Code string `json:"code"`
}

type messageRequest struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

type fileRequest struct {
	Code string            `json:"code"`
	File sessions.FileMeta `json:"file"`
}

func decodeData(frame InboundFrame, v any) error {
	if len(frame.Data) == 0 {
		return errInvalidRequest
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		return errInvalidRequest
	}
	return nil
}
