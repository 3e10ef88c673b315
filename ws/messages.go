package ws

import "encoding/json"

const (
	MsgSync                = "sync"
	MsgSnapshot            = "snapshot"
	MsgParticipantsUpdated = "participants_updated"
	MsgSessionUpdated      = "session_updated"
	MsgRoundUpdated        = "round_updated"
	MsgError               = "error"
)

type IncomingMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type OutgoingMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
