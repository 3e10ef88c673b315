package game

import (
	"encoding/json"
	"winequiz/store"
)

const (
	StatusOpen      = "open"
	StatusActive    = "active"
	StatusFinished  = "finished"
	StatusCancelled = "cancelled"

	RoundOpen   = "open"
	RoundClosed = "closed"
)

// ChangeKind names the row family a change touched.
type ChangeKind string

const (
	ChangeParticipants ChangeKind = "participants"
	ChangeSession      ChangeKind = "session"
	ChangeRounds       ChangeKind = "rounds"
)

// Change tells subscribers that rows of Kind changed for a session. It
// carries no row data: subscribers re-read what they need.
type Change struct {
	SessionID string
	Kind      ChangeKind
}

// Publisher fans changes out to whoever watches the session.
type Publisher interface {
	Publish(change Change)
}

type SessionState struct {
	Session      *store.GameSession   `json:"session"`
	Participants []*store.Participant `json:"participants"`
	CurrentRound *store.Round         `json:"current_round"`
}

type StartRoundInput struct {
	SessionID    string
	CallerUserID string
	Payload      json.RawMessage
	RoundNumber  int
}

type AnswerResult struct {
	Answer *store.RoundAnswer `json:"answer"`
	Score  int                `json:"score"`
}

// roundPayload is the part of an opaque round payload the server reads.
type roundPayload struct {
	CorrectIndex *int `json:"correct_index"`
}
