// Package session is the registry for call sessions. It is the only part of
// the subsystem whose state outlives a single call: each established or
// attempted call leaves a session record behind for later audit and lookup.
package session

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Session statuses.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusEnded   = "ended"
)

// Session associates a room identifier with the two call participants.
// A session is never reused once ended.
type Session struct {
	ID          string    `json:"id" msgpack:"id"`
	Code        string    `json:"code" msgpack:"code"`
	EncounterID string    `json:"encounterId" msgpack:"encounter_id"`
	CallerID    string    `json:"callerId" msgpack:"caller_id"`
	CalleeID    string    `json:"calleeId,omitempty" msgpack:"callee_id"`
	Status      string    `json:"status" msgpack:"status"`
	CreatedAt   time.Time `json:"createdAt" msgpack:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" msgpack:"updated_at"`
}

// CreateRequest is the body of POST /api/sessions.
type CreateRequest struct {
	EncounterID string `json:"encounterId" binding:"required"`
	CalleeID    string `json:"calleeId,omitempty"`
}

// CreateResponse is the body returned on session creation.
type CreateResponse struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

const (
	codeLength = 6
	codeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no ambiguous chars
)

// NewCode generates a short, shareable room code.
func NewCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}
