package prompt

import (
	"errors"
	"time"
)

// Role identifies a message author in the assembled sequence.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of an assembled prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn is one raw entry of the append-only conversation log consumed by the
// assembler.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrStructural marks a defect in the assembled sequence. It is fatal for the
// turn: the sequence must never be repaired in place or dispatched to the
// model backend.
var ErrStructural = errors.New("prompt structural invariant violated")
