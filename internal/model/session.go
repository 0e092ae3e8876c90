package model

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SessionTurn is one utterance in a conversation, either side.
type SessionTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the full stored dialogue for one session id. Turns keep strict
// insertion order; a session comes into being on first reference and is only
// removed by external eviction.
type Session struct {
	SessionID string        `json:"-"`
	Turns     []SessionTurn `json:"messages"`
}
