// Package session holds the conversation state for one connected user: the
// ordered turn log, the bounded unflushed buffer, and the registry that
// enforces one live session per user.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced a turn. The integer values match the
// backend's senderType column (0 = user, 1 = bot).
type Speaker int

const (
	SpeakerUser Speaker = 0
	SpeakerBot  Speaker = 1
)

func (s Speaker) String() string {
	if s == SpeakerBot {
		return "bot"
	}
	return "user"
}

// Turn is one message in the conversation history. Turns are append-only and
// never mutated after creation.
type Turn struct {
	Seq            uint64    `json:"seq"`
	Speaker        Speaker   `json:"speaker"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID string    `json:"conversation_id"`
}

// Batch is a contiguous slice of unflushed turns handed to the sync
// coordinator. It carries its own ID so the backend can deduplicate a resend.
type Batch struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Turns          []Turn `json:"turns"`
}

// Pair is one complete user+bot exchange, used for context seeding.
type Pair struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Session is one live conversation for a connected user.
type Session struct {
	ID        string
	UserID    string
	Buffer    *TurnBuffer
	CreatedAt time.Time
}

// New creates a session with a fresh turn buffer.
func New(userID string, maxUnflushed int) *Session {
	id := uuid.New().String()
	return &Session{
		ID:        id,
		UserID:    userID,
		Buffer:    NewTurnBuffer(id, maxUnflushed),
		CreatedAt: time.Now(),
	}
}

// PairsFromTurns folds an ordered turn sequence into complete user+bot pairs,
// skipping misaligned turns. An incomplete trailing user turn is dropped.
func PairsFromTurns(turns []Turn) []Pair {
	var pairs []Pair
	for i := 0; i+1 < len(turns); {
		if turns[i].Speaker == SpeakerUser && turns[i+1].Speaker == SpeakerBot {
			pairs = append(pairs, Pair{User: turns[i].Content, Bot: turns[i+1].Content})
			i += 2
		} else {
			i++
		}
	}
	return pairs
}
