package session

import (
	"sync"
	"time"

	"HealthAssist/internal/backend"
	"HealthAssist/internal/markup"

	"github.com/google/uuid"
)

// Role identifies who authored a Turn
type Role string

const (
	RoleUser      Role = backend.RoleUser
	RoleAssistant Role = backend.RoleAssistant
)

// Turn represents a single message of the conversation
type Turn struct {
	ID        string
	Role      Role
	Text      string          // plain text of the turn
	Markup    markup.Document // formatted reply, assistant turns only
	Timestamp time.Time
}

// PlainText returns the turn as natural-language text with no markup
func (t Turn) PlainText() string {
	return t.Text
}

// Conversation is the ordered history of one chat session. Turns are only
// ever appended; Clear is the only way to remove them.
type Conversation struct {
	ID        string
	StartTime time.Time

	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

// New creates an empty conversation
func New() *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		now:       time.Now,
	}
}

// AppendUser records a user turn
func (c *Conversation) AppendUser(text string) Turn {
	return c.append(Turn{Role: RoleUser, Text: text})
}

// AppendAssistant records a formatted assistant reply. The plain-text form
// replayed to the endpoint is derived from the document once, here.
func (c *Conversation) AppendAssistant(doc markup.Document) Turn {
	return c.append(Turn{Role: RoleAssistant, Text: markup.PlainText(doc), Markup: doc})
}

func (c *Conversation) append(t Turn) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	t.ID = uuid.NewString()
	t.Timestamp = c.now()
	c.turns = append(c.turns, t)
	return t
}

// ToRequestMessages maps every turn, oldest first, to a chat-completion message
func (c *Conversation) ToRequestMessages() []backend.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	messages := make([]backend.Message, len(c.turns))
	for i, t := range c.turns {
		messages[i] = backend.Message{Role: string(t.Role), Content: t.PlainText()}
	}
	return messages
}

// Turns returns a copy of the history
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	turns := make([]Turn, len(c.turns))
	copy(turns, c.turns)
	return turns
}

// Len returns the number of turns
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Last returns the most recent turn
func (c *Conversation) Last() (Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// Clear discards every turn
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}

// Window keeps the last n messages. The conversation itself never trims;
// callers that need a bounded prompt apply this to ToRequestMessages.
func Window(messages []backend.Message, n int) []backend.Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
