// Package chat is the conversational assistant: a linear transcript shared
// with an LLM, a system prompt built from the current tasks, and a parser
// that turns suggested tasks in a reply into planner input.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Roles used in a transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript is an append-only, ordered conversation.
type Transcript struct {
	mu   sync.Mutex
	msgs []Message
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds messages to the end of the transcript.
func (t *Transcript) Append(msgs ...Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, msgs...)
}

// Messages returns a copy of the conversation so far.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.msgs...)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// LoadTranscript reads a transcript saved with Save. A missing file yields an
// empty transcript.
func LoadTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewTranscript(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return &Transcript{msgs: msgs}, nil
}

// Save writes the transcript as a JSON array.
func (t *Transcript) Save(path string) error {
	data, err := json.MarshalIndent(t.Messages(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
