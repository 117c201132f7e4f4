package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/imkarma/taskplan/internal/planner"
	"github.com/imkarma/taskplan/internal/store"
)

// Session is a conversation between the user and the assistant.
type Session struct {
	client     Client
	svc        *planner.Service
	prompts    *PromptBuilder
	transcript *Transcript
	logger     *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTranscript continues an earlier conversation.
func WithTranscript(t *Transcript) SessionOption {
	return func(s *Session) { s.transcript = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a session backed by the planner service.
func NewSession(client Client, svc *planner.Service, opts ...SessionOption) *Session {
	s := &Session{
		client:     client,
		svc:        svc,
		prompts:    NewPromptBuilder(svc),
		transcript: NewTranscript(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transcript returns the conversation.
func (s *Session) Transcript() *Transcript { return s.transcript }

// Send asks the assistant to respond to message. The user message and the
// reply are appended together once the reply arrives, so a failed call
// leaves the transcript unchanged.
func (s *Session) Send(ctx context.Context, message string) (string, error) {
	system, err := s.prompts.SystemPrompt(ctx)
	if err != nil {
		return "", fmt.Errorf("build system prompt: %w", err)
	}

	user := Message{Role: RoleUser, Content: message}
	msgs := append(s.transcript.Messages(), user)

	reply, err := s.client.Complete(ctx, system, msgs)
	if err != nil {
		s.logger.Error("Chat request failed", "error", err)
		return "", fmt.Errorf("chat: %w", err)
	}

	s.transcript.Append(user, Message{Role: RoleAssistant, Content: reply})
	s.logger.Debug("Chat reply received", "messages", s.transcript.Len())
	return reply, nil
}

// Apply creates a task for each suggestion. It stops at the first failure
// and returns the tasks created before it.
func (s *Session) Apply(ctx context.Context, suggestions []Suggestion) ([]*store.Task, error) {
	created := make([]*store.Task, 0, len(suggestions))
	for _, sg := range suggestions {
		task, err := s.svc.CreateTask(ctx, sg.NewTask())
		if err != nil {
			return created, fmt.Errorf("apply suggestion %q: %w", sg.Title, err)
		}
		created = append(created, task)
	}
	return created, nil
}
