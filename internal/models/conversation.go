package models

import (
	"errors"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleFunction:
		return true
	}
	return false
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn of an exported conversation.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content,omitempty"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	Weight       *int          `json:"weight,omitempty"`
}

// ConversationRecord is one line of the exported dataset.
type ConversationRecord struct {
	Messages []Message `json:"messages"`
}

var (
	ErrNoMessages         = errors.New("record has no messages")
	ErrNoAssistantMessage = errors.New("record has no assistant message")
	ErrInvalidRole        = errors.New("invalid message role")
	ErrMissingContent     = errors.New("message has neither content nor function call")
)

// Validate checks the invariants every exported record must hold.
func (r ConversationRecord) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}

	hasAssistant := false
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: %w: %q", i, ErrInvalidRole, m.Role)
		}
		if m.Content == "" && m.FunctionCall == nil {
			return fmt.Errorf("message %d: %w", i, ErrMissingContent)
		}
		if m.Role == RoleAssistant {
			hasAssistant = true
		}
	}
	if !hasAssistant {
		return ErrNoAssistantMessage
	}
	return nil
}
