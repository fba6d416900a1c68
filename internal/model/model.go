package model

import (
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus tracks the lifecycle of an assistant message.
// pending -> streaming -> complete | errored. There is no way back out of
// complete or errored; a new turn always creates a new message.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusStreaming MessageStatus = "streaming"
	StatusComplete  MessageStatus = "complete"
	StatusErrored   MessageStatus = "errored"
)

// Terminal reports whether no further content may be written to the message.
func (s MessageStatus) Terminal() bool {
	return s == StatusComplete || s == StatusErrored
}

// User is the locally synthesized profile. There is no real authentication.
type User struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// GroundingLink is a citation returned by the search-augmented mode.
type GroundingLink struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message stores a single message in a session.
type Message struct {
	ID             string          `json:"id"`
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	Timestamp      time.Time       `json:"timestamp"`
	Attachments    []string        `json:"attachments,omitempty"` // data URLs
	GroundingLinks []GroundingLink `json:"grounding_links,omitempty"`
	Status         MessageStatus   `json:"status,omitempty"`
	IsThinking     bool            `json:"is_thinking,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Attachments != nil {
		m.Attachments = append([]string(nil), m.Attachments...)
	}
	if m.GroundingLinks != nil {
		m.GroundingLinks = append([]GroundingLink(nil), m.GroundingLinks...)
	}
	return m
}

// InProgress reports whether m is an assistant reply that is still being written.
func (m Message) InProgress() bool {
	return m.Role == RoleAssistant && !m.Status.Terminal()
}

// Session is one conversation together with its tutoring context.
type Session struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Messages      []Message  `json:"messages"`
	CreatedAt     time.Time  `json:"created_at"`
	Grade         GradeLevel `json:"grade"`
	Subject       Subject    `json:"subject"`
	Mode          Mode       `json:"mode"`
	EnvironmentID string     `json:"environment_id,omitempty"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	msgs := make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		msgs[i] = m.Clone()
	}
	s.Messages = msgs
	return s
}

// TurnInProgress reports whether the session has an unfinished assistant reply.
func (s Session) TurnInProgress() bool {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].InProgress() {
			return true
		}
	}
	return false
}

// LastMessages returns up to n trailing messages.
func (s Session) LastMessages(n int) []Message {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	start := len(s.Messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, 0, len(s.Messages)-start)
	for _, m := range s.Messages[start:] {
		out = append(out, m.Clone())
	}
	return out
}

// SessionSummary is the list view of a session.
type SessionSummary struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	CreatedAt    time.Time  `json:"created_at"`
	Grade        GradeLevel `json:"grade"`
	Subject      Subject    `json:"subject"`
	Mode         Mode       `json:"mode"`
	MessageCount int        `json:"message_count"`
}

// Summary builds the list view of s.
func (s Session) Summary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Title:        s.Title,
		CreatedAt:    s.CreatedAt,
		Grade:        s.Grade,
		Subject:      s.Subject,
		Mode:         s.Mode,
		MessageCount: len(s.Messages),
	}
}

// Fragment is one incremental unit of streamed assistant output.
type Fragment struct {
	Text  string          `json:"text"`
	Links []GroundingLink `json:"links,omitempty"`
}

// MergeLinks appends the links in add that are not yet present in base,
// comparing by URI. The first title seen for a URI is kept.
func MergeLinks(base, add []GroundingLink) []GroundingLink {
	if len(add) == 0 {
		return base
	}
	seen := make(map[string]struct{}, len(base)+len(add))
	for _, l := range base {
		seen[l.URI] = struct{}{}
	}
	for _, l := range add {
		if l.URI == "" {
			continue
		}
		if _, ok := seen[l.URI]; ok {
			continue
		}
		seen[l.URI] = struct{}{}
		base = append(base, l)
	}
	return base
}
