// Package normalize defines the canonical envelope schemas every collector
// module produces — Message, Context, and the events that carry them on
// the broker — plus subject naming and validation.
package normalize

import (
	"fmt"
	"time"
)

// Root is the process-wide subject namespace prefix used by every
// published envelope: "<root>.<module>.<event>".
const Root = "feedeater"

// Source identifies the module (and optional stream) that produced a Message.
type Source struct {
	Module string `json:"module"`
	Stream string `json:"stream,omitempty"`
}

// ContextRef binds a Message to a context group owned by a module.
type ContextRef struct {
	OwnerModule string `json:"ownerModule"`
	SourceKey   string `json:"sourceKey"`
}

// FollowMePanel is an optional UI deep link attached to a Message.
type FollowMePanel struct {
	Module string `json:"module"`
	PanelID string `json:"panelId"`
	Href   string `json:"href,omitempty"`
	Label  string `json:"label,omitempty"`
}

// Message is the invariant envelope produced by every collector. See
// spec.md §3 "Message (canonical)".
type Message struct {
	ID              string         `json:"id"`
	CreatedAt       time.Time      `json:"createdAt"`
	Source          Source         `json:"source"`
	Realtime        bool           `json:"realtime"`
	Message         string         `json:"message"`
	From            string         `json:"from,omitempty"`
	ContextRef      *ContextRef    `json:"contextRef,omitempty"`
	FollowMePanel   *FollowMePanel `json:"followMePanel,omitempty"`
	IsDirectMention bool           `json:"isDirectMention"`
	IsDigest        bool           `json:"isDigest"`
	IsSystemMessage bool           `json:"isSystemMessage"`
	Likes           int64          `json:"likes"`
	Tags            map[string]any `json:"tags,omitempty"`
}

// Validate enforces the invariants spec.md §3 assigns to Message:
// source.module must be set and tags must only carry scalar values.
func (m Message) Validate(publishingModule string) error {
	if m.ID == "" {
		return fmt.Errorf("normalize: message id is empty")
	}
	if m.Source.Module == "" {
		return fmt.Errorf("normalize: message %s has empty source.module", m.ID)
	}
	if m.Source.Module != publishingModule {
		return fmt.Errorf("normalize: message %s source.module %q does not match publishing module %q",
			m.ID, m.Source.Module, publishingModule)
	}
	for k, v := range m.Tags {
		switch v.(type) {
		case string, bool, float64, int, int64, float32:
		default:
			return fmt.Errorf("normalize: message %s tag %q has non-scalar value %T", m.ID, k, v)
		}
	}
	return nil
}

// MessageCreated is the event carried on "<root>.<module>.messageCreated".
type MessageCreated struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// NewMessageCreated builds a MessageCreated envelope with its fixed type tag.
func NewMessageCreated(m Message) MessageCreated {
	return MessageCreated{Type: "MessageCreated", Message: m}
}

// SummaryShortMaxLen is the invariant cap on Context.SummaryShort (spec.md §3/§8).
const SummaryShortMaxLen = 128

// Context is the per-(ownerModule, sourceKey) summary+embedding pair.
type Context struct {
	OwnerModule string    `json:"ownerModule"`
	SourceKey   string    `json:"sourceKey"`
	SummaryShort string   `json:"summaryShort"`
	SummaryLong string    `json:"summaryLong"`
	KeyPoints   []string  `json:"keyPoints"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// Validate enforces the summaryShort length invariant.
func (c Context) Validate() error {
	if c.OwnerModule == "" || c.SourceKey == "" {
		return fmt.Errorf("normalize: context missing ownerModule/sourceKey")
	}
	if len(c.SummaryShort) > SummaryShortMaxLen {
		return fmt.Errorf("normalize: context %s/%s summaryShort exceeds %d chars (%d)",
			c.OwnerModule, c.SourceKey, SummaryShortMaxLen, len(c.SummaryShort))
	}
	return nil
}

// ContextUpdated is the event carried on "<root>.<module>.contextUpdated".
type ContextUpdated struct {
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	MessageID string    `json:"messageId,omitempty"`
	Context   Context   `json:"context"`
}

// NewContextUpdated builds a ContextUpdated envelope with its fixed type tag.
func NewContextUpdated(messageID string, c Context) ContextUpdated {
	return ContextUpdated{
		Type:      "ContextUpdated",
		CreatedAt: time.Now().UTC(),
		MessageID: messageID,
		Context:   c,
	}
}

// SubjectFor returns the canonical broker subject "<root>.<module>.<event>".
func SubjectFor(module, event string) string {
	return fmt.Sprintf("%s.%s.%s", Root, module, event)
}

// SubjectMessageCreated is the canonical messageCreated subject for a module.
func SubjectMessageCreated(module string) string { return SubjectFor(module, "messageCreated") }

// SubjectContextUpdated is the canonical contextUpdated subject for a module.
func SubjectContextUpdated(module string) string { return SubjectFor(module, "contextUpdated") }

// SubjectLog is the canonical log-stream subject for a module.
func SubjectLog(module string) string { return SubjectFor(module, "log") }

// SubjectDead is the dead-module notification subject, "<root>.module.dead.<name>".
func SubjectDead(module string) string { return fmt.Sprintf("%s.module.dead.%s", Root, module) }

// WildcardMessageCreated matches messageCreated events from every module.
const WildcardMessageCreated = Root + ".*.messageCreated"

// LogEntry is the structured log record published on a module's log subject
// (spec.md §4.9).
type LogEntry struct {
	Level   string    `json:"level"` // debug|info|warn|error
	Module  string    `json:"module"`
	Source  string    `json:"source"`
	At      time.Time `json:"at"`
	Message string    `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}
