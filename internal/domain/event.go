package domain

import "time"

type EventType string

const (
	EventSessionCreated       EventType = "session_created"
	EventImageIngested        EventType = "image_ingested"
	EventEnhancementCompleted EventType = "enhancement_completed"
	EventEnhancementDiscarded EventType = "enhancement_discarded"
	EventEnhancementFailed    EventType = "enhancement_failed"
	EventAdjustmentChanged    EventType = "adjustment_changed"
	EventImageExported        EventType = "image_exported"
)

// SessionEvent carries metadata about a transition. It never contains image bytes.
type SessionEvent struct {
	Type       EventType           `json:"type"`
	SessionID  string              `json:"session_id"`
	RequestID  uint64              `json:"request_id,omitempty"`
	State      ProcessingState     `json:"state"`
	MimeType   string              `json:"mime_type,omitempty"`
	Size       int64               `json:"size,omitempty"`
	Width      int                 `json:"width,omitempty"`
	Height     int                 `json:"height,omitempty"`
	Settings   *AdjustmentSettings `json:"settings,omitempty"`
	Error      string              `json:"error,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

func NewSessionEvent(t EventType, s Snapshot, now time.Time) SessionEvent {
	evt := SessionEvent{
		Type:       t,
		SessionID:  s.ID,
		RequestID:  s.RequestID,
		State:      s.State,
		OccurredAt: now,
	}
	if s.Uploaded != nil {
		evt.MimeType = s.Uploaded.MimeType
		evt.Size = s.Uploaded.Size
		evt.Width = s.Uploaded.Width
		evt.Height = s.Uploaded.Height
	}
	return evt
}
