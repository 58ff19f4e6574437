package domain

import (
	"fmt"
	"time"
)

type ProcessingState string

const (
	StateIdle       ProcessingState = "idle"
	StateProcessing ProcessingState = "processing"
	StateReady      ProcessingState = "ready"
)

// Snapshot is the whole state of one session. Transitions never modify the
// receiver; they return the replacement value.
//
//	Idle --ingest--> Processing --complete--> Ready --ingest--> Processing
//	Ready --adjust--> Ready
type Snapshot struct {
	ID        string             `json:"id"`
	State     ProcessingState    `json:"state"`
	RequestID uint64             `json:"request_id"`
	Uploaded  *UploadedImage     `json:"uploaded,omitempty"`
	Enhanced  *EnhancedResult    `json:"enhanced,omitempty"`
	Settings  AdjustmentSettings `json:"settings"`
	Notice    string             `json:"notice,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`

	// fallback is what Ready showed before the pending ingestion. It is never
	// displayed while Processing and only comes back if enhancement fails.
	fallback *fallback
}

type fallback struct {
	uploaded *UploadedImage
	enhanced *EnhancedResult
}

func NewSnapshot(id string, now time.Time) Snapshot {
	return Snapshot{
		ID:        id,
		State:     StateIdle,
		Settings:  DefaultAdjustments(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Ingest starts a new upload cycle and returns the snapshot together with the
// request id the enhancement has to report back with.
func (s Snapshot) Ingest(img *UploadedImage, now time.Time) (Snapshot, uint64) {
	next := s
	if s.State == StateReady && s.Enhanced != nil {
		next.fallback = &fallback{uploaded: s.Uploaded, enhanced: s.Enhanced}
	}
	next.RequestID = s.RequestID + 1
	next.State = StateProcessing
	next.Uploaded = img
	next.Enhanced = nil
	next.Settings = DefaultAdjustments()
	next.Notice = ""
	next.UpdatedAt = now
	return next, next.RequestID
}

// IsLatest reports whether requestID belongs to the pending ingestion.
func (s Snapshot) IsLatest(requestID uint64) bool {
	return s.State == StateProcessing && requestID == s.RequestID
}

// CompleteEnhancement moves Processing to Ready. Completions for any request
// other than the latest are discarded and reported with ok=false.
func (s Snapshot) CompleteEnhancement(requestID uint64, result *EnhancedResult, now time.Time) (Snapshot, bool) {
	if !s.IsLatest(requestID) || result == nil {
		return s, false
	}
	next := s
	next.State = StateReady
	next.Enhanced = result
	next.Settings = DefaultAdjustments()
	next.Notice = ""
	next.fallback = nil
	next.UpdatedAt = now
	return next, true
}

// FailEnhancement leaves Processing for a recoverable state: Ready showing the
// previous result when there was one, Idle otherwise. Either way a notice is set.
func (s Snapshot) FailEnhancement(requestID uint64, cause error, now time.Time) (Snapshot, bool) {
	if !s.IsLatest(requestID) {
		return s, false
	}
	next := s
	next.Notice = fmt.Sprintf("enhancement failed: %v", cause)
	next.Settings = DefaultAdjustments()
	next.UpdatedAt = now
	if s.fallback != nil {
		next.State = StateReady
		next.Uploaded = s.fallback.uploaded
		next.Enhanced = s.fallback.enhanced
	} else {
		next.State = StateIdle
		next.Uploaded = nil
		next.Enhanced = nil
	}
	next.fallback = nil
	return next, true
}

func (s Snapshot) SetAdjustment(ch Channel, value int, now time.Time) (Snapshot, error) {
	if !s.Displayable() {
		return s, fmt.Errorf("%w: state is %s", ErrNotReady, s.State)
	}
	settings, err := s.Settings.With(ch, value)
	if err != nil {
		return s, err
	}
	next := s
	next.Settings = settings
	next.UpdatedAt = now
	return next, nil
}

// Displayable is true once there is an enhanced result that may be shown
// with the adjustment filters applied.
func (s Snapshot) Displayable() bool {
	return s.State == StateReady && s.Enhanced != nil
}
