// Package models defines data structures for the Precedent research service.
package models

import "time"

// Research statuses derived from the record's fields rather than stored
// explicitly: queued (no processing_started_at), processing (is_active),
// completed (result set) or failed (error set).
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Research is one end-to-end research request and its lifecycle record.
type Research struct {
	ID        string `json:"id"`
	Query     string `json:"query"`
	CreatedBy string `json:"created_by"`

	// Scope fields set during the scoping stage.
	ProblemDescription *string `json:"problem_description,omitempty"`
	Question           *string `json:"question,omitempty"`

	// Append-only progress log. Readers may observe a prefix of the
	// list but never a reordering.
	Events []Event `json:"events"`

	// Terminal fields. At most one of Result/Error is ever set.
	Result *string `json:"result,omitempty"`
	Error  *string `json:"error,omitempty"`
	Report *string `json:"report,omitempty"`

	IsActive            bool       `json:"is_active"`
	CreatedAt           time.Time  `json:"created_at"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	ProcessingEndedAt   *time.Time `json:"processing_ended_at,omitempty"`
}

// Status derives the lifecycle state from the record's fields.
func (r *Research) Status() string {
	switch {
	case r.Error != nil:
		return StatusFailed
	case r.Result != nil:
		return StatusCompleted
	case r.ProcessingStartedAt != nil:
		return StatusProcessing
	default:
		return StatusQueued
	}
}

// Terminal reports whether the research reached completed or failed.
func (r *Research) Terminal() bool {
	return r.Result != nil || r.Error != nil
}

// Event is an immutable, timestamped progress record attached to a Research.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
	At   time.Time      `json:"at"`
}
