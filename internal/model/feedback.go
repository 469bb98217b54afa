// Package model defines the domain entities and data transfer objects for the
// feedback pipeline.
//
// The structs here are shared by the transport, ingestion, and persistence
// layers. JSON struct tags define how they map to/from the API; the repository
// handles its own column mapping.
package model

import "time"

// Categories form a closed set. Anything the caller sends outside this set is
// coerced to CategoryOther rather than rejected, so the widget can evolve its
// UI labels without breaking older deployments.
const (
	CategoryBug        = "bug"
	CategoryFeature    = "feature"
	CategoryUIUX       = "ui_ux"
	CategorySuggestion = "suggestion"
	CategoryOther      = "other"
)

// Severities form a closed set with the same coercion policy as categories.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Status values for the triage lifecycle. A record is created as
// StatusPending and only moves through the other states via an explicit
// administrator action.
const (
	StatusPending   = "pending"
	StatusReviewed  = "reviewed"
	StatusResolved  = "resolved"
	StatusDismissed = "dismissed"
)

// ValidCategory reports whether s is one of the closed category values.
func ValidCategory(s string) bool {
	switch s {
	case CategoryBug, CategoryFeature, CategoryUIUX, CategorySuggestion, CategoryOther:
		return true
	}
	return false
}

// ValidSeverity reports whether s is one of the closed severity values.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known triage status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusReviewed, StatusResolved, StatusDismissed:
		return true
	}
	return false
}

// BoundingBox is the on-screen position of a targeted element, in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TargetElement describes the page element the user pointed at with the
// element picker. Selector and TagName are required; the rest is best-effort
// context for whoever triages the report.
type TargetElement struct {
	Selector    string       `json:"selector"`
	TagName     string       `json:"tagName"`
	TextPreview string       `json:"textPreview,omitempty"`
	BoundingBox *BoundingBox `json:"boundingBox,omitempty"`
}

// ValidatedSubmission is the output of the validator: sanitized text, coerced
// enums, and only the optional fields that survived validation. It is the only
// submission shape the rest of the pipeline ever sees.
type ValidatedSubmission struct {
	RawText       string         `json:"rawText"`
	Category      string         `json:"category"`
	Severity      string         `json:"severity"`
	PageURL       string         `json:"pageUrl,omitempty"`
	TargetElement *TargetElement `json:"targetElement,omitempty"`
	DeviceType    string         `json:"deviceType,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// AIEnhancement carries the AI-derived (or fallback-derived) additions to a
// record. All three fields are always present, possibly null: callers branch
// on nullness, never on field absence, and never on whether a real provider
// or the deterministic fallback produced the value.
type AIEnhancement struct {
	Summary     *string `json:"summary"`
	Category    *string `json:"category"`
	DevQuestion *string `json:"devQuestion"`
}

// Feedback is the persisted record: the validated submission plus triage
// state, optional enhancement, and audit timestamps. Created once by the
// ingestion pipeline; only the status is ever mutated afterwards.
type Feedback struct {
	ID string `json:"id"`

	RawText       string         `json:"rawText"`
	Category      string         `json:"category"`
	Severity      string         `json:"severity"`
	PageURL       string         `json:"pageUrl,omitempty"`
	TargetElement *TargetElement `json:"targetElement,omitempty"`
	DeviceType    string         `json:"deviceType,omitempty"`
	Context       map[string]any `json:"context,omitempty"`

	Status string `json:"status"`

	// Enhancement is nil when the AI path never ran for this record (plain
	// endpoint, or AI disabled for the deployment tier).
	Enhancement *AIEnhancement `json:"enhancement,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SubmitResponse is the success shape returned by both submission endpoints.
// The enhancement fields are present only on the AI-enhanced path.
type SubmitResponse struct {
	Success     bool    `json:"success"`
	ID          string  `json:"id"`
	Summary     *string `json:"summary,omitempty"`
	Category    *string `json:"category,omitempty"`
	DevQuestion *string `json:"devQuestion,omitempty"`
}

// ErrorResponse is the standard failure shape. RetryAfterMs is set only on
// rate-limit rejections.
type ErrorResponse struct {
	Error        string `json:"error"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
}

// StatusUpdateRequest is the payload for the admin status-transition endpoint.
type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// Stats summarizes the collection for the admin dashboard.
type Stats struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"byStatus"`
	Last24hrs int            `json:"last24hrs"`
}
