package models

// MarkerState is the visual state of a checkbox marker next to a post
type MarkerState string

// MarkerState constants
const (
	MarkerUnchecked MarkerState = "unchecked"
	MarkerChecked   MarkerState = "checked"
	MarkerFinished  MarkerState = "finished"
)

// Target is a queued on-page control and the account it belongs to.
// Ref identifies the "more options" button inside the current page.
type Target struct {
	Ref      string `json:"ref"`
	Username string `json:"username"`
}

// PageEventType enumerates events pushed from the page to Go
type PageEventType string

// PageEventType constants
const (
	EventMutation   PageEventType = "mutation"
	EventMarker     PageEventType = "marker"
	EventVisibility PageEventType = "visibility"
)

// PageEvent is one message delivered through the page binding
type PageEvent struct {
	Type     PageEventType `json:"type"`
	Ref      string        `json:"ref,omitempty"`
	Username string        `json:"user,omitempty"`
	Hidden   bool          `json:"hidden,omitempty"`
}
