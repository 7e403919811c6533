package types

// EventType distinguishes the records of a search stream
type EventType string

const (
	EventProgress EventType = "progress"
	EventResults  EventType = "results"
)

// ProviderStatus is the outcome of one provider call
type ProviderStatus string

const (
	StatusOK      ProviderStatus = "ok"
	StatusEmpty   ProviderStatus = "empty"
	StatusError   ProviderStatus = "error"
	StatusTimeout ProviderStatus = "timeout"
)

// ProgressEvent is emitted once per provider, in completion order
type ProgressEvent struct {
	Store          string         `json:"store"`
	Sequence       int            `json:"sequence"`
	Total          int            `json:"total"`
	ElapsedSeconds float64        `json:"elapsedSeconds"`
	Status         ProviderStatus `json:"status" jsonschema:"enum=ok,enum=empty,enum=error,enum=timeout"`
	ListingCount   int            `json:"listingCount"`
	Error          string         `json:"error,omitempty"`
}

// ResultsEvent closes a search stream with the merged listings sorted by price
type ResultsEvent struct {
	SessionID          string    `json:"sessionId"`
	Listings           []Listing `json:"listings"`
	NotificationQueued bool      `json:"notificationQueued"`
}

// Event is one independently parseable record of a search stream. Exactly one
// of Progress or Results is set, matching Type.
type Event struct {
	Type     EventType      `json:"type" jsonschema:"enum=progress,enum=results"`
	Progress *ProgressEvent `json:"progress,omitempty"`
	Results  *ResultsEvent  `json:"results,omitempty"`
}
