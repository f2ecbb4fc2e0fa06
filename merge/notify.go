package merge

import (
	"context"
	"time"
)

// Event describes a committed merge transition.
type Event struct {
	Dataset    string     `json:"dataset"`
	Tier       Tier       `json:"tier"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Steps      int        `json:"steps"`
	Adjustment string     `json:"forecast_adjustment,omitempty"`
	Changed    []string   `json:"changed,omitempty"`
	Watermarks Watermarks `json:"watermarks"`
	At         time.Time  `json:"at"`
}

// Notifier receives an Event after every successful write.
// A notifier error is logged and never fails the write.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify calls f(ctx, event).
func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}
