package widget

import "errors"

// Phase is the tag of a widget view state.
type Phase string

const (
	// PhaseIdle is the state before the first selector is assigned.
	PhaseIdle Phase = "idle"
	// PhaseLoading means a fetch for Selector is in flight.
	PhaseLoading Phase = "loading"
	// PhaseLoaded means Data holds the payload fetched for Selector.
	PhaseLoaded Phase = "loaded"
	// PhaseError means the fetch for Selector failed.
	PhaseError Phase = "error"
)

// ErrorKind classifies a failed fetch.
type ErrorKind string

const (
	// KindNone is used outside the error phase.
	KindNone ErrorKind = ""
	// KindNotFound is terminal for the selector: the subject or region does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindTransient may succeed when the same selector is re-issued.
	KindTransient ErrorKind = "transient"
)

// State is one widget view state. Selector is the key that produced the current fetch in
// every phase but idle, and Data is only populated in the loaded phase.
type State[K comparable, T any] struct {
	Phase    Phase
	Selector K
	Data     T
	Message  string
	Kind     ErrorKind
	Epoch    uint64
}

// Loaded reports whether the state carries data.
func (s State[K, T]) Loaded() bool {
	return s.Phase == PhaseLoaded
}

// Stats counts machine activity.
type Stats struct {
	Issued  uint64
	Applied uint64
	Stale   uint64
	Failed  uint64
}

// Describer maps a fetch error to a message safe to show to users.
type Describer func(err error) string

type userMessager interface {
	UserMessage() string
}

// DescribeAs shows the message of errors that expose UserMessage() and a fixed
// "Failed to fetch <label>" for everything else, so transport errors never reach the page.
func DescribeAs(label string) Describer {
	fallback := "Failed to fetch " + label
	return func(err error) string {
		var um userMessager
		if errors.As(err, &um) {
			if message := um.UserMessage(); message != "" {
				return message
			}
		}
		return fallback
	}
}

// Classifier maps a fetch error to an ErrorKind.
type Classifier func(err error) ErrorKind

type notFounder interface {
	NotFound() bool
}

// DefaultClassify reports KindNotFound for errors that expose NotFound() true and
// KindTransient for everything else.
func DefaultClassify(err error) ErrorKind {
	var nf notFounder
	if errors.As(err, &nf) && nf.NotFound() {
		return KindNotFound
	}
	return KindTransient
}
