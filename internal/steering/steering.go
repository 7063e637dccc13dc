// Package steering implements the per-session out-of-band message FIFO of
// spec.md §4.2: out-of-band user messages injected into a running agent via
// the PostToolUse hook, with abort-keyword detection.
package steering

import (
	"context"
	"strings"
	"time"
)

// Message is a single steering record (spec.md §3).
type Message struct {
	Text      string
	Sender    string
	Timestamp float64
	IsAbort   bool
}

// abortKeywords are matched against the trimmed, lowercased text.
var abortKeywords = map[string]struct{}{
	"stop":      {},
	"cancel":    {},
	"abort":     {},
	"nevermind": {},
}

// IsAbortKeyword reports whether text, after trimming and lowercasing,
// exactly matches one of the abort keywords.
func IsAbortKeyword(text string) bool {
	_, ok := abortKeywords[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// Queue is the contract every backend (Redis, in-memory) must satisfy.
type Queue interface {
	// Push appends text to the tail of session_id's queue. is_abort is
	// auto-inferred from the abort-keyword set when the caller passes false.
	Push(ctx context.Context, sessionID, text, sender string, isAbort bool) error
	// PopOne removes and returns the head message, or (Message{}, false, nil)
	// when empty.
	PopOne(ctx context.Context, sessionID string) (Message, bool, error)
	// PopAll drains the entire queue in FIFO order.
	PopAll(ctx context.Context, sessionID string) ([]Message, error)
	// Clear empties the queue and returns how many messages were discarded.
	Clear(ctx context.Context, sessionID string) (int, error)
	// HasMessages reports whether the queue is non-empty.
	HasMessages(ctx context.Context, sessionID string) (bool, error)
}

// now returns the current time as a float-seconds Unix timestamp, matching
// spec.md §3's representation and the Python original's time.time().
func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// resolveAbort applies the auto-inference rule of spec.md §3: explicit
// true is never downgraded; explicit/defaulted false is upgraded when the
// text matches an abort keyword.
func resolveAbort(text string, isAbort bool) bool {
	if isAbort {
		return true
	}
	return IsAbortKeyword(text)
}
