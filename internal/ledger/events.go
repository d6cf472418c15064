package ledger

import (
	"ProofNest/internal/auth"
	"ProofNest/internal/logger"
	"ProofNest/internal/merkle"
)

// eventBuffer is the buffer size of the event channel.
const eventBuffer = 1024

// EventKind identifies a ledger notification.
type EventKind int

const (
	// EventProofSubmitted signals an accepted base-proof submission.
	EventProofSubmitted EventKind = iota

	// EventAggregateRecorded signals a recorded aggregation round.
	EventAggregateRecorded

	// EventInclusionChecked signals an answered inclusion query.
	EventInclusionChecked
)

// String returns the event kind name for logging and wire encoding.
func (k EventKind) String() string {
	switch k {
	case EventProofSubmitted:
		return "proof_submitted"
	case EventAggregateRecorded:
		return "aggregate_recorded"
	case EventInclusionChecked:
		return "inclusion_checked"
	default:
		return "unknown"
	}
}

// Event is a ledger notification delivered to subscribers.
type Event struct {
	Kind          EventKind     // Kind identifies the notification
	Commitment    merkle.Hash   // Commitment is the proof or aggregate commitment
	Signer        auth.Identity // Signer is set for proof submissions
	Timestamp     int64         // Timestamp is the event time in Unix milliseconds
	IncludedCount int           // IncludedCount is set for aggregation events
	Verified      bool          // Verified is set for inclusion query events
}

// Events returns the ledger's notification channel.
func (l *Ledger) Events() <-chan Event {
	return l.events
}

// emit delivers an event without blocking the submission path.
// Slow subscribers lose events rather than stalling the authority.
func (l *Ledger) emit(e Event) {
	select {
	case l.events <- e:
	default:
		logger.Warn("event dropped, subscriber too slow", "kind", e.Kind.String())
	}
}
