// Package subquery defines the state and data owned by one subquery of a
// composite request. Subqueries are created and driven exclusively by
// internal/composite; this package holds no goroutines of its own and
// performs no locking, because each Subquery is mutated by exactly one
// goroutine at a time and read by the driver only after that goroutine
// signals completion through a channel (which already establishes the
// necessary happens-before ordering).
package subquery

import (
	"context"
	"time"

	"github.com/paleoapi/compositegw/internal/jsonstream"
	"github.com/paleoapi/compositegw/internal/record"
)

// Status is the subquery's position in its state machine.
type Status string

// States per the composite-subquery lifecycle.
const (
	StatusCreated Status = "CREATED"
	StatusInit    Status = "INIT"
	StatusGet     Status = "GET"
	StatusComp    Status = "COMP"
	StatusAbort   Status = "ABORT"
)

// retryableStatuses are transport-layer failure codes eligible for retry.
var retryableStatuses = map[int]bool{595: true, 596: true, 597: true}

// IsRetryableStatus reports whether status is a transport-layer failure
// that the driver should retry rather than surface to the client.
func IsRetryableStatus(status int) bool {
	return retryableStatuses[status]
}

// Subquery is one leg of a composite request: a single upstream fetch plus
// whatever secondary fetches it needed to resolve its own URL.
type Subquery struct {
	Label     string
	Upstream  string // the adapter's Label(), e.g. "PaleoBioDB" or "Neotoma"
	Main      bool   // included in Results() when true
	Secondary bool   // launched by another subquery's adapter, not the driver

	Status     Status
	RetryCount int
	HTTPStatus int
	Reason     string
	URL        string

	Records  []record.Record
	Warnings []string
	Removed  int

	// Bytes counts bytes read from the upstream response body during the
	// most recent GET attempt.
	Bytes int64
	// FetchDuration records how long the most recent GET+parse attempt
	// took, set by the driver around its call to fetch.
	FetchDuration time.Duration

	// Parser is instantiated by the driver on the INIT -> GET transition,
	// via the adapter's NewExtractor.
	Parser *jsonstream.Extractor

	// Done is closed exactly once, when the subquery reaches a terminal
	// COMP or ABORT and will not be retried again.
	Done chan struct{}

	// retryGo is signaled by the driver's tick handler when draining the
	// retry queue, releasing this subquery's goroutine back into INIT.
	retryGo chan struct{}
}

// New returns a CREATED subquery ready to be registered with a driver.
func New(label, upstreamName string, main bool) *Subquery {
	return &Subquery{
		Label:    label,
		Upstream: upstreamName,
		Main:     main,
		Status:   StatusCreated,
		Done:     make(chan struct{}),
		retryGo:  make(chan struct{}, 1),
	}
}

// AddRecord appends a normalized, filter-passing record.
func (sq *Subquery) AddRecord(r record.Record) { sq.Records = append(sq.Records, r) }

// AddWarning appends an upstream-label-prefixed diagnostic string.
func (sq *Subquery) AddWarning(w string) { sq.Warnings = append(sq.Warnings, w) }

// IncRemoved counts one record dropped by the post-merge time-rule filter.
func (sq *Subquery) IncRemoved() { sq.Removed++ }

// ResetForRetry discards records and warnings accumulated by a prior
// attempt and bumps the retry counter, per the retry-resets decision.
func (sq *Subquery) ResetForRetry() {
	sq.Records = nil
	sq.Warnings = nil
	sq.Removed = 0
	sq.Bytes = 0
	sq.RetryCount++
}

// AwaitRetrySignal blocks until the driver's tick handler releases this
// subquery back into INIT after a transient-failure retry, or until ctx
// is done. It reports false when ctx won the race, so a subquery parked
// here is guaranteed to wake up once the driver cancels.
func (sq *Subquery) AwaitRetrySignal(ctx context.Context) bool {
	select {
	case <-sq.retryGo:
		return true
	case <-ctx.Done():
		return false
	}
}

// SignalRetry wakes a subquery parked in AwaitRetrySignal. Called by the
// driver's tick handler while draining the retry queue.
func (sq *Subquery) SignalRetry() {
	select {
	case sq.retryGo <- struct{}{}:
	default:
	}
}

// MarkTerminal closes Done, waking anything waiting on this subquery's
// completion; it must be called at most once. The driver's completion
// barrier is released separately, by Driver.SignalDone.
func (sq *Subquery) MarkTerminal() { close(sq.Done) }
