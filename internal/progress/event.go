// Package progress defines the event structures emitted while a composite
// request fans out to upstream subqueries.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRequestStart   Stage = "REQUEST_START"
	StageRequestDone    Stage = "REQUEST_DONE"
	StageRequestTimeout Stage = "REQUEST_TIMEOUT"
	StageSubqueryStart  Stage = "SUBQUERY_START"
	StageSubqueryRetry  Stage = "SUBQUERY_RETRY"
	StageSubqueryDone   Stage = "SUBQUERY_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for subquery completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single component of composite request progress.
type Event struct {
	// RequestID uniquely identifies a composite request using the 16-byte
	// UUID form.
	RequestID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or subquery milestone occurred.
	Stage Stage
	// Upstream optionally scopes subquery events to the upstream label
	// ("PaleoBioDB", "Neotoma").
	Upstream string
	// URL is the optional subquery URL; it should not contain credentials.
	URL string
	// Bytes carries the response size for the subquery.
	Bytes int64
	// Records increments by the number of records a subquery returned.
	Records int64
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass
	// Dur captures execution latency for subqueries and request completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RequestID == [16]byte{} {
		return errors.New("request id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRequestStart, StageRequestDone, StageRequestTimeout:
	case StageSubqueryStart, StageSubqueryRetry:
		if e.Upstream == "" {
			return errors.New("subquery event requires upstream")
		}
	case StageSubqueryDone:
		if e.Upstream == "" {
			return errors.New("subquery done requires upstream")
		}
		if e.StatusClass == "" {
			return errors.New("subquery done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RequestUUID converts the binary request ID to uuid.UUID for repositories.
func (e Event) RequestUUID() uuid.UUID {
	return uuid.UUID(e.RequestID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for subquery completions.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
