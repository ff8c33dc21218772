// Package errkind implements the typed error taxonomy activities surface
// (spec section 7): Transient, NotFound, Invalid, External, Conflict, Fatal.
// Grounded on the teacher's small typed-error style in
// internal/jobs/worker/worker.go (missingHandlerError, panicError) — one
// concrete Error struct carrying a Kind rather than sentinel strings, so
// callers branch with errors.As and Kind() instead of matching messages.
package errkind

import "fmt"

// Kind names one of the taxonomy's buckets without tying it to a concrete
// Go type, so callers can log or route on Kind() without a type switch.
type Kind string

const (
	Transient Kind = "transient" // network, 5xx — retried by the activity runtime
	NotFound  Kind = "not_found" // handled locally: legacy path or skip
	Invalid   Kind = "invalid"   // bad JSON, bad input — fail fast, non-retryable
	External  Kind = "external"  // scraper/LLM/STT refused, live stream — recorded, not fatal
	Conflict  Kind = "conflict"  // manifest lock contention — retried by the activity runtime, not locally
	Fatal     Kind = "fatal"     // credentials, bucket missing — abort batch, surface to caller
)

// Error pairs a Kind with an underlying cause and optional context fields.
// It is the single concrete error type activities return; handlers branch on
// Kind() instead of comparing error strings.
type Error struct {
	kind Kind
	op   string
	err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{kind: kind, op: op, err: err}
}

func (e *Error) Kind() Kind { return e.kind }

// Op returns the operation label the error was constructed with. Callers
// that need a Temporal ApplicationError "type" (for NonRetryableErrorTypes
// matching) use this instead of Kind() when the call site named a specific
// condition such as LiveStreamRejected or NoCandidates rather than a generic
// activity name.
func (e *Error) Op() string { return e.op }
func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.op, e.kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.op, e.kind, e.err)
}
func (e *Error) Unwrap() error { return e.err }

func Transientf(op string, err error) *Error { return New(Transient, op, err) }
func NotFoundf(op string, err error) *Error  { return New(NotFound, op, err) }
func Invalidf(op string, err error) *Error   { return New(Invalid, op, err) }
func Externalf(op string, err error) *Error  { return New(External, op, err) }
func Conflictf(op string, err error) *Error  { return New(Conflict, op, err) }
func Fatalf(op string, err error) *Error     { return New(Fatal, op, err) }

// Retryable reports whether the Temporal activity runtime should apply its
// retry policy to err. Invalid and Fatal are not; every other kind is,
// Conflict (manifest lock contention) included. Nothing in this package
// retries a Conflict locally.
func Retryable(err error) bool {
	var e *Error
	if !As(err, &e) {
		return true // unclassified errors default to retryable, matching the teacher's safety-net Fail behavior
	}
	switch e.kind {
	case Invalid, Fatal:
		return false
	default:
		return true
	}
}

// As is a package-local errors.As to avoid importing "errors" twice across
// call sites that only need this one check.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// LiveStreamRejected, NoCandidates and TranscriptionError are named
// External/Invalid conditions the Pipeline Runner and retry policy table
// special-case by Temporal ApplicationError type (see
// activities.toTemporalError), per spec 4.D ("non-retryable on
// LiveStreamRejected, NoCandidates, invalid-input errors").
const (
	LiveStreamRejected = "LiveStreamRejected"
	NoCandidates       = "NoCandidates"
	TranscriptionError = "TranscriptionError"
)
