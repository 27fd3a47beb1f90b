// Package errs defines Strata's error taxonomy: a closed set of kinds
// rather than ad hoc wrapped errors, so that every public surface
// (library, CLI, wire) can render the same shape: one structured
// Error carrying a Kind plus details, since the wire codec (pkg/wire)
// needs a uniform `{"code","message","details"}` envelope regardless
// of which internal package raised it.
package errs

import "fmt"

// Kind is a closed taxonomy; new kinds are a deliberate API change.
type Kind string

const (
	KindNotFound            Kind = "NotFound"
	KindWrongType            Kind = "WrongType"
	KindInvalidKey           Kind = "InvalidKey"
	KindInvalidPath          Kind = "InvalidPath"
	KindConstraintViolation  Kind = "ConstraintViolation"
	KindConflict             Kind = "Conflict"
	KindReadWriteConflict    Kind = "ReadWriteConflict"
	KindWriteConflict        Kind = "WriteConflict"
	KindHistoryTrimmed       Kind = "HistoryTrimmed"
	KindRunNotFound          Kind = "RunNotFound"
	KindRunClosed            Kind = "RunClosed"
	KindRunExists            Kind = "RunExists"
	KindInvalidTransition    Kind = "InvalidTransition"
	KindIo                   Kind = "Io"
	KindOverflow             Kind = "Overflow"
	KindInternal             Kind = "Internal"
)

// Error is Strata's uniform error type. Details is an arbitrary,
// wire-serialisable payload (e.g. {"expected":..,"actual":..} for
// Conflict), never the original Go error, which may not be cloneable
// or serialisable.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WithDetails(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Io wraps a lower-level error, concatenating its text rather than
// retaining the error object.
func Io(reason error) *Error {
	return &Error{Kind: KindIo, Message: reason.Error()}
}

// HistoryTrimmed reports that a requested historical version has
// already been collected by retention GC, raised by the
// history/get-at operation when the chain's surviving
// prefix no longer reaches back to the requested version.
func HistoryTrimmed(requested, earliestRetained uint64) *Error {
	return &Error{
		Kind:    KindHistoryTrimmed,
		Message: fmt.Sprintf("requested version %d is older than the earliest retained version %d", requested, earliestRetained),
		Details: map[string]any{
			"requested":         requested,
			"earliest_retained": earliestRetained,
		},
	}
}

// As reports whether err is a *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// KindOf returns the Kind of err if it is a *Error, or KindInternal
// otherwise, for the CLI/wire layers that must always render some
// code.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
