package domain

import "errors"

// Kind classifies a failure so the HTTP boundary can map it to a status
// code in one place instead of matching on message strings per route.
type Kind string

const (
	KindInvalidTarget Kind = "invalid_target" // target URL is not an absolute URL
	KindInvalidCode   Kind = "invalid_code"   // custom code outside [A-Za-z0-9_-]{1,64}
	KindCodeInUse     Kind = "code_in_use"    // custom code already reserved
	KindCodeRequired  Kind = "code_required"  // custom code missing while required by policy
	KindNotFound      Kind = "not_found"      // no link for the given code or id
	KindDuplicate     Kind = "duplicate_code" // storage-level unique violation
	KindExhausted     Kind = "exhausted"      // auto-code retry budget spent
	KindUnavailable   Kind = "unavailable"    // transient storage failure, safe to retry
)

// Error is the single tagged error type crossing the service boundary.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// E builds a tagged error.
func E(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf extracts the kind from an error chain. Untagged errors report
// KindUnavailable: anything the domain did not classify is treated as a
// transient storage fault at the boundary.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnavailable
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
