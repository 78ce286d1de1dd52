package review

import "errors"

var (
	// ErrNotFound means the referenced alert does not exist.
	ErrNotFound = errors.New("alert not found")

	// ErrInvalidDecision means the decision type is outside the
	// GO/HOLD/ESCALATE enum. Raised before any storage lookup.
	ErrInvalidDecision = errors.New("invalid decision type")

	// ErrConflict means concurrent decision recording contended on the
	// same alert. The service retries once internally before surfacing it.
	ErrConflict = errors.New("concurrent decision conflict")
)
