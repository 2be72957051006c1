package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the scoring pipeline. Callers branch on these with
// errors.Is; the field-carrying variants additionally unwrap to a
// FieldError.
var (
	// ErrValidation: a required raw field is missing or malformed.
	// Caller's fault, retry only with a corrected payload.
	ErrValidation = errors.New("validation failed")

	// ErrFeatureDerivation: a required derived feature could not be
	// computed. Treated as a scoring-level validation failure.
	ErrFeatureDerivation = errors.New("feature derivation failed")

	// ErrArtifactIO: the model bundle could not be read or decoded.
	// Startup-fatal.
	ErrArtifactIO = errors.New("artifact read failed")

	// ErrArtifactSchema: the model bundle is structurally invalid.
	// Startup-fatal.
	ErrArtifactSchema = errors.New("artifact schema invalid")

	// ErrScoring: a classifier failed during inference. Fatal for the
	// single request, not for the process.
	ErrScoring = errors.New("scoring failed")

	// ErrDuplicateTransaction: the transaction identifier is already
	// recorded. A successful no-op signal, not an alarm.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// FieldError carries the name of the offending field for validation and
// derivation failures.
type FieldError struct {
	Field  string
	Reason string
	kind   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %q: %s", e.kind.Error(), e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.kind
}

// NewValidationError reports a missing or malformed raw field.
func NewValidationError(field, reason string) error {
	return &FieldError{Field: field, Reason: reason, kind: ErrValidation}
}

// NewDerivationError reports a derived feature that could not be computed.
func NewDerivationError(field, reason string) error {
	return &FieldError{Field: field, Reason: reason, kind: ErrFeatureDerivation}
}
