package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the service and API layers. The API layer maps
// them to HTTP status codes with errors.Is.
var (
	// ErrNotFound signifies that a requested resource could not be located.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation signifies that input data failed business rule validation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict signifies that an operation conflicts with the current state
	// of a resource, e.g. a second turn or image generation while one is in
	// flight for the same session.
	ErrConflict = errors.New("resource conflict")

	// ErrInternal is a generic error used to avoid leaking details to clients.
	ErrInternal = errors.New("internal server error")

	// ErrMissingCredential is returned when no API key is configured for the
	// generation collaborator.
	ErrMissingCredential = errors.New("generation credential is missing")
)

// Kind classifies failures of the generation collaborator. The collaborator
// boundary is responsible for assigning it; callers branch on the kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindQuota
	KindAuth
	KindSafety
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindQuota:
		return "quota"
	case KindAuth:
		return "auth"
	case KindSafety:
		return "safety"
	default:
		return "unknown"
	}
}

// NeedsReauthorization reports whether the failure should prompt the user to
// select new credentials.
func (k Kind) NeedsReauthorization() bool {
	return k == KindQuota || k == KindAuth
}

// GenerationError is a classified failure from the generation collaborator.
type GenerationError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// NewGenerationError wraps err with a kind. A nil err yields nil.
func NewGenerationError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &GenerationError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind of a classified error. Missing credentials are
// always KindConfig; anything unclassified is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	if errors.Is(err, ErrMissingCredential) {
		return KindConfig
	}
	return KindUnknown
}
