package storage

import "errors"

var (
	// ErrAlreadyPublished is returned when marking a draft that already has
	// a published location.
	ErrAlreadyPublished = errors.New("draft already published")

	// ErrNotApproved is returned when marking a draft the gate suppressed
	// or never scored.
	ErrNotApproved = errors.New("draft not approved")

	// ErrAlreadyScored is returned when scoring a draft twice.
	ErrAlreadyScored = errors.New("draft already scored")
)

// NotFoundError is returned when a record doesn't exist in the store.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return e.Kind + " not found"
	}

	return e.Kind + " not found: " + e.Key
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
