package storage

import (
	"errors"
	"fmt"
)

// ErrNilSession is returned when a nil session is saved.
var ErrNilSession = errors.New("cannot store nil session")

// NotFoundError is returned when a session doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "session not found"
	}

	return "session not found: " + e.ID
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// Validate checks a session before it is stored.
func Validate(s *Session) error {
	if s == nil {
		return ErrNilSession
	}
	if s.ID == "" {
		return fmt.Errorf("session id must not be empty")
	}
	return nil
}
