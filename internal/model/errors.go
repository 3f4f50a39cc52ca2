package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
	ErrCollaborator = errors.New("collaborator failure")
	ErrExtraction   = errors.New("extraction failed")
	ErrNotFound     = errors.New("not found")
)

// WrapError tags err with a kind sentinel and the failing operation
func WrapError(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// IsKind reports whether err carries the given kind sentinel
func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
