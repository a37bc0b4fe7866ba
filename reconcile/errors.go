/*
errors.go - Centralized error types for the reconcile package

ERROR CATEGORIES:
  1. Identity errors - Duplicate identities inside one collection
  2. Shape errors    - Nested collection elements with the wrong shape

Duplicate identities are rejected explicitly instead of last-write-wins:
silently collapsing two records into one drops data the caller submitted.

SEE ALSO:
  - collection.go: Raises these errors
*/
package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateIdentity is returned when a current collection contains
	// two records with the same identity value.
	ErrDuplicateIdentity = errors.New("duplicate identity in collection")

	// ErrNotAnObject is returned when a nested collection element is not
	// an object record.
	ErrNotAnObject = errors.New("nested collection element is not an object")
)

// DuplicateIdentityError carries the offending identity.
type DuplicateIdentityError struct {
	IdentityKey string
	Identity    string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate identity %s=%q in collection", e.IdentityKey, e.Identity)
}

func (e *DuplicateIdentityError) Unwrap() error { return ErrDuplicateIdentity }

// NotAnObjectError names the nested field holding a non-object element.
type NotAnObjectError struct {
	Key string
}

func (e *NotAnObjectError) Error() string {
	return fmt.Sprintf("nested collection %q holds a non-object element", e.Key)
}

func (e *NotAnObjectError) Unwrap() error { return ErrNotAnObject }
