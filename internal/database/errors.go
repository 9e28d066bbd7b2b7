package database

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the closed failure set surfaced to callers.
var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalid         = errors.New("invalid input")
	ErrWrongPassphrase = errors.New("incorrect passphrase")
)

// StoreError wraps a failed store operation with its entity and reference.
type StoreError struct {
	Op     string
	Entity string
	Ref    string // record id or name, may be empty
	Err    error
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Ref != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.Ref, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func wrapActivityErr(op, ref string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Entity: "activity", Ref: ref, Err: err}
}

func wrapSessionErr(op, ref string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Entity: "session", Ref: ref, Err: err}
}

func wrapTombstoneErr(op, ref string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Entity: "tombstone", Ref: ref, Err: err}
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...)
}
