package resolver

import (
	"errors"
	"fmt"

	"github.com/docshare/conduit/internal/tree"
	"github.com/docshare/conduit/internal/txn"
	"gorm.io/gorm"
)

// Kind tells the task layer whether a failed resolution is worth retrying.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindIntegrity   Kind = "integrity_violation"
	KindInvalid     Kind = "invalid"
	KindLockTimeout Kind = "lock_timeout"
	KindInternal    Kind = "internal"
)

var (
	ErrKindMismatch  = errors.New("existing node has the other kind")
	ErrSecondParent  = errors.New("node already has a different container")
	ErrShareIdentity = errors.New("share id belongs to another batch")
)

type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve %q: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether running the same event again could succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindLockTimeout || e.Kind == KindInternal
}

// KindOf returns the kind of a resolver error, or KindInternal for anything else.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindInternal
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, txn.ErrLockTimeout):
		return KindLockTimeout
	case errors.Is(err, gorm.ErrRecordNotFound):
		return KindNotFound
	case errors.Is(err, ErrKindMismatch), errors.Is(err, ErrSecondParent), errors.Is(err, ErrShareIdentity),
		txn.IsIntegrityViolation(err):
		return KindIntegrity
	case errors.Is(err, tree.ErrInvalidPath):
		return KindInvalid
	default:
		return KindInternal
	}
}
