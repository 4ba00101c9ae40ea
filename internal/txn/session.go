package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docshare/conduit/internal/config"
	"github.com/docshare/conduit/internal/models"
	"github.com/docshare/conduit/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockSet names the rows one invocation holds exclusively. They are always
// taken in this order: drive, then resource.
type LockSet struct {
	DriveID    uuid.UUID
	ResourceID *uuid.UUID
}

// Session is one borrowed transactional session with its rows locked.
type Session struct {
	Tx       *gorm.DB
	Drive    *models.Drive
	Resource *models.Node

	afterCommit []func(*Session) error
}

// AfterCommit registers fn to run once the main transaction has committed.
// Hooks run in a second transaction that holds the same drive lock.
func (s *Session) AfterCommit(fn func(*Session) error) {
	s.afterCommit = append(s.afterCommit, fn)
}

// SessionPool serializes writers per drive. Each call takes in-process locks on
// its drive and resource, borrows one of a bounded number of sessions, then
// takes row locks inside a transaction.
type SessionPool struct {
	db       *gorm.DB
	sessions *semaphore.Weighted
	locks    *keyedLocks
	timeout  time.Duration
}

func NewSessionPool(db *gorm.DB, cfg config.LockConfig) *SessionPool {
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 1
	}
	return &SessionPool{
		db:       db,
		sessions: semaphore.NewWeighted(int64(maxSessions)),
		locks:    newKeyedLocks(),
		timeout:  cfg.Timeout,
	}
}

// WithSession runs fn inside a transaction holding locks on the rows in set.
// fn's error rolls everything back. Locks and the session are released on every path.
func (p *SessionPool) WithSession(ctx context.Context, set LockSet, fn func(*Session) error) error {
	waitCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// Keyed locks are taken before a session: callers queued on a busy drive hold none.
	unlockDrive, err := p.locks.Lock(waitCtx, "drive:"+set.DriveID.String())
	if err != nil {
		return p.waitError(ctx, "drive "+set.DriveID.String(), err)
	}
	defer unlockDrive()

	if set.ResourceID != nil {
		unlockResource, err := p.locks.Lock(waitCtx, "node:"+set.ResourceID.String())
		if err != nil {
			return p.waitError(ctx, "resource "+set.ResourceID.String(), err)
		}
		defer unlockResource()
	}

	if err := p.sessions.Acquire(waitCtx, 1); err != nil {
		return p.waitError(ctx, "session", err)
	}
	defer p.sessions.Release(1)

	var session *Session
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := p.lockRows(tx, set)
		if err != nil {
			return err
		}
		session = locked
		return fn(session)
	})
	if err != nil {
		if isLockNotAvailable(err) {
			return fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}
		return err
	}

	if len(session.afterCommit) == 0 {
		return nil
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := p.lockRows(tx, LockSet{DriveID: set.DriveID})
		if err != nil {
			return err
		}
		post.Resource = session.Resource
		for _, hook := range session.afterCommit {
			if err := hook(post); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("post_commit_failed", err, map[string]interface{}{
			"drive_id": set.DriveID.String(),
		})
		return &PostCommitError{Err: err}
	}
	return nil
}

func (p *SessionPool) lockRows(tx *gorm.DB, set LockSet) (*Session, error) {
	if err := p.setLockTimeout(tx); err != nil {
		return nil, err
	}

	var drive models.Drive
	if err := p.forUpdate(tx).First(&drive, "id = ? AND is_active = ?", set.DriveID, true).Error; err != nil {
		return nil, fmt.Errorf("locking drive %s: %w", set.DriveID, err)
	}

	session := &Session{Tx: tx, Drive: &drive}
	if set.ResourceID == nil {
		return session, nil
	}

	var resource models.Node
	if err := p.forUpdate(tx).First(&resource, "id = ? AND drive_id = ?", *set.ResourceID, drive.ID).Error; err != nil {
		return nil, fmt.Errorf("locking resource %s: %w", *set.ResourceID, err)
	}
	session.Resource = &resource
	return session, nil
}

// forUpdate adds FOR UPDATE where the dialect has row locks. sqlite serializes
// writers on its own and rejects the clause.
func (p *SessionPool) forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (p *SessionPool) setLockTimeout(tx *gorm.DB) error {
	if p.timeout <= 0 || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.timeout.Milliseconds())).Error
}

func (p *SessionPool) waitError(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("lock_wait_timeout", map[string]interface{}{
			"target":  what,
			"timeout": p.timeout.String(),
		})
		return fmt.Errorf("%w: waiting for %s", ErrLockTimeout, what)
	}
	return err
}
