package txn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docshare/conduit/internal/config"
	"github.com/docshare/conduit/internal/database"
	"github.com/docshare/conduit/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating: %v", err)
	}
	return db
}

func seedDrive(t *testing.T, db *gorm.DB) (*models.User, *models.Drive) {
	t.Helper()
	owner := &models.User{Email: uuid.NewString() + "@test.com", FirstName: "Lock", LastName: "Owner"}
	if err := db.Create(owner).Error; err != nil {
		t.Fatalf("failed creating owner: %v", err)
	}
	drive := &models.Drive{OwnerID: owner.ID, Name: "team", Type: models.DriveTypeShared, IsActive: true}
	if err := db.Create(drive).Error; err != nil {
		t.Fatalf("failed creating drive: %v", err)
	}
	return owner, drive
}

func seedNode(t *testing.T, db *gorm.DB, owner *models.User, drive *models.Drive, name string) *models.Node {
	t.Helper()
	node := &models.Node{OwnerID: owner.ID, DriveID: drive.ID, Name: name, Path: "/" + name, IsDirectory: true}
	if err := db.Create(node).Error; err != nil {
		t.Fatalf("failed creating node: %v", err)
	}
	return node
}

func newTestPool(db *gorm.DB, timeout time.Duration, sessions int) *SessionPool {
	return NewSessionPool(db, config.LockConfig{Timeout: timeout, MaxSessions: sessions})
}

func TestWithSession(t *testing.T) {
	db := setupTestDB(t)
	owner, drive := seedDrive(t, db)
	resource := seedNode(t, db, owner, drive, "assignments")
	pool := newTestPool(db, time.Second, 4)
	ctx := context.Background()

	t.Run("loads locked drive and resource", func(t *testing.T) {
		err := pool.WithSession(ctx, LockSet{DriveID: drive.ID, ResourceID: &resource.ID}, func(s *Session) error {
			if s.Drive == nil || s.Drive.ID != drive.ID {
				t.Errorf("expected drive %s, got %+v", drive.ID, s.Drive)
			}
			if s.Resource == nil || s.Resource.Path != "/assignments" {
				t.Errorf("expected resource /assignments, got %+v", s.Resource)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing drive is not found", func(t *testing.T) {
		called := false
		err := pool.WithSession(ctx, LockSet{DriveID: uuid.New()}, func(s *Session) error {
			called = true
			return nil
		})
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Fatalf("expected ErrRecordNotFound, got %v", err)
		}
		if called {
			t.Error("fn must not run without the drive lock")
		}
	})

	t.Run("resource of another drive is not found", func(t *testing.T) {
		_, other := seedDrive(t, db)
		err := pool.WithSession(ctx, LockSet{DriveID: other.ID, ResourceID: &resource.ID}, func(s *Session) error {
			return nil
		})
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Fatalf("expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("fn error rolls back", func(t *testing.T) {
		boom := errors.New("boom")
		err := pool.WithSession(ctx, LockSet{DriveID: drive.ID}, func(s *Session) error {
			if err := s.Tx.Create(&models.Node{OwnerID: owner.ID, DriveID: drive.ID, Name: "ghost", Path: "/ghost"}).Error; err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		var count int64
		db.Model(&models.Node{}).Where("name = ?", "ghost").Count(&count)
		if count != 0 {
			t.Errorf("expected rollback, found %d ghost nodes", count)
		}
	})

	t.Run("releases keyed locks", func(t *testing.T) {
		if n := pool.locks.size(); n != 0 {
			t.Errorf("expected no keyed locks left, got %d", n)
		}
	})
}

func TestAfterCommit(t *testing.T) {
	db := setupTestDB(t)
	owner, drive := seedDrive(t, db)
	pool := newTestPool(db, time.Second, 2)
	ctx := context.Background()

	t.Run("runs after the main transaction", func(t *testing.T) {
		var seen int64
		err := pool.WithSession(ctx, LockSet{DriveID: drive.ID}, func(s *Session) error {
			s.AfterCommit(func(post *Session) error {
				return post.Tx.Model(&models.Node{}).Where("name = ?", "committed").Count(&seen).Error
			})
			return s.Tx.Create(&models.Node{OwnerID: owner.ID, DriveID: drive.ID, Name: "committed", Path: "/committed"}).Error
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen != 1 {
			t.Errorf("hook should see the committed node, saw %d", seen)
		}
	})

	t.Run("skipped when fn fails", func(t *testing.T) {
		ran := false
		_ = pool.WithSession(ctx, LockSet{DriveID: drive.ID}, func(s *Session) error {
			s.AfterCommit(func(*Session) error {
				ran = true
				return nil
			})
			return errors.New("abort")
		})
		if ran {
			t.Error("hook ran for a rolled back transaction")
		}
	})

	t.Run("hook failure keeps the main commit", func(t *testing.T) {
		err := pool.WithSession(ctx, LockSet{DriveID: drive.ID}, func(s *Session) error {
			s.AfterCommit(func(*Session) error { return errors.New("share upsert failed") })
			return s.Tx.Create(&models.Node{OwnerID: owner.ID, DriveID: drive.ID, Name: "kept", Path: "/kept"}).Error
		})
		var postErr *PostCommitError
		if !errors.As(err, &postErr) {
			t.Fatalf("expected PostCommitError, got %v", err)
		}
		var count int64
		db.Model(&models.Node{}).Where("name = ?", "kept").Count(&count)
		if count != 1 {
			t.Errorf("expected committed node to survive, found %d", count)
		}
	})
}

func TestLockTimeout(t *testing.T) {
	db := setupTestDB(t)
	_, drive := seedDrive(t, db)
	ctx := context.Background()

	t.Run("drive lock held elsewhere", func(t *testing.T) {
		pool := newTestPool(db, 50*time.Millisecond, 2)
		unlock, err := pool.locks.Lock(ctx, "drive:"+drive.ID.String())
		if err != nil {
			t.Fatalf("failed taking lock: %v", err)
		}
		defer unlock()

		err = pool.WithSession(ctx, LockSet{DriveID: drive.ID}, func(*Session) error { return nil })
		if !errors.Is(err, ErrLockTimeout) {
			t.Fatalf("expected ErrLockTimeout, got %v", err)
		}
	})

	t.Run("no free session", func(t *testing.T) {
		pool := newTestPool(db, 50*time.Millisecond, 1)
		if err := pool.sessions.Acquire(ctx, 1); err != nil {
			t.Fatalf("failed taking session: %v", err)
		}
		defer pool.sessions.Release(1)

		err := pool.WithSession(ctx, LockSet{DriveID: drive.ID}, func(*Session) error { return nil })
		if !errors.Is(err, ErrLockTimeout) {
			t.Fatalf("expected ErrLockTimeout, got %v", err)
		}
	})

	t.Run("cancelled caller gets its own error", func(t *testing.T) {
		pool := newTestPool(db, time.Minute, 1)
		unlock, _ := pool.locks.Lock(ctx, "drive:"+drive.ID.String())
		defer unlock()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := pool.WithSession(cctx, LockSet{DriveID: drive.ID}, func(*Session) error { return nil })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestSessionsSerializePerDrive(t *testing.T) {
	db := setupTestDB(t)
	_, drive := seedDrive(t, db)
	pool := newTestPool(db, 5*time.Second, 8)

	var active, overlaps int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.WithSession(context.Background(), LockSet{DriveID: drive.ID}, func(*Session) error {
				if atomic.AddInt32(&active, 1) > 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			if err != nil {
				t.Errorf("session failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if overlaps != 0 {
		t.Errorf("expected serialized sessions, saw %d overlaps", overlaps)
	}
}

func (k *keyedLocks) refsFor(key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok := k.locks[key]; ok {
		return l.refs
	}
	return 0
}

func TestBusyDriveLeavesSessionsForOthers(t *testing.T) {
	db := setupTestDB(t)
	owner, busy := seedDrive(t, db)
	idle := &models.Drive{OwnerID: owner.ID, Name: "idle", Type: models.DriveTypeShared, IsActive: true}
	if err := db.Create(idle).Error; err != nil {
		t.Fatalf("failed creating drive: %v", err)
	}

	pool := newTestPool(db, 2*time.Second, 1)
	ctx := context.Background()
	busyKey := "drive:" + busy.ID.String()

	unlock, err := pool.locks.Lock(ctx, busyKey)
	if err != nil {
		t.Fatalf("failed taking lock: %v", err)
	}

	queued := make(chan error, 1)
	go func() {
		queued <- pool.WithSession(ctx, LockSet{DriveID: busy.ID}, func(*Session) error { return nil })
	}()

	deadline := time.Now().Add(time.Second)
	for pool.locks.refsFor(busyKey) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("queued caller never reached the drive lock")
		}
		time.Sleep(time.Millisecond)
	}

	start := time.Now()
	err = pool.WithSession(ctx, LockSet{DriveID: idle.ID}, func(s *Session) error {
		if s.Drive.ID != idle.ID {
			t.Errorf("expected drive %s, got %s", idle.ID, s.Drive.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("idle drive session failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("idle drive waited %s behind the busy one", elapsed)
	}

	unlock()
	if err := <-queued; err != nil {
		t.Fatalf("queued session failed: %v", err)
	}
}

func TestIsIntegrityViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, true},
		{"wrapped duplicated key", errors.Join(errors.New("insert"), gorm.ErrDuplicatedKey), true},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: nodes.owner_id (2067)"), true},
		{"not found", gorm.ErrRecordNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIntegrityViolation(tt.err); got != tt.want {
				t.Errorf("IsIntegrityViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
