package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/docshare/conduit/internal/config"
	"github.com/docshare/conduit/internal/database"
	"github.com/docshare/conduit/internal/events"
	"github.com/docshare/conduit/internal/models"
	"github.com/docshare/conduit/internal/tree"
	"github.com/docshare/conduit/internal/txn"
	"github.com/docshare/conduit/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShareNotice is handed to the notifier once a share and its drive usage are committed.
type ShareNotice struct {
	Share     models.Share
	Leaf      models.Node
	Created   bool
	Mentioned []uuid.UUID
}

type Notifier interface {
	NotifyShare(notice ShareNotice)
}

// Resolver materializes upload paths into the node tree of a drive.
type Resolver struct {
	pool     *txn.SessionPool
	notifier Notifier
	maxDepth int
}

func New(pool *txn.SessionPool, notifier Notifier, cfg config.TreeConfig) *Resolver {
	return &Resolver{pool: pool, notifier: notifier, maxDepth: cfg.MaxDepth}
}

// Resolve maps ev's path onto the drive's nodes, creating missing segments and
// adding ev's size to every segment it touches. The returned chain runs root
// to leaf and excludes the resource anchor.
//
// Any failure inside the walk rolls everything back and returns an empty chain.
// If only the share bookkeeping after commit fails, the committed chain is
// returned together with the error.
func (r *Resolver) Resolve(ctx context.Context, ev events.UploadEvent) (*tree.Chain, error) {
	if err := ev.Validate(); err != nil {
		return tree.NewChain(nil), r.fail(ev, KindInvalid, err)
	}
	segments, err := tree.SplitPath(ev.FilePath)
	if err != nil {
		return tree.NewChain(nil), r.fail(ev, KindInvalid, err)
	}
	if r.maxDepth > 0 && len(segments) > r.maxDepth {
		err := fmt.Errorf("%w: %d segments exceed the limit of %d", tree.ErrInvalidPath, len(segments), r.maxDepth)
		return tree.NewChain(nil), r.fail(ev, KindInvalid, err)
	}

	var chain *tree.Chain
	var notice *ShareNotice

	err = r.pool.WithSession(ctx, txn.LockSet{DriveID: ev.DriveID, ResourceID: ev.ResourceID}, func(s *txn.Session) error {
		var author models.User
		if err := s.Tx.First(&author, "id = ?", ev.Author).Error; err != nil {
			return fmt.Errorf("loading author %s: %w", ev.Author, err)
		}

		walked, err := r.walk(s, &author, segments, ev.Filesize)
		if err != nil {
			return err
		}
		chain = walked

		s.AfterCommit(func(post *txn.Session) error {
			recorded, err := r.recordShare(post, ev, chain)
			notice = recorded
			return err
		})
		return nil
	})

	var postErr *txn.PostCommitError
	switch {
	case err == nil:
	case errors.As(err, &postErr):
		return chain, r.fail(ev, classify(err), err)
	default:
		return tree.NewChain(nil), r.fail(ev, classify(err), err)
	}

	if r.notifier != nil && notice != nil {
		r.notifier.NotifyShare(*notice)
	}

	logger.InfoWithUser(ev.Author.String(), "path_resolved", map[string]interface{}{
		"drive_id":  ev.DriveID.String(),
		"file_path": ev.FilePath,
		"nodes":     chain.Len(),
		"leaf_id":   chain.Leaf().ID.String(),
	})
	return chain, nil
}

func (r *Resolver) walk(s *txn.Session, author *models.User, segments []string, size int64) (*tree.Chain, error) {
	if s.Resource != nil && !s.Resource.IsDirectory {
		return nil, fmt.Errorf("%w: resource %s is a file", ErrKindMismatch, s.Resource.Path)
	}
	chain := tree.NewChain(s.Resource)

	for i, name := range segments {
		isLeaf := i == len(segments)-1
		parent := chain.Last()

		node, err := r.resolveSegment(s.Tx, author, s.Drive, chain.PathFor(name), name, isLeaf, size)
		if err != nil {
			return nil, err
		}
		if err := link(s.Tx, parent, node); err != nil {
			return nil, err
		}
		chain.Push(*node)
	}

	if s.Resource != nil && size != 0 {
		if err := addToAncestors(s.Tx, s.Resource, size, r.maxDepth); err != nil {
			return nil, err
		}
	}
	return chain, nil
}

func (r *Resolver) resolveSegment(tx *gorm.DB, author *models.User, drive *models.Drive, path, name string, isLeaf bool, size int64) (*models.Node, error) {
	var node models.Node
	err := tx.Where("owner_id = ? AND drive_id = ? AND name = ? AND path = ?", author.ID, drive.ID, name, path).
		First(&node).Error

	switch {
	case err == nil:
		if node.IsDirectory == isLeaf {
			return nil, fmt.Errorf("%w: %s", ErrKindMismatch, path)
		}
		if err := tx.Model(&node).Update("size", gorm.Expr("size + ?", size)).Error; err != nil {
			return nil, fmt.Errorf("growing %s: %w", path, err)
		}
		node.Size += size
		return &node, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		node = models.Node{
			OwnerID:     author.ID,
			DriveID:     drive.ID,
			Name:        name,
			Path:        path,
			IsDirectory: !isLeaf,
			Size:        size,
		}
		if err := tx.Create(&node).Error; err != nil {
			return nil, fmt.Errorf("creating %s: %w", path, err)
		}
		return &node, nil

	default:
		return nil, fmt.Errorf("looking up %s: %w", path, err)
	}
}

// link records parent -> child once. A child already held by another container is rejected.
func link(tx *gorm.DB, parent, child *models.Node) error {
	if parent == nil {
		return nil
	}

	edge := models.NodeContent{NodeID: parent.ID, ChildID: child.ID, DriveID: child.DriveID}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge)
	if res.Error != nil {
		return fmt.Errorf("linking %s: %w", child.Path, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var existing models.NodeContent
	if err := tx.First(&existing, "child_id = ?", child.ID).Error; err != nil {
		return fmt.Errorf("linking %s: %w", child.Path, err)
	}
	if existing.NodeID != parent.ID {
		return fmt.Errorf("%w: %s", ErrSecondParent, child.Path)
	}
	return nil
}

// addToAncestors grows the anchor and every container above it, so that the
// root-level sum used for drive usage includes uploads placed under a resource.
func addToAncestors(tx *gorm.DB, anchor *models.Node, size int64, maxDepth int) error {
	current := anchor.ID
	seen := map[uuid.UUID]bool{}

	for depth := 0; !seen[current]; depth++ {
		if maxDepth > 0 && depth > maxDepth {
			return fmt.Errorf("%w above %s", tree.ErrDepthExceeded, anchor.Path)
		}
		seen[current] = true

		if err := tx.Model(&models.Node{}).Where("id = ?", current).
			Update("size", gorm.Expr("size + ?", size)).Error; err != nil {
			return fmt.Errorf("growing ancestor %s: %w", current, err)
		}

		var edge models.NodeContent
		err := tx.Where("child_id = ?", current).First(&edge).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return err
		}
		current = edge.NodeID
	}

	anchor.Size += size
	return nil
}

func (r *Resolver) recordShare(s *txn.Session, ev events.UploadEvent, chain *tree.Chain) (*ShareNotice, error) {
	share, created, err := upsertShare(s.Tx, ev, chain.Anchor)
	if err != nil {
		return nil, err
	}

	leaf := chain.Leaf()
	asset := models.ShareAsset{ShareID: share.ID, NodeID: leaf.ID}
	if err := s.Tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&asset).Error; err != nil {
		return nil, fmt.Errorf("adding asset %s: %w", leaf.Path, err)
	}

	used, err := database.DriveUsage(s.Tx, s.Drive.ID)
	if err != nil {
		return nil, fmt.Errorf("computing usage: %w", err)
	}
	if err := s.Tx.Model(s.Drive).Update("used", used).Error; err != nil {
		return nil, fmt.Errorf("saving usage: %w", err)
	}

	return &ShareNotice{
		Share:     *share,
		Leaf:      *leaf,
		Created:   created,
		Mentioned: ev.MentionedMembers,
	}, nil
}

// upsertShare finds the share for ev's batch or creates it with the caller's id.
func upsertShare(tx *gorm.DB, ev events.UploadEvent, anchor *models.Node) (*models.Share, bool, error) {
	query := tx.Where("id = ? AND drive_id = ? AND author_id = ? AND note = ?", ev.ShareID, ev.DriveID, ev.Author, ev.Note)
	if anchor != nil {
		query = query.Where("parent_id = ?", anchor.ID)
	} else {
		query = query.Where("parent_id IS NULL")
	}

	var share models.Share
	err := query.First(&share).Error
	if err == nil {
		return &share, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("looking up share %s: %w", ev.ShareID, err)
	}

	var taken int64
	if err := tx.Model(&models.Share{}).Where("id = ?", ev.ShareID).Count(&taken).Error; err != nil {
		return nil, false, err
	}
	if taken > 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrShareIdentity, ev.ShareID)
	}

	share = models.Share{
		BaseModel: models.BaseModel{ID: ev.ShareID},
		AuthorID:  ev.Author,
		DriveID:   ev.DriveID,
		Note:      ev.Note,
	}
	if anchor != nil {
		parentID := anchor.ID
		share.ParentID = &parentID
	}
	if err := tx.Create(&share).Error; err != nil {
		return nil, false, fmt.Errorf("creating share %s: %w", ev.ShareID, err)
	}
	return &share, true, nil
}

func (r *Resolver) fail(ev events.UploadEvent, kind Kind, err error) error {
	logger.ErrorWithUser(ev.Author.String(), "resolve_failed", err, map[string]interface{}{
		"kind":      string(kind),
		"drive_id":  ev.DriveID.String(),
		"file_path": ev.FilePath,
	})
	return &Error{Kind: kind, Path: ev.FilePath, Err: err}
}
