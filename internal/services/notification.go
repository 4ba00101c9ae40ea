package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/docshare/conduit/internal/config"
	"github.com/docshare/conduit/internal/models"
	"github.com/docshare/conduit/internal/resolver"
	"github.com/docshare/conduit/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationService fans committed shares out to drive members in the background.
type NotificationService struct {
	DB    *gorm.DB
	queue chan resolver.ShareNotice
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewNotificationService(db *gorm.DB, cfg config.WorkerConfig) *NotificationService {
	s := &NotificationService{
		DB:    db,
		queue: make(chan resolver.ShareNotice, cfg.QueueBufferSize),
		done:  make(chan struct{}),
	}
	go s.processQueue()
	return s
}

func (s *NotificationService) NotifyShare(notice resolver.ShareNotice) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- notice:
	default:
		logger.Warn("notification_queue_full", map[string]interface{}{
			"share_id": notice.Share.ID.String(),
			"dropped":  true,
		})
	}
}

// Close stops the queue and waits for pending notices to be written.
func (s *NotificationService) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *NotificationService) processQueue() {
	defer close(s.done)
	for notice := range s.queue {
		if err := s.deliver(notice); err != nil {
			logger.Error("notification_delivery_failed", err, map[string]interface{}{
				"share_id": notice.Share.ID.String(),
				"drive_id": notice.Share.DriveID.String(),
			})
		}
	}
}

func (s *NotificationService) deliver(notice resolver.ShareNotice) error {
	var drive models.Drive
	if err := s.DB.First(&drive, "id = ?", notice.Share.DriveID).Error; err != nil {
		return err
	}

	recipients, err := s.recipients(drive)
	if err != nil {
		return err
	}

	mentioned := make(map[uuid.UUID]bool, len(notice.Mentioned))
	for _, id := range notice.Mentioned {
		mentioned[id] = true
	}

	actor := s.actorName(notice.Share.AuthorID)
	rows := make([]models.Notification, 0, len(recipients))
	for _, recipientID := range recipients {
		if recipientID == notice.Share.AuthorID {
			continue
		}
		message := fmt.Sprintf("%s shared \"%s\" in %s", actor, notice.Leaf.Name, drive.Name)
		if mentioned[recipientID] {
			message = fmt.Sprintf("%s mentioned you on \"%s\" in %s", actor, notice.Leaf.Name, drive.Name)
		}
		rows = append(rows, models.Notification{
			RecipientID: recipientID,
			PublisherID: notice.Share.AuthorID,
			DriveID:     drive.ID,
			ShareID:     notice.Share.ID,
			Message:     message,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	return s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// recipients is the owner plus every member, without duplicates.
func (s *NotificationService) recipients(drive models.Drive) ([]uuid.UUID, error) {
	var memberIDs []uuid.UUID
	if err := s.DB.Table("drive_members").Where("drive_id = ?", drive.ID).Pluck("user_id", &memberIDs).Error; err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]bool{drive.OwnerID: true}
	result := []uuid.UUID{drive.OwnerID}
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	return result, nil
}

func (s *NotificationService) actorName(userID uuid.UUID) string {
	var user models.User
	if err := s.DB.Select("first_name", "last_name").First(&user, "id = ?", userID).Error; err != nil {
		return "Someone"
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

func (s *NotificationService) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]models.Notification, error) {
	query := s.DB.WithContext(ctx).Preload("Publisher").Where("recipient_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").Find(&notifications).Error
	return notifications, err
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	result := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", notificationID, userID).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
