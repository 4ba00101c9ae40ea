package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/docshare/conduit/internal/events"
	"github.com/docshare/conduit/internal/storage"
	"github.com/docshare/conduit/pkg/logger"
	"github.com/docshare/conduit/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

var errNoMetadata = errors.New("record carries no upload metadata and no object store is configured")

type MetadataSource interface {
	StatMetadata(ctx context.Context, bucket, objectName string) (*storage.ObjectMeta, error)
}

type EventQueue interface {
	Enqueue(ev events.UploadEvent) bool
}

// WebhookHandler turns bucket notifications into queued upload events.
type WebhookHandler struct {
	Storage MetadataSource
	Queue   EventQueue
}

func NewWebhookHandler(source MetadataSource, queue EventQueue) *WebhookHandler {
	return &WebhookHandler{Storage: source, Queue: queue}
}

// Upload always answers 202 so the event source does not redeliver records
// that can never be processed. Skipped records are logged.
func (h *WebhookHandler) Upload(c *fiber.Ctx) error {
	var notification events.BucketNotification
	if err := json.Unmarshal(c.Body(), &notification); err != nil {
		logger.Warn("webhook_invalid_body", map[string]interface{}{
			"ip":    c.IP(),
			"error": err.Error(),
		})
		return utils.Success(c, fiber.StatusAccepted, fiber.Map{"accepted": 0, "skipped": 0})
	}

	accepted, skipped := 0, 0
	for _, record := range notification.Records {
		if !record.IsObjectCreated() {
			skipped++
			continue
		}

		ev, err := h.eventFor(c.UserContext(), record)
		if err == nil {
			err = ev.Validate()
		}
		if err != nil {
			logger.Warn("webhook_record_skipped", map[string]interface{}{
				"bucket":     record.S3.Bucket.Name,
				"object_key": record.ObjectKey(),
				"error":      err.Error(),
			})
			skipped++
			continue
		}

		if !h.Queue.Enqueue(ev) {
			skipped++
			continue
		}
		accepted++
	}

	logger.Info("webhook_processed", map[string]interface{}{
		"records":  len(notification.Records),
		"accepted": accepted,
		"skipped":  skipped,
	})
	return utils.Success(c, fiber.StatusAccepted, fiber.Map{"accepted": accepted, "skipped": skipped})
}

func (h *WebhookHandler) eventFor(ctx context.Context, record events.NotificationRecord) (events.UploadEvent, error) {
	metadata := record.S3.Object.UserMetadata
	size := record.S3.Object.Size

	if !record.HasUploadMetadata() {
		if h.Storage == nil {
			return events.UploadEvent{}, errNoMetadata
		}
		object, err := h.Storage.StatMetadata(ctx, record.S3.Bucket.Name, record.ObjectKey())
		if err != nil {
			return events.UploadEvent{}, err
		}
		metadata = object.Metadata
		size = object.Size
	}

	ev, err := events.FromMetadata(metadata)
	if err != nil {
		return events.UploadEvent{}, err
	}
	if ev.Filesize == 0 {
		ev.Filesize = size
	}
	ev.ObjectKey = record.ObjectKey()
	return ev, nil
}
