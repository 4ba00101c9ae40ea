package events

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// UploadEvent describes one completed object upload. It is consumed once by a
// single resolver invocation.
type UploadEvent struct {
	Author           uuid.UUID   `json:"author" validate:"required"`
	DriveID          uuid.UUID   `json:"driveID" validate:"required"`
	ResourceID       *uuid.UUID  `json:"resourceID,omitempty"`
	FilePath         string      `json:"filePath" validate:"required,max=4096"`
	Filesize         int64       `json:"filesize" validate:"gte=0"`
	ShareID          uuid.UUID   `json:"shareID" validate:"required"`
	Note             string      `json:"note" validate:"max=3000"`
	MentionedMembers []uuid.UUID `json:"mentionedMembers,omitempty"`
	ObjectKey        string      `json:"objectKey,omitempty"`
}

func (e *UploadEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// Metadata keys written by the upload client as object user metadata.
const (
	MetaAuthor           = "author"
	MetaDriveID          = "drive_id"
	MetaFilePath         = "file_path"
	MetaFilesize         = "filesize"
	MetaResourceID       = "resource_id"
	MetaShareUID         = "share_uid"
	MetaNote             = "note"
	MetaMentionedMembers = "mentioned_members"
)

// NormalizeMetadata lowercases keys, strips the x-amz-meta- prefix and turns
// dashes into underscores, so "X-Amz-Meta-Drive-Id" becomes "drive_id".
func NormalizeMetadata(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		key := strings.ToLower(strings.TrimSpace(k))
		key = strings.TrimPrefix(key, "x-amz-meta-")
		key = strings.ReplaceAll(key, "-", "_")
		out[key] = strings.TrimSpace(v)
	}
	return out
}

// FromMetadata decodes object user metadata into an UploadEvent. It does not validate.
func FromMetadata(meta map[string]string) (UploadEvent, error) {
	m := NormalizeMetadata(meta)
	var ev UploadEvent
	var err error

	if ev.Author, err = parseRequiredUUID(m, MetaAuthor); err != nil {
		return UploadEvent{}, err
	}
	if ev.DriveID, err = parseRequiredUUID(m, MetaDriveID); err != nil {
		return UploadEvent{}, err
	}
	if ev.ShareID, err = parseRequiredUUID(m, MetaShareUID); err != nil {
		return UploadEvent{}, err
	}

	if raw := m[MetaResourceID]; raw != "" && raw != "null" && raw != "None" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return UploadEvent{}, fmt.Errorf("%s: %w", MetaResourceID, err)
		}
		ev.ResourceID = &id
	}

	if raw := m[MetaFilesize]; raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return UploadEvent{}, fmt.Errorf("%s: %w", MetaFilesize, err)
		}
		ev.Filesize = size
	}

	ev.FilePath = m[MetaFilePath]
	ev.Note = m[MetaNote]

	for _, raw := range strings.Split(m[MetaMentionedMembers], ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return UploadEvent{}, fmt.Errorf("%s: %w", MetaMentionedMembers, err)
		}
		ev.MentionedMembers = append(ev.MentionedMembers, id)
	}

	return ev, nil
}

func parseRequiredUUID(m map[string]string, key string) (uuid.UUID, error) {
	raw, ok := m[key]
	if !ok || raw == "" {
		return uuid.Nil, fmt.Errorf("%s: missing", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", key, err)
	}
	return id, nil
}
