package events

import (
	"net/url"
	"strings"
)

// BucketNotification is the body MinIO and S3 post for bucket events.
type BucketNotification struct {
	EventName string               `json:"EventName"`
	Key       string               `json:"Key"`
	Records   []NotificationRecord `json:"Records"`
}

type NotificationRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key          string            `json:"key"`
			Size         int64             `json:"size"`
			ContentType  string            `json:"contentType"`
			UserMetadata map[string]string `json:"userMetadata"`
		} `json:"object"`
	} `json:"s3"`
}

func (r NotificationRecord) IsObjectCreated() bool {
	name := strings.TrimPrefix(r.EventName, "s3:")
	return strings.HasPrefix(name, "ObjectCreated:")
}

// ObjectKey returns the record's key with URL escaping removed.
func (r NotificationRecord) ObjectKey() string {
	key, err := url.QueryUnescape(r.S3.Object.Key)
	if err != nil {
		return r.S3.Object.Key
	}
	return key
}

// HasUploadMetadata reports whether the record already carries the metadata
// needed to build an UploadEvent.
func (r NotificationRecord) HasUploadMetadata() bool {
	m := NormalizeMetadata(r.S3.Object.UserMetadata)
	return m[MetaDriveID] != "" && m[MetaFilePath] != ""
}
