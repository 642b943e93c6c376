// Package attach stages attachments for non-text messages: a staged
// attachment is presigned, uploaded out-of-band by the caller, and then
// carried on the message's metadata when the send is issued.
package attach

import (
	"context"
	"fmt"
	"path"
	"time"

	"oficina-chat/internal/domain"
	"oficina-chat/internal/storage"
	chat_errors "oficina-chat/pkg/errors"

	"github.com/google/uuid"
)

// Staged is a presigned, not-yet-sent attachment.
type Staged struct {
	Meta      domain.AttachmentMeta
	UploadURL string
	Headers   map[string]string
	StagedAt  time.Time
}

// presigner is the slice of the storage client the stager needs.
type presigner interface {
	ValidateContentType(contentType string) error
	PresignPut(ctx context.Context, key, contentType string, size int64) (string, map[string]string, error)
	PublicURL(key string) string
}

type Stager struct {
	storage presigner
}

func NewStager(s *storage.Client) *Stager {
	return &Stager{storage: s}
}

// Stage validates the file and returns a presigned PUT slot for it.
func (s *Stager) Stage(ctx context.Context, userID, fileName, contentType string, size int64) (Staged, error) {
	if userID == "" || fileName == "" || contentType == "" || size <= 0 {
		return Staged{}, chat_errors.ErrInvalidInput
	}
	if err := s.storage.ValidateContentType(contentType); err != nil {
		return Staged{}, chat_errors.ErrInvalidInput
	}

	key := objectKey(userID, fileName)
	uploadURL, headers, err := s.storage.PresignPut(ctx, key, contentType, size)
	if err != nil {
		return Staged{}, err
	}

	return Staged{
		Meta: domain.AttachmentMeta{
			URL:       s.storage.PublicURL(key),
			ObjectKey: key,
			FileName:  fileName,
			MimeType:  contentType,
			SizeBytes: size,
		},
		UploadURL: uploadURL,
		Headers:   headers,
		StagedAt:  time.Now(),
	}, nil
}

func objectKey(userID, fileName string) string {
	return fmt.Sprintf("attachments/%s/%s%s", userID, uuid.New().String(), path.Ext(fileName))
}
