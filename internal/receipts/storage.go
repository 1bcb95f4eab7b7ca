// Package receipts stores uploaded service receipts and returns the URL a
// service log references.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrTooLarge        = errors.New("receipt too large")
	ErrUnsupportedType = errors.New("unsupported receipt type")
	ErrEmpty           = errors.New("receipt is empty")
)

// Storage is an object store holding receipt files.
type Storage interface {
	Upload(ctx context.Context, req *UploadRequest) (*UploadResponse, error)
	Delete(ctx context.Context, key string) error
}

type UploadRequest struct {
	Key         string
	Reader      io.Reader
	ContentType string
	Size        int64
	Metadata    map[string]string
}

type UploadResponse struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	ETag string `json:"etag,omitempty"`
}

var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/heic":      ".heic",
	"application/pdf": ".pdf",
}

// Service validates receipts and files them under the uploader's prefix.
type Service struct {
	storage  Storage
	maxBytes int64
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewService creates a receipt service. maxBytes <= 0 disables the size check.
func NewService(storage Storage, maxBytes int64, log logrus.FieldLogger) *Service {
	return &Service{storage: storage, maxBytes: maxBytes, log: log, now: time.Now}
}

// Upload stores one receipt for userID and returns where it can be fetched.
func (s *Service) Upload(ctx context.Context, userID, contentType string, size int64, r io.Reader) (*UploadResponse, error) {
	contentType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	ext, ok := allowedTypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	if size == 0 {
		return nil, ErrEmpty
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, s.maxBytes)
	}

	key := Key(userID, s.now(), uuid.NewString()+ext)
	resp, err := s.storage.Upload(ctx, &UploadRequest{
		Key:         key,
		Reader:      r,
		ContentType: contentType,
		Size:        size,
		Metadata:    map[string]string{"owner": userID},
	})
	if err != nil {
		return nil, fmt.Errorf("upload receipt: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"key":     resp.Key,
		"size":    size,
		"user_id": userID,
	}).Info("receipt uploaded")
	return resp, nil
}

// Key builds the object key receipts/<user>/<yyyy>/<mm>/<name>.
func Key(userID string, at time.Time, name string) string {
	return path.Join("receipts", userID, at.UTC().Format("2006"), at.UTC().Format("01"), name)
}
