// Package receipts keeps scanned expense receipts in object storage.
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
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const MaxSize = 5 << 20

var (
	ErrNotConfigured   = errors.New("receipt storage not configured")
	ErrUnsupportedType = errors.New("unsupported receipt type")
	ErrTooLarge        = errors.New("receipt too large")
)

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

type Storage interface {
	Put(ctx context.Context, reader io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) (*Object, error)
}

// ObjectKey places a receipt under receipts/YYYY/MM/DD with a random name.
func ObjectKey(at time.Time, contentType string) (string, error) {
	ext, ok := extensions[normalizeType(contentType)]
	if !ok {
		return "", ErrUnsupportedType
	}
	return path.Join("receipts", at.UTC().Format("2006/01/02"), uuid.NewString()+ext), nil
}

func normalizeType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func validate(size int64, contentType string) error {
	if _, ok := extensions[normalizeType(contentType)]; !ok {
		return ErrUnsupportedType
	}
	if size <= 0 || size > MaxSize {
		return ErrTooLarge
	}
	return nil
}

type MinioStorage struct {
	client *minio.Client
	bucket string
}

func NewMinio(ctx context.Context, endpoint string, accessKey string, secretKey string, bucket string, useSSL bool) (*MinioStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
	}
	return &MinioStorage{client: client, bucket: bucket}, nil
}

func (s *MinioStorage) Put(ctx context.Context, reader io.Reader, size int64, contentType string) (string, error) {
	if err := validate(size, contentType); err != nil {
		return "", err
	}
	key, err := ObjectKey(time.Now(), contentType)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: normalizeType(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload receipt: %w", err)
	}
	return key, nil
}

func (s *MinioStorage) Get(ctx context.Context, key string) (*Object, error) {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	info, err := object.Stat()
	if err != nil {
		_ = object.Close()
		return nil, fmt.Errorf("stat receipt: %w", err)
	}
	return &Object{Body: object, ContentType: info.ContentType, Size: info.Size}, nil
}

// Disabled is used when no object store is configured.
type Disabled struct{}

func (Disabled) Put(_ context.Context, _ io.Reader, _ int64, _ string) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Get(_ context.Context, _ string) (*Object, error) {
	return nil, ErrNotConfigured
}
