// Package storage archives rendered exports in an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const presignTTL = 15 * time.Minute

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Object describes an uploaded archive.
type Object struct {
	Key  string
	URL  string
	Size int64
}

type Archive struct {
	client *minio.Client
	bucket string
}

func NewArchive(ctx context.Context, cfg Config) (*Archive, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("storage endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	archive := &Archive{client: client, bucket: cfg.Bucket}
	if err := archive.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return archive, nil
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Put uploads data under key and returns a presigned download URL.
func (a *Archive) Put(ctx context.Context, key, contentType string, data []byte) (Object, error) {
	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("put object %s: %w", key, err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", key[strings.LastIndex(key, "/")+1:]))
	signed, err := a.client.PresignedGetObject(ctx, a.bucket, key, presignTTL, params)
	if err != nil {
		return Object{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return Object{Key: key, URL: signed.String(), Size: info.Size}, nil
}

// ObjectKey lays archives out as exports/<thread>/<timestamp>.<ext>.
func ObjectKey(threadID, ext string, at time.Time) string {
	return fmt.Sprintf("exports/%s/%s.%s", threadID, at.UTC().Format("20060102T150405Z"), strings.TrimPrefix(ext, "."))
}
