package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"chatengine/server/internal/config"
)

// Uploaded is where a stored blob ended up
type Uploaded struct {
	Path      string `json:"path"`
	PublicURL string `json:"publicUrl"`
}

type S3Storage struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewS3Storage(cfg config.S3Config) (*S3Storage, error) {
	if !cfg.Enabled() {
		return nil, errors.New("missing required S3 config: S3_ENDPOINT, S3_BUCKET, S3_ACCESS_KEY, S3_SECRET_KEY")
	}

	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &S3Storage{client: cl, bucket: cfg.Bucket, baseURL: publicBaseURL(cfg)}, nil
}

// Upload stores data under folder with a collision-free name and returns its
// key and public URL
func (s *S3Storage) Upload(ctx context.Context, data []byte, name, mimeType, folder string) (Uploaded, error) {
	key, err := ObjectKey(folder, name)
	if err != nil {
		return Uploaded{}, err
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return Uploaded{}, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return Uploaded{Path: key, PublicURL: s.baseURL + "/" + key}, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// ObjectKey builds "<folder>/<uuid>-<unix><ext>". Only the extension of the
// client-supplied name survives, so it cannot influence the key.
func ObjectKey(folder, name string) (string, error) {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		return "", errors.New("empty folder")
	}
	if strings.Contains(folder, "..") || strings.ContainsAny(folder, "\\") {
		return "", errors.New("invalid folder")
	}

	ext := strings.ToLower(filepath.Ext(path.Base(name)))
	if strings.ContainsAny(ext, "/\\ ") {
		ext = ""
	}

	return fmt.Sprintf("%s/%s-%d%s", folder, uuid.New().String(), time.Now().Unix(), ext), nil
}

func publicBaseURL(cfg config.S3Config) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
}
