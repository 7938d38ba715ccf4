package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatengine/server/internal/config"
)

func TestObjectKey(t *testing.T) {
	key, err := ObjectKey("/threads/12/", "../../etc/Photo.PNG")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "threads/12/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)
	assert.NotContains(t, key, "..")

	other, err := ObjectKey("threads/12", "Photo.png")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestObjectKeyRejectsBadFolders(t *testing.T) {
	for _, folder := range []string{"", "  ", "a/../b", `a\b`} {
		_, err := ObjectKey(folder, "x.txt")
		assert.Error(t, err, "folder %q", folder)
	}
}

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/chat",
		publicBaseURL(config.S3Config{PublicBaseURL: "https://cdn.example.com/chat/"}))
	assert.Equal(t, "http://localhost:9000/attachments",
		publicBaseURL(config.S3Config{Endpoint: "localhost:9000", Bucket: "attachments"}))
	assert.Equal(t, "https://s3.example.com/attachments",
		publicBaseURL(config.S3Config{Endpoint: "s3.example.com", Bucket: "attachments", UseSSL: true}))
}

func TestNewS3StorageRequiresConfig(t *testing.T) {
	_, err := NewS3Storage(config.S3Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	s, err := NewS3Storage(config.S3Config{Endpoint: "localhost:9000", Bucket: "b", AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/b", s.baseURL)
}
