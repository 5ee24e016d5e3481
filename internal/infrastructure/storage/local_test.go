package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhensley/labtrack/internal/pkg/config"
)

func setupTestStore(t *testing.T) (*UploadStore, string) {
	tempDir := t.TempDir()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors in tests
	}))

	store, err := NewUploadStore(&config.UploadConfig{
		BasePath:      tempDir,
		MaxFileSizeMB: 1,
	}, logger)
	require.NoError(t, err)

	return store, tempDir
}

func TestUploadStore_SaveUpload(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	filename := "experiments.csv"
	content := []byte("experiment_id,researcher\nSerum_MH_101,MH\n")

	metadata, err := store.SaveUpload(ctx, filename, bytes.NewReader(content))
	require.NoError(t, err)
	require.NotNil(t, metadata)

	assert.NotEmpty(t, metadata.ID)
	assert.Equal(t, filename, metadata.OriginalName)
	assert.Equal(t, int64(len(content)), metadata.Size)
	assert.NotEmpty(t, metadata.Hash)
	assert.Equal(t, "text/csv", metadata.ContentType)
	assert.NotZero(t, metadata.CreatedAt)

	_, err = os.Stat(metadata.StoredPath)
	assert.NoError(t, err)
}

func TestUploadStore_SizeLimit(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	// Config allows 1 MB; this is 2 MB
	big := bytes.Repeat([]byte("x"), 2*1024*1024)

	metadata, err := store.SaveUpload(ctx, "big.csv", bytes.NewReader(big))
	require.Error(t, err)
	assert.Nil(t, metadata)
	assert.Contains(t, err.Error(), "maximum size")
}

func TestUploadStore_OpenUpload(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	content := []byte(`{"experiment_id": "Serum_MH_101"}`)
	metadata, err := store.SaveUpload(ctx, "data.json", bytes.NewReader(content))
	require.NoError(t, err)

	reader, err := store.OpenUpload(ctx, metadata.ID, "data.json")
	require.NoError(t, err)
	defer reader.Close()

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(reader)
	require.NoError(t, err)
	assert.Equal(t, content, buf.Bytes())
}

func TestUploadStore_UploadPath(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	metadata, err := store.SaveUpload(ctx, "book.xlsx", bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	path, err := store.UploadPath(metadata.ID, "book.xlsx")
	require.NoError(t, err)
	assert.Equal(t, metadata.StoredPath, path)

	_, err = store.UploadPath("no-such-upload", "book.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestUploadStore_SaveAndGetResult(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	metadata, err := store.SaveUpload(ctx, "book.xlsx", bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	// No result yet
	data, err := store.GetResult(ctx, metadata.ID)
	require.NoError(t, err)
	assert.Nil(t, data)

	result := map[string]interface{}{"created": 3, "updated": 1, "skipped": 0}
	require.NoError(t, store.SaveResult(ctx, metadata.ID, result))

	data, err = store.GetResult(ctx, metadata.ID)
	require.NoError(t, err)
	require.NotNil(t, data)

	var loaded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, float64(3), loaded["created"])
	assert.Equal(t, float64(1), loaded["updated"])
}

func TestUploadStore_DeleteUpload(t *testing.T) {
	store, basePath := setupTestStore(t)
	ctx := context.Background()

	metadata, err := store.SaveUpload(ctx, "book.xlsx", bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	require.NoError(t, store.SaveResult(ctx, metadata.ID, map[string]int{"created": 1}))

	uploadDir := filepath.Join(basePath, "uploads", metadata.ID)
	resultDir := filepath.Join(basePath, "results", metadata.ID)

	_, err = os.Stat(uploadDir)
	assert.NoError(t, err)
	_, err = os.Stat(resultDir)
	assert.NoError(t, err)

	require.NoError(t, store.DeleteUpload(ctx, metadata.ID))

	_, err = os.Stat(uploadDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(resultDir)
	assert.True(t, os.IsNotExist(err))
}

func TestUploadStore_CleanupOldUploads(t *testing.T) {
	store, basePath := setupTestStore(t)
	ctx := context.Background()

	oldDir := filepath.Join(basePath, "uploads", "old-upload")
	require.NoError(t, os.MkdirAll(oldDir, 0755))
	twoHoursAgo := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldDir, twoHoursAgo, twoHoursAgo))

	recentDir := filepath.Join(basePath, "uploads", "recent-upload")
	require.NoError(t, os.MkdirAll(recentDir, 0755))

	require.NoError(t, store.CleanupOldUploads(ctx, time.Hour))

	_, err := os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recentDir)
	assert.NoError(t, err)
}

func TestUploadStore_ContentType(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
	}{
		{"book.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"book.xls", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"experiments.csv", "text/csv"},
		{"additives.json", "application/json"},
		{"file.unknown", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.contentType, contentType(tt.filename))
		})
	}
}

func TestUploadStore_HashConsistency(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	content := []byte("experiment_id\nSerum_MH_101\n")

	meta1, err := store.SaveUpload(ctx, "a.csv", bytes.NewReader(content))
	require.NoError(t, err)
	meta2, err := store.SaveUpload(ctx, "b.csv", bytes.NewReader(content))
	require.NoError(t, err)

	assert.NotEqual(t, meta1.ID, meta2.ID)
	assert.Equal(t, meta1.Hash, meta2.Hash)
}
