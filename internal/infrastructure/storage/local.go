// Package storage keeps uploaded spreadsheets and their batch results on the
// local filesystem. Uploads land under <base>/uploads/<id>/, results under
// <base>/results/<id>/result.json.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mhensley/labtrack/internal/pkg/config"
)

// UploadMetadata describes a stored upload.
type UploadMetadata struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	StoredPath   string    `json:"stored_path"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash"`
	ContentType  string    `json:"content_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// UploadStore manages uploaded workbooks on the local filesystem.
type UploadStore struct {
	basePath string
	maxBytes int64
	logger   *slog.Logger
}

// NewUploadStore creates the store and its base directory.
func NewUploadStore(cfg *config.UploadConfig, logger *slog.Logger) (*UploadStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &UploadStore{
		basePath: cfg.BasePath,
		maxBytes: cfg.MaxFileSizeMB * 1024 * 1024,
		logger:   logger,
	}, nil
}

// SaveUpload stores an uploaded file under a fresh upload ID and returns its
// metadata. Files over the configured size limit are rejected and removed.
func (s *UploadStore) SaveUpload(ctx context.Context, filename string, reader io.Reader) (*UploadMetadata, error) {
	uploadID := uuid.New().String()

	uploadDir := filepath.Join(s.basePath, "uploads", uploadID)
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	safeName := filepath.Base(filename)
	destPath := filepath.Join(uploadDir, safeName)

	destFile, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer destFile.Close()

	hash := sha256.New()
	multiWriter := io.MultiWriter(destFile, hash)

	limit := reader
	if s.maxBytes > 0 {
		// One extra byte so an exactly-at-limit file still passes
		limit = io.LimitReader(reader, s.maxBytes+1)
	}
	size, err := io.Copy(multiWriter, limit)
	if err != nil {
		os.RemoveAll(uploadDir)
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		os.RemoveAll(uploadDir)
		return nil, fmt.Errorf("file exceeds maximum size of %d bytes", s.maxBytes)
	}

	metadata := &UploadMetadata{
		ID:           uploadID,
		OriginalName: filename,
		StoredPath:   destPath,
		Size:         size,
		Hash:         hex.EncodeToString(hash.Sum(nil)),
		ContentType:  contentType(filename),
		CreatedAt:    time.Now(),
	}

	s.logger.Info("upload stored",
		slog.String("upload_id", uploadID),
		slog.String("filename", filename),
		slog.Int64("size", size),
		slog.String("hash", metadata.Hash))

	return metadata, nil
}

// UploadPath returns the on-disk path of a stored upload, verifying it exists.
func (s *UploadStore) UploadPath(uploadID, filename string) (string, error) {
	path := filepath.Join(s.basePath, "uploads", uploadID, filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("upload not found: %s", uploadID)
		}
		return "", fmt.Errorf("failed to stat upload: %w", err)
	}
	return path, nil
}

// OpenUpload opens a stored upload for reading.
func (s *UploadStore) OpenUpload(ctx context.Context, uploadID, filename string) (io.ReadCloser, error) {
	path, err := s.UploadPath(uploadID, filename)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	return file, nil
}

// SaveResult persists the batch outcome as JSON next to the upload, so
// callers can poll for it after enqueuing.
func (s *UploadStore) SaveResult(ctx context.Context, uploadID string, result interface{}) error {
	resultDir := filepath.Join(s.basePath, "results", uploadID)
	if err := os.MkdirAll(resultDir, 0755); err != nil {
		return fmt.Errorf("failed to create result directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	path := filepath.Join(resultDir, "result.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	s.logger.Info("batch result saved",
		slog.String("upload_id", uploadID),
		slog.Int("size", len(data)))
	return nil
}

// GetResult reads a previously saved batch result. Returns nil bytes when no
// result exists yet.
func (s *UploadStore) GetResult(ctx context.Context, uploadID string) ([]byte, error) {
	path := filepath.Join(s.basePath, "results", uploadID, "result.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	return data, nil
}

// DeleteUpload removes an upload and its result.
func (s *UploadStore) DeleteUpload(ctx context.Context, uploadID string) error {
	uploadDir := filepath.Join(s.basePath, "uploads", uploadID)
	if err := os.RemoveAll(uploadDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete upload directory: %w", err)
	}

	resultDir := filepath.Join(s.basePath, "results", uploadID)
	if err := os.RemoveAll(resultDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete result directory: %w", err)
	}

	s.logger.Info("upload deleted", slog.String("upload_id", uploadID))
	return nil
}

// CleanupOldUploads removes uploads and results older than the given age.
func (s *UploadStore) CleanupOldUploads(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)

	for _, sub := range []string{"uploads", "results"} {
		if err := s.cleanupDirectory(filepath.Join(s.basePath, sub), cutoff); err != nil {
			return fmt.Errorf("failed to clean %s: %w", sub, err)
		}
	}

	s.logger.Info("upload cleanup completed", slog.Duration("older_than", olderThan))
	return nil
}

func (s *UploadStore) cleanupDirectory(dir string, cutoff time.Time) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("failed to stat directory",
				slog.String("path", path),
				slog.Any("error", err))
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(path); err != nil {
				s.logger.Warn("failed to remove directory",
					slog.String("path", path),
					slog.Any("error", err))
			} else {
				s.logger.Debug("removed old upload",
					slog.String("path", path),
					slog.Time("mod_time", info.ModTime()))
			}
		}
	}

	return nil
}

// contentType maps supported upload extensions to MIME types.
func contentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".xlsx", ".xls":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
