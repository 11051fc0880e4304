package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/asteroid-belt/prepsync/internal/models"
)

// blobVersion is written into every blob file.
const blobVersion = 1

// blob is the on-disk envelope for one document.
type blob struct {
	Version  int             `json:"version"`
	Document json.RawMessage `json:"document"`
}

// FileService stores documents as JSON blobs in a directory, one file per
// user and document type. Pointing two devices at a shared directory gives
// them a common server copy.
type FileService struct {
	dir string
	mu  sync.RWMutex
}

var _ ProgressService = (*FileService)(nil)

// NewFileService creates a blob store rooted at dir.
func NewFileService(dir string) *FileService {
	return &FileService{dir: dir}
}

func (s *FileService) blobPath(kind, userID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(userID)
	return filepath.Join(s.dir, kind, safe+".json")
}

// read loads a blob. A missing file means the document does not exist.
func (s *FileService) read(kind, userID string, v any) (bool, error) {
	s.mu.RLock()
	data, err := os.ReadFile(s.blobPath(kind, userID))
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: read %s blob: %v", ErrNetworkUnavailable, kind, err)
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return false, fmt.Errorf("%w: %s blob: %v", models.ErrInvalidDocument, kind, err)
	}
	if b.Version != blobVersion {
		return false, fmt.Errorf("%w: %s blob version %d", models.ErrInvalidDocument, kind, b.Version)
	}
	if err := json.Unmarshal(b.Document, v); err != nil {
		return false, fmt.Errorf("%w: %s document: %v", models.ErrInvalidDocument, kind, err)
	}
	return true, nil
}

// write stores a blob atomically: write to a temp file, then rename.
func (s *FileService) write(kind, userID string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	data, err := json.MarshalIndent(blob{Version: blobVersion, Document: doc}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s blob: %w", kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.blobPath(kind, userID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPushFailed, kind, err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPushFailed, kind, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPushFailed, kind, err)
	}
	return nil
}

// FetchProgress returns the stored progress for userID.
func (s *FileService) FetchProgress(ctx context.Context, userID string) (*models.ProgressDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc models.ProgressDocument
	found, err := s.read("progress", userID, &doc)
	if err != nil || !found {
		return nil, err
	}
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// PushProgress replaces the stored progress for userID.
func (s *FileService) PushProgress(ctx context.Context, userID string, doc *models.ProgressDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write("progress", userID, doc)
}

// FetchSettings returns the stored settings for userID.
func (s *FileService) FetchSettings(ctx context.Context, userID string) (*models.SettingsDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc models.SettingsDocument
	found, err := s.read("settings", userID, &doc)
	if err != nil || !found {
		return nil, err
	}
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// PushSettings replaces the stored settings for userID.
func (s *FileService) PushSettings(ctx context.Context, userID string, doc *models.SettingsDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write("settings", userID, doc)
}

// Ping succeeds when the blob directory exists or can be created.
func (s *FileService) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	return nil
}
