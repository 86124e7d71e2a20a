// Package storage is the upload/export file collaborator. It owns path
// construction under the storage root and guarantees that every stored path
// is trip-scoped and sanitized; the validator and snapshot store trust
// paths produced here.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/smallbiznis/travelmate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrUnsafePath = errors.New("unsafe_path")

var (
	identifierPattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	filenamePattern   = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// SanitizeIdentifier strips anything outside [A-Za-z0-9_-] from a path
// segment.
func SanitizeIdentifier(value string) string {
	safe := identifierPattern.ReplaceAllString(value, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "trip"
	}
	return safe
}

// SanitizeFilename reduces a declared filename to its base name and strips
// unsafe characters, defeating path-traversal sequences.
func SanitizeFilename(value string) string {
	value = filepath.Base(strings.ReplaceAll(value, "\\", "/"))
	safe := filenamePattern.ReplaceAllString(value, "_")
	if safe == "" || safe == "." || safe == ".." {
		return "upload.bin"
	}
	return safe
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

// Store reads and writes artifacts below a single root:
// <root>/uploads/<trip>/<file> and <root>/exports/<trip>/<ts>.json.
type Store struct {
	root string
	log  *zap.Logger
}

func New(p Params) *Store {
	return &Store{
		root: p.Config.StorageRoot,
		log:  p.Log.Named("storage"),
	}
}

// NewAtRoot builds a store over an explicit directory, used by tests.
func NewAtRoot(root string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{root: root, log: log.Named("storage")}
}

func (s *Store) uploadsDir() string { return filepath.Join(s.root, "uploads") }
func (s *Store) exportsDir() string { return filepath.Join(s.root, "exports") }

// UploadPath returns the sanitized trip-scoped destination for a declared
// filename and creates the parent directory. Paths escaping the trip
// directory are rejected.
func (s *Store) UploadPath(tripID, filename string) (string, error) {
	tripDir := filepath.Join(s.uploadsDir(), SanitizeIdentifier(tripID))
	if err := os.MkdirAll(tripDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(tripDir, SanitizeFilename(filename))
	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	base, err := filepath.Abs(tripDir)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(resolved, base+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}
	return path, nil
}

// SaveUpload persists receipt file bytes and returns the stored path.
func (s *Store) SaveUpload(tripID, filename string, content []byte) (string, error) {
	path, err := s.UploadPath(tripID, filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	s.log.Debug("upload stored", zap.String("path", path), zap.Int("bytes", len(content)))
	return path, nil
}

// ReadUpload returns the stored bytes of an upload below the root.
func (s *Store) ReadUpload(path string) ([]byte, error) {
	base, err := filepath.Abs(s.uploadsDir())
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(resolved, base+string(filepath.Separator)) {
		return nil, ErrUnsafePath
	}
	return os.ReadFile(resolved)
}

// WriteSnapshot writes an export payload with O_EXCL so an existing snapshot
// file can never be overwritten.
func (s *Store) WriteSnapshot(tripID, name string, payload []byte) (string, error) {
	tripDir := filepath.Join(s.exportsDir(), SanitizeIdentifier(tripID))
	if err := os.MkdirAll(tripDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(tripDir, SanitizeFilename(name))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.Write(payload); err != nil {
		return "", err
	}
	return path, nil
}

// ReadSnapshot returns the frozen bytes of a snapshot file.
func (s *Store) ReadSnapshot(path string) ([]byte, error) {
	base, err := filepath.Abs(s.exportsDir())
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(resolved, base+string(filepath.Separator)) {
		return nil, ErrUnsafePath
	}
	return os.ReadFile(resolved)
}

// Remove deletes a stored artifact below the root.
func (s *Store) Remove(path string) error {
	base, err := filepath.Abs(s.root)
	if err != nil {
		return err
	}
	resolved, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resolved, base+string(filepath.Separator)) {
		return ErrUnsafePath
	}
	err = os.Remove(resolved)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// PruneUploads removes uploaded files modified before the cutoff and
// returns the deleted paths.
func (s *Store) PruneUploads(cutoff time.Time) ([]string, error) {
	root := s.uploadsDir()
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var deleted []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if info.ModTime().UTC().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("prune %s: %w", path, err)
			}
			deleted = append(deleted, path)
		}
		return nil
	})
	if err != nil {
		return deleted, err
	}
	return deleted, nil
}

var Module = fx.Module("storage",
	fx.Provide(New),
)
