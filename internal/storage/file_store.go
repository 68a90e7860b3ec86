package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ArtifactSuffix is appended to every generated audio file name.
const ArtifactSuffix = "_response.mp3"

var (
	artifactName = regexp.MustCompile(`^[0-9a-f]{32}_response\.mp3$`)
	tempName     = regexp.MustCompile(`^[0-9a-f]{32}_response\.mp3\.tmp$`)
)

// Artifact describes a synthesized reply stored on disk.
type Artifact struct {
	Name      string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// IsArtifactName reports whether name looks like a file written by FileStore.
// Anything else in the output directory is never served or swept.
func IsArtifactName(name string) bool {
	return artifactName.MatchString(name)
}

// FileStore writes reply audio into a single output directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the output directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &FileStore{dir: abs}, nil
}

// Dir returns the absolute output directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes data under a fresh unique name. The file only appears under its
// final name once fully written.
func (s *FileStore) Save(ctx context.Context, data []byte) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}

	id := uuid.New()
	name := hex.EncodeToString(id[:]) + ArtifactSuffix
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return Artifact{}, fmt.Errorf("failed to write audio: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Artifact{}, fmt.Errorf("failed to finalize audio: %w", err)
	}

	return Artifact{
		Name:      name,
		Path:      path,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}, nil
}

// Lookup resolves an artifact name to its path. Names that do not match the
// artifact pattern are rejected without touching the filesystem.
func (s *FileStore) Lookup(name string) (string, bool) {
	if !IsArtifactName(name) {
		return "", false
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// List returns every artifact currently in the output directory.
func (s *FileStore) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output dir: %w", err)
	}

	var artifacts []Artifact
	for _, e := range entries {
		if e.IsDir() || !IsArtifactName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name:      e.Name(),
			Path:      filepath.Join(s.dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	return artifacts, nil
}

// Remove deletes an artifact by name.
func (s *FileStore) Remove(name string) error {
	if !IsArtifactName(name) {
		return fmt.Errorf("not an artifact: %q", name)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveStaleTemps deletes partial writes last modified before cutoff.
// They are only left behind when the process dies between write and rename.
func (s *FileStore) RemoveStaleTemps(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read output dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !tempName.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Ping checks that the output directory is still writable.
func (s *FileStore) Ping(ctx context.Context) error {
	f, err := os.CreateTemp(s.dir, ".ping-*")
	if err != nil {
		return fmt.Errorf("output dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
