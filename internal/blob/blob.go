// Package blob archives raw source payloads on the local file system, one
// directory per owner. The archive keeps the original bytes of everything
// that was ever ingested, so parsed documents can always be traced back to
// their source.
package blob

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/mimir/internal/checksum"
)

// Info describes one archived blob.
type Info struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	SavedAt time.Time `json:"saved_at"`
}

// Store is the archive contract.
type Store interface {
	// Save writes content under the owner's directory and returns the
	// blob key. Saving identical content under the same name is a no-op
	// that returns the same key.
	Save(ownerID, name string, content []byte) (string, error)
	// Read returns the raw bytes of one blob.
	Read(ownerID, key string) ([]byte, error)
	// List returns the owner's blobs sorted by key.
	List(ownerID string) ([]Info, error)
	// Delete removes one blob.
	Delete(ownerID, key string) error
	// DeleteOwner removes the owner's entire directory.
	DeleteOwner(ownerID string) error
}

// FS implements Store backed by the local file system.
type FS struct {
	root string // absolute path to the archive directory
}

var _ Store = (*FS)(nil)

// NewFS creates an FS store rooted at the given directory, creating it when
// missing.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blob: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Save stores content as <owner>/<checksum prefix>-<name>. The checksum
// prefix keeps distinct payloads under the same file name apart.
func (f *FS) Save(ownerID, name string, content []byte) (string, error) {
	key := checksum.Short(content) + "-" + sanitizeName(name)
	abs, err := f.safePath(ownerID, key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err == nil {
		return key, nil
	}
	if err := f.writeAtomic(abs, content); err != nil {
		return "", err
	}
	return key, nil
}

// Read returns the raw bytes of one blob.
func (f *FS) Read(ownerID, key string) ([]byte, error) {
	abs, err := f.safePath(ownerID, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", key, err)
	}
	return data, nil
}

// List returns the owner's blobs sorted by key. An owner with no directory
// simply has no blobs.
func (f *FS) List(ownerID string) ([]Info, error) {
	base, err := f.safePath(ownerID, "")
	if err != nil {
		return nil, err
	}
	var out []Info
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return filepath.SkipAll
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Info{Key: d.Name(), Size: info.Size(), SavedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blob: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes one blob.
func (f *FS) Delete(ownerID, key string) error {
	abs, err := f.safePath(ownerID, key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("blob: delete %s: %w", key, err)
	}
	return nil
}

// DeleteOwner removes the owner's entire directory.
func (f *FS) DeleteOwner(ownerID string) error {
	base, err := f.safePath(ownerID, "")
	if err != nil {
		return err
	}
	if base == f.root {
		return fmt.Errorf("blob: refusing to delete archive root")
	}
	if err := os.RemoveAll(base); err != nil {
		return fmt.Errorf("blob: delete owner: %w", err)
	}
	return nil
}

// safePath resolves <owner>/<key> against the archive root and rejects any
// result that escapes it (directory traversal).
func (f *FS) safePath(ownerID, key string) (string, error) {
	if ownerID == "" || strings.ContainsAny(ownerID, `/\`) || ownerID == "." || ownerID == ".." {
		return "", fmt.Errorf("blob: invalid owner id: %q", ownerID)
	}
	// Keys this store hands out are single segments, so anything with
	// separators names a blob that cannot exist.
	if key != "" && (strings.ContainsAny(key, `/\`) || key == "." || key == "..") {
		return "", fmt.Errorf("blob: invalid key %q: %w", key, fs.ErrNotExist)
	}
	rel := ownerID
	if key != "" {
		rel = filepath.Join(ownerID, key)
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("blob: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("blob: resolve path: %w", err)
	}
	// Ensure the resolved path is still under root.
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("blob: path escapes archive root: %s", rel)
	}
	return abs, nil
}

// writeAtomic writes content: tmp file, fsync, rename.
func (f *FS) writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("blob: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".mimir-tmp-*")
	if err != nil {
		return fmt.Errorf("blob: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("blob: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("blob: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("blob: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("blob: rename: %w", err)
	}
	success = true
	return nil
}

// sanitizeName flattens a client-supplied file name into a single safe path
// segment.
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, `/`))
	if name == "." || name == ".." || name == "/" || name == "" {
		return "source"
	}
	return name
}
