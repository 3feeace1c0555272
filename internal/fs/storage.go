package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pavel-fokin/media-stash/internal/media"
)

// Storage implements media.Storage on a single local directory. All
// filesystem access for listing, writing and removing files goes
// through here; metadata is derived from the directory entries.
type Storage struct {
	root string
	exts media.ExtensionSet

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStorage creates a storage manager rooted at root.
func NewStorage(root string, exts media.ExtensionSet) *Storage {
	return &Storage{
		root:  root,
		exts:  exts,
		locks: make(map[string]*sync.Mutex),
	}
}

// EnsureRoot creates the storage directory if it does not exist yet.
// The service cannot operate without a writable root.
func (s *Storage) EnsureRoot() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}
	return nil
}

// nameLock serializes write/delete on the same stored name. Reads and
// operations on unrelated names stay fully concurrent.
func (s *Storage) nameLock(storedName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[storedName]
	if !ok {
		l = &sync.Mutex{}
		s.locks[storedName] = l
	}
	return l
}

// List enumerates the directory, derives metadata for every
// allow-listed entry and returns them newest first. The directory is
// re-read on every call so results always reflect the current state.
func (s *Storage) List() ([]*media.File, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage root: %w", err)
	}

	files := make([]*media.File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !s.exts.Allowed(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// The entry can disappear between ReadDir and stat.
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		files = append(files, s.fileInfo(entry.Name(), info))
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})

	return files, nil
}

// Save writes the full content to a new file under the root. The write
// is whole-file; on a failed copy the partial file is removed best
// effort, a process crash can still leave one behind.
func (s *Storage) Save(storedName string, content io.Reader) (int64, error) {
	lock := s.nameLock(storedName)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(s.root, storedName)

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	size, err := io.Copy(file, content)
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to write file content: %w", err)
	}

	return size, nil
}

// Remove deletes a stored file. A second remove of the same name
// reports media.ErrNotFound.
func (s *Storage) Remove(storedName string) error {
	lock := s.nameLock(storedName)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(s.root, storedName)

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return media.ErrNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Open resolves a stored file for reading. The returned handle
// supports arbitrary sub-range reads via Seek; the caller owns it.
func (s *Storage) Open(storedName string) (*media.File, io.ReadSeekCloser, error) {
	path := filepath.Join(s.root, storedName)

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, media.ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return s.fileInfo(storedName, info), file, nil
}

// fileInfo derives file metadata from a directory entry. The creation
// time comes from the stored name's millisecond prefix and falls back
// to the filesystem mtime for names without one.
func (s *Storage) fileInfo(storedName string, info os.FileInfo) *media.File {
	createdAt, ok := media.NameTime(storedName)
	if !ok {
		createdAt = info.ModTime()
	}
	return &media.File{
		StoredName: storedName,
		Name:       media.DecodeName(storedName),
		Size:       info.Size(),
		MimeType:   s.exts.TypeOf(storedName),
		CreatedAt:  createdAt,
	}
}
