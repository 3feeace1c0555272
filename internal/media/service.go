package media

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// Service provides application-level media operations: it applies the
// upload guards and funnels every client-supplied name through the
// sanitizer before storage sees it.
type Service struct {
	storage Storage
	namer   *Namer
	exts    ExtensionSet
	maxSize int64
}

// NewService creates a new media service.
func NewService(storage Storage, exts ExtensionSet, maxSize int64) *Service {
	return &Service{
		storage: storage,
		namer:   NewNamer(),
		exts:    exts,
		maxSize: maxSize,
	}
}

// UploadRequest represents a single-file upload.
type UploadRequest struct {
	Name    string
	Size    int64
	Content io.Reader
}

// Upload validates and stores a file, returning its derived metadata.
// Both guards run before anything touches the filesystem.
func (s *Service) Upload(req *UploadRequest) (*File, error) {
	if req.Size > s.maxSize {
		return nil, fmt.Errorf("%w: limit is %s", ErrTooLarge, humanize.IBytes(uint64(s.maxSize)))
	}
	if !s.exts.Allowed(req.Name) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(req.Name))
	}

	// The display name is opaque payload inside the stored name; strip
	// any path the client sent so it cannot carry separators.
	displayName := filepath.Base(req.Name)

	storedName := s.namer.Encode(displayName)
	size, err := s.storage.Save(storedName, req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	createdAt, _ := NameTime(storedName)
	return &File{
		StoredName: storedName,
		Name:       displayName,
		Size:       size,
		MimeType:   s.exts.TypeOf(storedName),
		CreatedAt:  createdAt,
	}, nil
}

// List returns all stored files, newest first.
func (s *Service) List() ([]*File, error) {
	return s.storage.List()
}

// Delete removes a stored file by its stored name. Deleting an absent
// file reports ErrNotFound rather than succeeding.
func (s *Service) Delete(storedName string) error {
	if err := s.lookupable(storedName); err != nil {
		return err
	}
	return s.storage.Remove(storedName)
}

// Open resolves a stored file for streaming.
func (s *Service) Open(storedName string) (*File, io.ReadSeekCloser, error) {
	if err := s.lookupable(storedName); err != nil {
		return nil, nil, err
	}
	return s.storage.Open(storedName)
}

// lookupable guards every client-supplied stored name: unsafe names
// are rejected, and entries outside the extension allow-list stay
// invisible even when present on disk.
func (s *Service) lookupable(storedName string) error {
	if err := ValidateName(storedName); err != nil {
		return err
	}
	if !s.exts.Allowed(storedName) {
		return ErrNotFound
	}
	return nil
}
