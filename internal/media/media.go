package media

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// File represents the metadata of a stored media file. Everything here
// is derived from the directory entry itself; nothing is persisted
// separately.
type File struct {
	StoredName string    `json:"filename"`
	Name       string    `json:"originalName"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	CreatedAt  time.Time `json:"uploadDate"`
}

// Storage defines the interface for the physical media storage.
type Storage interface {
	// List returns all stored files, newest first.
	List() ([]*File, error)

	// Save writes the full content to a new file under the root.
	Save(storedName string, content io.Reader) (int64, error)

	// Remove deletes a stored file.
	Remove(storedName string) error

	// Open resolves a stored file for reading.
	Open(storedName string) (*File, io.ReadSeekCloser, error)
}

var (
	ErrNotFound        = errors.New("file not found")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrUnsafeName      = errors.New("invalid filename")
)

// DefaultExtensions is the built-in allow-list of recognized media
// extensions. Files with any other extension are invisible to the API
// even if present on disk.
var DefaultExtensions = []string{".mp4", ".webm", ".ogg", ".mov", ".avi", ".mkv"}

var mimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".ogg":  "video/ogg",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".m4v":  "video/x-m4v",
}

// ExtensionSet is the fixed allow-list of file extensions the service
// recognizes.
type ExtensionSet map[string]struct{}

// NewExtensionSet normalizes a list of extensions into a set. Entries
// are lower-cased and get a leading dot if missing.
func NewExtensionSet(exts []string) ExtensionSet {
	set := make(ExtensionSet, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

// Allowed reports whether the file's extension is on the allow-list.
func (s ExtensionSet) Allowed(name string) bool {
	_, ok := s[strings.ToLower(filepath.Ext(name))]
	return ok
}

// TypeOf returns the MIME type derived from the file's extension.
func (s ExtensionSet) TypeOf(name string) string {
	if mt, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Streamable reports whether a media type supports ranged delivery.
func Streamable(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}
