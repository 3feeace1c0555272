package media

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStorage struct {
	saved   map[string]string
	removed []string
}

func newStubStorage() *stubStorage {
	return &stubStorage{saved: make(map[string]string)}
}

func (s *stubStorage) List() ([]*File, error) { return nil, nil }

func (s *stubStorage) Save(storedName string, content io.Reader) (int64, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return 0, err
	}
	s.saved[storedName] = string(data)
	return int64(len(data)), nil
}

func (s *stubStorage) Remove(storedName string) error {
	if _, ok := s.saved[storedName]; !ok {
		return ErrNotFound
	}
	delete(s.saved, storedName)
	s.removed = append(s.removed, storedName)
	return nil
}

func (s *stubStorage) Open(storedName string) (*File, io.ReadSeekCloser, error) {
	data, ok := s.saved[storedName]
	if !ok {
		return nil, nil, ErrNotFound
	}
	return &File{StoredName: storedName}, nopSeekCloser{strings.NewReader(data)}, nil
}

type nopSeekCloser struct{ *strings.Reader }

func (nopSeekCloser) Close() error { return nil }

func newTestService(storage Storage) *Service {
	return NewService(storage, NewExtensionSet(DefaultExtensions), 1024)
}

func TestUploadRoundTrip(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	file, err := svc.Upload(&UploadRequest{
		Name:    "clip.mp4",
		Size:    4,
		Content: strings.NewReader("data"),
	})
	require.NoError(t, err)

	assert.Equal(t, "clip.mp4", file.Name)
	assert.Equal(t, "clip.mp4", DecodeName(file.StoredName))
	assert.Equal(t, int64(4), file.Size)
	assert.Equal(t, "video/mp4", file.MimeType)
	assert.Contains(t, storage.saved, file.StoredName)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	_, err := svc.Upload(&UploadRequest{Name: "doc.exe", Size: 4, Content: strings.NewReader("data")})

	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Empty(t, storage.saved, "rejected upload must not reach storage")
}

func TestUploadRejectsTooLarge(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	_, err := svc.Upload(&UploadRequest{Name: "clip.mp4", Size: 2048, Content: strings.NewReader("data")})

	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Empty(t, storage.saved, "rejected upload must not reach storage")
}

func TestUploadStripsClientPath(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	file, err := svc.Upload(&UploadRequest{
		Name:    "dir/sub/clip.mp4",
		Size:    4,
		Content: strings.NewReader("data"),
	})
	require.NoError(t, err)

	assert.Equal(t, "clip.mp4", file.Name)
	assert.NoError(t, ValidateName(file.StoredName))
}

func TestUploadIdentityUniqueness(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	first, err := svc.Upload(&UploadRequest{Name: "clip.mp4", Size: 1, Content: strings.NewReader("a")})
	require.NoError(t, err)
	second, err := svc.Upload(&UploadRequest{Name: "clip.mp4", Size: 1, Content: strings.NewReader("b")})
	require.NoError(t, err)

	assert.NotEqual(t, first.StoredName, second.StoredName)

	// Deleting one leaves the other intact.
	require.NoError(t, svc.Delete(first.StoredName))

	_, content, err := svc.Open(second.StoredName)
	require.NoError(t, err)
	content.Close()
}

func TestDeleteGuards(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	assert.ErrorIs(t, svc.Delete("../../etc/passwd"), ErrUnsafeName)
	// Names outside the allow-list are invisible, present or not.
	assert.ErrorIs(t, svc.Delete("secrets.txt"), ErrNotFound)
	assert.ErrorIs(t, svc.Delete("1700000000000-clip.mp4"), ErrNotFound)
}

func TestDeleteFinality(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	file, err := svc.Upload(&UploadRequest{Name: "clip.mp4", Size: 4, Content: strings.NewReader("data")})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(file.StoredName))
	assert.ErrorIs(t, svc.Delete(file.StoredName), ErrNotFound)

	_, _, err = svc.Open(file.StoredName)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenGuards(t *testing.T) {
	storage := newStubStorage()
	svc := newTestService(storage)

	_, _, err := svc.Open(`..\..\secret.mp4`)
	assert.ErrorIs(t, err, ErrUnsafeName)

	_, _, err = svc.Open("notes.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}
