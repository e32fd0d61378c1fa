package proxy

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/classyid/whatsapp-api-frontend/internal/media"
)

// UploadStore keeps uploaded files on disk for the duration of one request.
type UploadStore struct {
	dir string
}

func NewUploadStore(dir string) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &UploadStore{dir: dir}, nil
}

// Upload is one stored file. Name is the sanitized client filename; Path is
// the temp file, named by uuid.
type Upload struct {
	Name string
	Path string
	Size int64
}

// Save streams r into a new temp file. At most limit+1 bytes are written, so
// an oversized file is detected without being stored whole.
func (s *UploadStore) Save(name string, r io.Reader, limit int64) (*Upload, error) {
	clean := SanitizeFilename(name)
	path := filepath.Join(s.dir, uuid.NewString()+filepath.Ext(clean))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	n, copyErr := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	return &Upload{Name: clean, Path: path, Size: n}, nil
}

func (u *Upload) Open() (*os.File, error) {
	return os.Open(u.Path)
}

// Remove deletes the temp file. Removing twice, or a nil upload, is fine.
func (u *Upload) Remove() error {
	if u == nil {
		return nil
	}
	if err := os.Remove(u.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// SanitizeFilename reduces a client supplied name to a safe base name made of
// letters, digits, dot, dash and underscore.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	clean := strings.TrimLeft(b.String(), "._")

	// The extension drives validation upstream, so it must survive.
	ext := media.Extension(name)
	if clean == "" || media.Extension(clean) != ext {
		if ext == "" {
			return "file"
		}
		return "file." + ext
	}
	return clean
}
