package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go-vehicle-counter/pkg/validation"
)

// Source schemes
const (
	SchemeFile   = "file"
	SchemeHTTP   = "http"
	SchemeAzBlob = "azblob"
)

// ErrUnsupportedScheme is returned when no source handles a reference
var ErrUnsupportedScheme = errors.New("unsupported source scheme")

// Source opens the byte stream behind a source reference
type Source interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Scheme() string
}

// SchemeOf classifies a source reference. Anything that is not a URL with
// an explicit scheme is a local path.
func SchemeOf(ref string) string {
	if !strings.Contains(ref, "://") {
		return SchemeFile
	}
	u, err := url.Parse(ref)
	if err != nil {
		return SchemeFile
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return SchemeHTTP
	case "azblob":
		return SchemeAzBlob
	case "file":
		return SchemeFile
	}
	return strings.ToLower(u.Scheme)
}

// ExtensionOf returns the extension of the referenced file without the
// leading dot, case preserved.
func ExtensionOf(ref string) string {
	p := ref
	if SchemeOf(ref) != SchemeFile || validation.IsFileURL(ref) {
		if u, err := url.Parse(ref); err == nil {
			p = path.Base(u.Path)
		}
	} else {
		p = filepath.Base(ref)
	}
	return strings.TrimPrefix(path.Ext(p), ".")
}

// FileSource reads local files
type FileSource struct{}

// NewFileSource creates a local file source
func NewFileSource() Source {
	return &FileSource{}
}

func (s *FileSource) Scheme() string { return SchemeFile }

// Open opens a regular file; directories are rejected
func (s *FileSource) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	p := validation.LocalPath(ref)
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	return os.Open(p)
}
