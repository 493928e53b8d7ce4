package validation

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	apperrors "go-vehicle-counter/internal/errors"
)

// PathValidator applies the selection rule for local files: the path must
// exist and must not be a directory.
type PathValidator struct{}

// NewPathValidator creates a path validator
func NewPathValidator() *PathValidator {
	return &PathValidator{}
}

// ValidatePath validates a local source path
func (v *PathValidator) ValidatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return apperrors.NewValidationError("path cannot be empty", nil)
	}

	p = LocalPath(p)
	info, err := os.Stat(p)
	if err != nil {
		return apperrors.NewValidationError("path does not exist", err).WithDetails(p)
	}
	if info.IsDir() {
		return apperrors.NewValidationError("path is a directory", nil).WithDetails(p)
	}
	return nil
}

// SourceValidator routes a source reference to the path or URL rules
type SourceValidator struct {
	paths *PathValidator
	urls  *URLValidator
}

// NewSourceValidator creates a validator with default path and URL rules
func NewSourceValidator() *SourceValidator {
	return NewSourceValidatorWithURLs(NewURLValidator())
}

// NewSourceValidatorWithURLs creates a validator with custom URL rules
func NewSourceValidatorWithURLs(urls *URLValidator) *SourceValidator {
	return &SourceValidator{
		paths: NewPathValidator(),
		urls:  urls,
	}
}

// ValidateSource validates a local path or remote reference
func (v *SourceValidator) ValidateSource(ref string) error {
	if IsRemote(ref) {
		return v.urls.ValidateImageURL(ref)
	}
	return v.paths.ValidatePath(ref)
}

// IsRemote reports whether ref names something other than a local file
func IsRemote(ref string) bool {
	i := strings.Index(ref, "://")
	return i > 0 && !strings.EqualFold(ref[:i], "file")
}

// IsFileURL reports whether ref carries an explicit file:// scheme
func IsFileURL(ref string) bool {
	return len(ref) >= len("file://") && strings.EqualFold(ref[:len("file://")], "file://")
}

// LocalPath turns a local source reference into a filesystem path. file://
// URLs are percent-decoded; plain paths are returned unchanged.
func LocalPath(ref string) string {
	if IsFileURL(ref) {
		if u, err := url.Parse(ref); err == nil {
			return filepath.FromSlash(u.Path)
		}
	}
	return ref
}
