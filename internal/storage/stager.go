package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	apperrors "go-vehicle-counter/internal/errors"
	"go-vehicle-counter/internal/logger"
	"go-vehicle-counter/internal/repository"

	"github.com/sirupsen/logrus"
)

// StagedImage is a source image copied into the data directory
type StagedImage struct {
	Slot         repository.Slot
	OriginalPath string
	StagedPath   string
	// Extension is the source extension without the dot, case preserved
	Extension string
}

// Stager copies source images into their slot in the workspace
type Stager struct {
	workspace repository.Workspace
	sources   map[string]Source
}

// NewStager creates a stager over workspace. A local file source is always
// registered; additional sources override by scheme.
func NewStager(workspace repository.Workspace, sources ...Source) *Stager {
	s := &Stager{
		workspace: workspace,
		sources:   map[string]Source{SchemeFile: NewFileSource()},
	}
	for _, src := range sources {
		if src != nil {
			s.sources[src.Scheme()] = src
		}
	}
	return s
}

// Supports reports whether ref can be staged by a registered source
func (s *Stager) Supports(ref string) bool {
	_, ok := s.sources[SchemeOf(ref)]
	return ok
}

// Check resolves where ref would be staged in slot without touching the
// workspace or the source. It fails on the same slot, scheme and extension
// problems that Stage does.
func (s *Stager) Check(ref string, slot repository.Slot) (string, error) {
	if !slot.Valid() {
		return "", apperrors.NewValidationError("invalid staging slot", repository.ErrInvalidSlot).WithDetails(string(slot))
	}
	if _, ok := s.sources[SchemeOf(ref)]; !ok {
		return "", apperrors.NewValidationError("unsupported image source", ErrUnsupportedScheme).WithDetails(ref)
	}
	dest, err := s.workspace.StagedPath(slot, ExtensionOf(ref))
	if err != nil {
		return "", apperrors.NewValidationError("source has no usable file extension", err).WithDetails(ref)
	}
	return dest, nil
}

// Stage copies ref to <data dir>/<slot>.<ext>, replacing whatever the slot
// held before. The source is never modified.
func (s *Stager) Stage(ctx context.Context, ref string, slot repository.Slot) (*StagedImage, error) {
	dest, err := s.Check(ref, slot)
	if err != nil {
		return nil, err
	}
	src := s.sources[SchemeOf(ref)]
	ext := ExtensionOf(ref)

	if err := s.workspace.Ensure(); err != nil {
		return nil, apperrors.NewIOError("data directory unavailable", err)
	}

	rc, err := src.Open(ctx, ref)
	if err != nil {
		return nil, classifyOpenError(src.Scheme(), err).WithDetails(ref)
	}
	defer rc.Close()

	if err := copyAtomic(s.workspace.Root(), dest, rc); err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewTimeoutError("staging interrupted", ctx.Err())
		}
		return nil, apperrors.NewIOError("failed to stage image", err).WithDetails(ref)
	}

	s.removeSiblings(slot, dest)

	logger.WithFields(logrus.Fields{
		"slot":   slot,
		"source": ref,
		"staged": dest,
		"stage":  "staging",
	}).Debug("Staged source image")

	return &StagedImage{
		Slot:         slot,
		OriginalPath: ref,
		StagedPath:   dest,
		Extension:    ext,
	}, nil
}

// removeSiblings deletes copies of slot with other extensions so the slot
// holds exactly one file.
func (s *Stager) removeSiblings(slot repository.Slot, keep string) {
	siblings, err := s.workspace.StagedSiblings(slot)
	if err != nil {
		logger.WithError(err).Warn("Failed to list staged siblings")
		return
	}
	for _, p := range siblings {
		if filepath.Clean(p) == filepath.Clean(keep) {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).WithField("path", p).Warn("Failed to remove stale staged copy")
		}
	}
}

func classifyOpenError(scheme string, err error) *apperrors.AppError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("source download timed out", err)
	case errors.Is(err, context.Canceled):
		return apperrors.NewTimeoutError("staging cancelled", err)
	case scheme == SchemeFile && errors.Is(err, os.ErrNotExist):
		return apperrors.NewNotFoundError("source image not found", err)
	case scheme == SchemeFile:
		return apperrors.NewIOError("failed to read source image", err)
	}
	return apperrors.NewNetworkError(fmt.Sprintf("failed to fetch %s source", scheme), err)
}

// copyAtomic streams r into a temp file in dir and renames it over dest
func copyAtomic(dir, dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}
