package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	extPattern  = regexp.MustCompile(`^[A-Za-z0-9]{1,10}$`)
	kindPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)
)

// DirWorkspace implements Workspace on a local directory
type DirWorkspace struct {
	root string
}

// NewDirWorkspace creates a workspace rooted at dataDir. The directory is
// not touched until Ensure or OutputDir is called.
func NewDirWorkspace(dataDir string) Workspace {
	return &DirWorkspace{
		root: filepath.Clean(dataDir),
	}
}

// Root returns the data directory path
func (w *DirWorkspace) Root() string {
	return w.root
}

// Ensure creates the data directory if it does not exist
func (w *DirWorkspace) Ensure() error {
	info, err := os.Stat(w.root)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrWorkspaceUnavailable, w.root)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrWorkspaceUnavailable, err)
	}
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWorkspaceUnavailable, err)
	}
	return nil
}

// StagedPath returns <root>/<slot>.<ext>
func (w *DirWorkspace) StagedPath(slot Slot, ext string) (string, error) {
	if !slot.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	if !extPattern.MatchString(ext) {
		return "", fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
	}
	return filepath.Join(w.root, string(slot)+"."+ext), nil
}

// StagedSiblings lists <root>/<slot>.* files
func (w *DirWorkspace) StagedSiblings(slot Slot) ([]string, error) {
	if !slot.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	matches, err := filepath.Glob(filepath.Join(w.root, string(slot)+".*"))
	if err != nil {
		return nil, err
	}
	files := matches[:0]
	for _, m := range matches {
		// temp files from an interrupted copy start with a dot and never match
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			files = append(files, m)
		}
	}
	return files, nil
}

// OutputDir returns <root>/<kind>, creating it when missing
func (w *DirWorkspace) OutputDir(kind string) (string, error) {
	kind = strings.TrimSpace(kind)
	if !kindPattern.MatchString(kind) {
		return "", fmt.Errorf("%w: %q", ErrInvalidOutputKind, kind)
	}
	dir := filepath.Join(w.root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWorkspaceUnavailable, err)
	}
	return dir, nil
}

// AssetPath returns <root>/<fileName>
func (w *DirWorkspace) AssetPath(fileName string) string {
	return filepath.Join(w.root, filepath.Base(fileName))
}
