package repository

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDirWorkspace_EnsureCreatesParents(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b", "data")
	ws := NewDirWorkspace(root)

	if err := ws.Ensure(); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Fatalf("Expected %s to be a directory", root)
	}

	// Second call is a no-op
	if err := ws.Ensure(); err != nil {
		t.Errorf("Second Ensure failed: %v", err)
	}
}

func TestDirWorkspace_EnsureRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := NewDirWorkspace(file).Ensure()
	if !errors.Is(err, ErrWorkspaceUnavailable) {
		t.Errorf("Expected ErrWorkspaceUnavailable, got %v", err)
	}
}

func TestDirWorkspace_StagedPath(t *testing.T) {
	root := t.TempDir()
	ws := NewDirWorkspace(root)

	tests := []struct {
		name    string
		slot    Slot
		ext     string
		want    string
		wantErr error
	}{
		{"first jpg", SlotFirst, "jpg", filepath.Join(root, "first.jpg"), nil},
		{"second png", SlotSecond, "png", filepath.Join(root, "second.png"), nil},
		{"single keeps case", SlotSingle, "JPG", filepath.Join(root, "single.JPG"), nil},
		{"unknown slot", Slot("third"), "jpg", "", ErrInvalidSlot},
		{"empty ext", SlotFirst, "", "", ErrInvalidExtension},
		{"traversal ext", SlotFirst, "../x", "", ErrInvalidExtension},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ws.StagedPath(tt.slot, tt.ext)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDirWorkspace_StagedSiblings(t *testing.T) {
	root := t.TempDir()
	ws := NewDirWorkspace(root)
	for _, name := range []string{"first.jpg", "first.png", "second.jpg", ".first.tmp-1"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := ws.StagedSiblings(SlotFirst)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Expected 2 staged files for slot first, got %v", files)
	}
}

func TestDirWorkspace_OutputDir(t *testing.T) {
	root := t.TempDir()
	ws := NewDirWorkspace(root)

	dir, err := ws.OutputDir("diff_connect")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if dir != filepath.Join(root, "diff_connect") {
		t.Errorf("Unexpected output dir %s", dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Error("Expected output dir to be created")
	}

	if _, err := ws.OutputDir("../escape"); !errors.Is(err, ErrInvalidOutputKind) {
		t.Errorf("Expected ErrInvalidOutputKind, got %v", err)
	}
}

func TestDirWorkspace_AssetPath(t *testing.T) {
	ws := NewDirWorkspace("/data")
	if got := ws.AssetPath("../../cars.xml"); got != filepath.Join("/data", "cars.xml") {
		t.Errorf("Expected asset path inside root, got %s", got)
	}
}
