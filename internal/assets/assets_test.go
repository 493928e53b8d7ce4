package assets

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	apperrors "go-vehicle-counter/internal/errors"
)

func TestBundled_Cascade(t *testing.T) {
	data, err := Bundled(Cascade)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !bytes.Contains(data, []byte("<cascade>")) {
		t.Error("Expected bundled cascade to be an OpenCV cascade document")
	}

	if _, err := Bundled(Asset{Name: "nope", FileName: "nope.xml"}); err == nil {
		t.Error("Expected error for unknown asset")
	}
}

func TestEnsure_CreatesMissingDirAndAsset(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "data")
	p := NewProvisioner(Cascade)

	path, err := p.Ensure(dataDir)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if path != filepath.Join(dataDir, "cars.xml") {
		t.Errorf("Unexpected asset path %s", path)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected asset on disk: %v", err)
	}
	want, _ := Bundled(Cascade)
	if !bytes.Equal(got, want) {
		t.Error("Installed asset differs from bundled bytes")
	}
}

func TestEnsure_Idempotent(t *testing.T) {
	dataDir := t.TempDir()
	p := NewProvisioner(Cascade)

	first, err := p.Ensure(dataDir)
	if err != nil {
		t.Fatalf("First Ensure failed: %v", err)
	}
	before, _ := os.ReadFile(first)

	second, err := p.Ensure(dataDir)
	if err != nil {
		t.Fatalf("Second Ensure failed: %v", err)
	}
	after, _ := os.ReadFile(second)

	if first != second {
		t.Errorf("Expected same path, got %s and %s", first, second)
	}
	if !bytes.Equal(before, after) {
		t.Error("Expected byte-identical asset after second Ensure")
	}

	entries, _ := os.ReadDir(dataDir)
	if len(entries) != 1 {
		t.Errorf("Expected only the asset in the data dir, got %d entries", len(entries))
	}
}

func TestEnsure_NeverRewritesExistingAsset(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "cars.xml")
	custom := []byte("<opencv_storage/>")
	if err := os.WriteFile(path, custom, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewProvisioner(Cascade).Ensure(dataDir); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, custom) {
		t.Error("Existing asset must not be rewritten")
	}
}

func TestEnsure_DataDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewProvisioner(Cascade).Ensure(file)
	if !apperrors.IsType(err, apperrors.ErrorTypeIO) {
		t.Errorf("Expected io error, got %v", err)
	}
}

func TestEnsure_InstallsFromSourceFile(t *testing.T) {
	trained := filepath.Join(t.TempDir(), "trained.xml")
	content := []byte("<opencv_storage><cascade/></opencv_storage>")
	if err := os.WriteFile(trained, content, 0o644); err != nil {
		t.Fatal(err)
	}

	dataDir := t.TempDir()
	path, err := NewProvisioner(Cascade, WithSourceFile(trained)).Ensure(dataDir)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if path != filepath.Join(dataDir, "cars.xml") {
		t.Errorf("Unexpected asset path %s", path)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, content) {
		t.Error("Expected asset copied from the source file")
	}
}

func TestEnsure_MissingSourceFile(t *testing.T) {
	dataDir := t.TempDir()
	_, err := NewProvisioner(Cascade, WithSourceFile(filepath.Join(dataDir, "absent.xml"))).Ensure(dataDir)
	if !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not found error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dataDir, "cars.xml")); !os.IsNotExist(statErr) {
		t.Error("Expected no asset installed when the source is missing")
	}
}
