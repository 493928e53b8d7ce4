package validation

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	apperrors "go-vehicle-counter/internal/errors"
)

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "before.jpg")
	if err := os.WriteFile(file, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	validator := NewPathValidator()

	if err := validator.ValidatePath(file); err != nil {
		t.Errorf("Expected existing file to pass validation, got: %v", err)
	}
	if err := validator.ValidatePath("file://" + file); err != nil {
		t.Errorf("Expected file URL to pass validation, got: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		message string
	}{
		{"empty", "", "path cannot be empty"},
		{"missing", filepath.Join(dir, "after.jpg"), "path does not exist"},
		{"directory", dir, "path is a directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidatePath(tt.path)
			appErr, ok := apperrors.As(err)
			if !ok {
				t.Fatalf("Expected AppError, got %v", err)
			}
			if appErr.Type != apperrors.ErrorTypeValidation {
				t.Errorf("Expected validation error, got %s", appErr.Type)
			}
			if appErr.Message != tt.message {
				t.Errorf("Expected '%s', got '%s'", tt.message, appErr.Message)
			}
		})
	}
}

func TestValidateSource_Routing(t *testing.T) {
	validator := NewSourceValidator()

	if err := validator.ValidateSource("https://example.com/lot.jpg"); err != nil {
		t.Errorf("Expected remote reference to pass without touching the filesystem, got: %v", err)
	}
	if err := validator.ValidateSource("/definitely/not/here.jpg"); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error for missing local path, got: %v", err)
	}
	if err := validator.ValidateSource("ftp://example.com/lot.jpg"); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error for ftp reference, got: %v", err)
	}
}

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"/tmp/a.jpg":               false,
		`C:\images\a.jpg`:          false,
		"file:///tmp/a.jpg":        false,
		"FILE:///tmp/a.jpg":        false,
		"http://example.com/a.jpg": true,
		"azblob://c/a.jpg":         true,
		"://broken":                false,
	}
	for ref, want := range tests {
		if got := IsRemote(ref); got != want {
			t.Errorf("IsRemote(%q) = %v, expected %v", ref, got, want)
		}
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"/tmp/a.png", "/tmp/a.png"},
		{"relative/a.png", "relative/a.png"},
		{"file:///tmp/a.png", "/tmp/a.png"},
		{"FILE:///tmp/a.png", "/tmp/a.png"},
		{"File:///tmp/a%20b.png", "/tmp/a b.png"},
		{"file://localhost/tmp/a.png", "/tmp/a.png"},
	}
	for _, tt := range tests {
		if got := LocalPath(tt.ref); got != filepath.FromSlash(tt.want) {
			t.Errorf("LocalPath(%q): expected %q, got %q", tt.ref, filepath.FromSlash(tt.want), got)
		}
	}
}

func TestValidatePath_FileURLForms(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "lot a.jpg")
	if err := os.WriteFile(file, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	encoded := (&url.URL{Scheme: "file", Path: filepath.ToSlash(file)}).String()

	validator := NewPathValidator()
	for _, ref := range []string{encoded, "FILE://" + encoded[len("file://"):]} {
		if err := validator.ValidatePath(ref); err != nil {
			t.Errorf("Expected %s to pass validation, got: %v", ref, err)
		}
	}
}
