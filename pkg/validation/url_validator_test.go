package validation

import (
	"testing"

	apperrors "go-vehicle-counter/internal/errors"
)

func TestNewURLValidator(t *testing.T) {
	validator := NewURLValidator()
	if validator == nil {
		t.Fatal("Expected non-nil URL validator")
	}

	expectedSchemes := []string{"http", "https", "azblob"}
	if len(validator.allowedSchemes) != len(expectedSchemes) {
		t.Errorf("Expected %d schemes, got %d", len(expectedSchemes), len(validator.allowedSchemes))
	}
	for i, scheme := range expectedSchemes {
		if validator.allowedSchemes[i] != scheme {
			t.Errorf("Expected scheme %s, got %s", scheme, validator.allowedSchemes[i])
		}
	}
}

func TestValidateImageURL_ValidURLs(t *testing.T) {
	validator := NewURLValidator()

	validURLs := []string{
		"http://example.com/parking/before.jpg",
		"https://example.com/after.PNG",
		"https://cams.example.com/lot/3/frame.jpeg?sig=abc",
		"http://192.168.1.1/snapshot.bmp",
		"azblob://frames/lot-3/2024/before.jpg",
	}

	for _, u := range validURLs {
		if err := validator.ValidateImageURL(u); err != nil {
			t.Errorf("Expected valid URL %s to pass validation, got error: %v", u, err)
		}
	}
}

func TestValidateImageURL_Rejections(t *testing.T) {
	validator := NewURLValidator()

	tests := []struct {
		url     string
		message string
	}{
		{"", "URL cannot be empty"},
		{"   ", "URL cannot be empty"},
		{"\t\n", "URL cannot be empty"},
		{"ftp://example.com/image.jpg", "URL scheme not allowed"},
		{"data:image/png;base64,iVBORw0KGgo=", "URL scheme not allowed"},
		{"http://", "URL must have a valid host"},
		{"http:///path/image.jpg", "URL must have a valid host"},
		{"azblob:///blob.jpg", "URL must have a valid host"},
		{"https://example.com/", "URL must name a file with an extension"},
		{"https://example.com/latest", "URL must name a file with an extension"},
		{"azblob://frames", "URL must name a file with an extension"},
	}

	for _, tt := range tests {
		err := validator.ValidateImageURL(tt.url)
		if err == nil {
			t.Errorf("Expected URL '%s' to fail validation", tt.url)
			continue
		}
		appErr, ok := apperrors.As(err)
		if !ok {
			t.Errorf("Expected AppError for '%s', got: %T", tt.url, err)
			continue
		}
		if appErr.Type != apperrors.ErrorTypeValidation {
			t.Errorf("Expected validation error for '%s', got %s", tt.url, appErr.Type)
		}
		if appErr.Message != tt.message {
			t.Errorf("Expected '%s' for '%s', got: %s", tt.message, tt.url, appErr.Message)
		}
	}
}

func TestValidateImageURL_RestrictedHosts(t *testing.T) {
	validator := NewURLValidatorWithOptions([]string{"https"}, []string{"cams.example.com"})

	if err := validator.ValidateImageURL("https://cams.example.com/lot.jpg"); err != nil {
		t.Errorf("Expected allowed host to pass validation, got error: %v", err)
	}

	err := validator.ValidateImageURL("https://untrusted.com/lot.jpg")
	if appErr, ok := apperrors.As(err); !ok || appErr.Message != "URL host not allowed" {
		t.Errorf("Expected 'URL host not allowed' error, got: %v", err)
	}

	err = validator.ValidateImageURL("http://cams.example.com/lot.jpg")
	if appErr, ok := apperrors.As(err); !ok || appErr.Message != "URL scheme not allowed" {
		t.Errorf("Expected 'URL scheme not allowed' error, got: %v", err)
	}
}

func TestIsSchemeAllowed(t *testing.T) {
	validator := NewURLValidator()

	for _, scheme := range []string{"http", "https", "HTTPS", "azblob"} {
		if !validator.isSchemeAllowed(scheme) {
			t.Errorf("Expected %s scheme to be allowed", scheme)
		}
	}
	for _, scheme := range []string{"ftp", "file", ""} {
		if validator.isSchemeAllowed(scheme) {
			t.Errorf("Expected %q scheme to be disallowed", scheme)
		}
	}
}

func TestIsHostAllowed(t *testing.T) {
	validator := NewURLValidator()
	if !validator.isHostAllowed("example.com") {
		t.Error("Expected any host to be allowed when no restrictions")
	}

	restricted := NewURLValidatorWithOptions([]string{"http", "https"}, []string{"example.com", "trusted.com"})
	if !restricted.isHostAllowed("trusted.com") {
		t.Error("Expected trusted.com to be allowed")
	}
	if restricted.isHostAllowed("malicious.com") {
		t.Error("Expected malicious.com to be disallowed")
	}
}
