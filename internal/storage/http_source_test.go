package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func newTestHTTPSource() *HTTPSource {
	s := NewHTTPSource(5 * time.Second)
	s.backoff = 10 * time.Millisecond
	return s
}

func TestHTTPSource_RetryLogic(t *testing.T) {
	tests := []struct {
		name          string
		responses     []int // Status codes to return in sequence
		expectRetries int   // Expected number of requests
		expectError   bool
		errorContains string
	}{
		{
			name:          "Success on first attempt",
			responses:     []int{200},
			expectRetries: 1,
		},
		{
			name:          "Success on second attempt after 5xx",
			responses:     []int{500, 200},
			expectRetries: 2,
		},
		{
			name:          "4xx client error - no retry",
			responses:     []int{404},
			expectRetries: 1,
			expectError:   true,
			errorContains: "client error: status code 404",
		},
		{
			name:          "4xx after 5xx - stop at 4xx",
			responses:     []int{500, 404},
			expectRetries: 2,
			expectError:   true,
			errorContains: "client error: status code 404",
		},
		{
			name:          "All 5xx errors - retry all attempts",
			responses:     []int{500, 502, 503},
			expectRetries: 3,
			expectError:   true,
			errorContains: "server error: status code 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requestCount := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				statusCode := http.StatusInternalServerError
				if requestCount < len(tt.responses) {
					statusCode = tt.responses[requestCount]
				}
				requestCount++

				if statusCode == http.StatusOK {
					w.Header().Set("Content-Type", "image/png")
					w.WriteHeader(http.StatusOK)
					w.Write(pngSignature)
					return
				}
				w.WriteHeader(statusCode)
			}))
			defer server.Close()

			rc, err := newTestHTTPSource().Open(context.Background(), server.URL+"/car.png")

			if requestCount != tt.expectRetries {
				t.Errorf("Expected %d requests, got %d", tt.expectRetries, requestCount)
			}
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error containing %q, got %q", tt.errorContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			defer rc.Close()
			body, _ := io.ReadAll(rc)
			if !bytes.Equal(body, pngSignature) {
				t.Errorf("Unexpected body %v", body)
			}
		})
	}
}

func TestHTTPSource_NetworkError_Retry(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if requestCount <= 2 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("Server doesn't support hijacking")
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(pngSignature)
	}))
	defer server.Close()

	rc, err := newTestHTTPSource().Open(context.Background(), server.URL+"/car.png")
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	rc.Close()

	if requestCount != 3 {
		t.Errorf("Expected 3 requests, got %d", requestCount)
	}
}

func TestHTTPSource_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewHTTPSource(5 * time.Second)
	s.backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Open(ctx, server.URL+"/car.png")
	if err != context.DeadlineExceeded {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestHTTPSource_DeclaredLengthOverLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write(bytes.Repeat([]byte{1}, 100))
	}))
	defer server.Close()

	s := newTestHTTPSource()
	s.maxBytes = 50

	_, err := s.Open(context.Background(), server.URL+"/car.png")
	if !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("Expected ErrImageTooLarge, got %v", err)
	}
}

func TestHTTPSource_StreamedBodyOverLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{1}, 30))
		w.(http.Flusher).Flush()
		w.Write(bytes.Repeat([]byte{2}, 30))
	}))
	defer server.Close()

	s := newTestHTTPSource()
	s.maxBytes = 50

	rc, err := s.Open(context.Background(), server.URL+"/car.png")
	if err != nil {
		t.Fatalf("Expected open to succeed, got %v", err)
	}
	defer rc.Close()

	_, err = io.ReadAll(rc)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("Expected ErrImageTooLarge, got %v", err)
	}
}

func TestHTTPSource_BodyAtLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{1}, 50))
	}))
	defer server.Close()

	s := newTestHTTPSource()
	s.maxBytes = 50

	rc, err := s.Open(context.Background(), server.URL+"/car.png")
	if err != nil {
		t.Fatalf("Expected open to succeed, got %v", err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if len(body) != 50 {
		t.Errorf("Expected 50 bytes, got %d", len(body))
	}
}
