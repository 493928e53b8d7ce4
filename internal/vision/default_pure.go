//go:build !gocv

package vision

// NewBackend returns the backend compiled into this build
func NewBackend() Backend {
	return NewPureBackend()
}
