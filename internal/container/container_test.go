package container

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-vehicle-counter/internal/config"
	"go-vehicle-counter/internal/factory"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Host:               "127.0.0.1",
		Port:               "8080",
		RequestTimeout:     time.Minute,
		FetchTimeout:       time.Second,
		MaxRequestBodySize: 1 << 20,
		DataDir:            filepath.Join(t.TempDir(), "data"),
	}
}

func TestNewContainer_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, err := NewContainerWithBackend(testConfig(t), factory.PureBackend)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pure-go")
	assert.Equal(t, "pure-go", c.Backend().Name())
}

func TestNewContainer_EqualizeEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	c, err := NewContainerWithBackend(cfg, factory.PureBackend)
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "lot.png")
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.SetNRGBA(x, x, color.NRGBA{R: uint8(30 * x), G: 80, B: 40, A: 255})
	}
	f, err := os.Create(src)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	resp, err := c.Service().Equalize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "image/png", resp.Image.MimeType)
	assert.FileExists(t, filepath.Join(cfg.DataDir, "single.png"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "equalize", "img.png"))

	snap := c.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.CompletedRequests)
}

func TestNewContainer_UnknownBackend(t *testing.T) {
	_, err := NewContainerWithBackend(testConfig(t), "cuda")
	assert.Error(t, err)
}
