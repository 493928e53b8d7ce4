// Package assets materialises bundled vision assets into the application
// data directory.
package assets

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	apperrors "go-vehicle-counter/internal/errors"
	"go-vehicle-counter/internal/logger"

	"github.com/sirupsen/logrus"
)

// The checked-in cars.xml is a small placeholder cascade. Regenerate it with
// the trained vehicle model, or set CASCADE_FILE at runtime.
//go:generate curl -fsSL -o cars.xml https://raw.githubusercontent.com/andrewssobral/vehicle_detection_haarcascades/master/cars.xml

//go:embed cars.xml
var bundled embed.FS

// ErrUnknownAsset is returned for asset names that are not bundled
var ErrUnknownAsset = errors.New("unknown asset")

// Asset describes a bundled file and its fixed installed name
type Asset struct {
	Name     string
	FileName string
}

// Cascade is the vehicle cascade classifier used by the Haar strategy
var Cascade = Asset{Name: "cascade", FileName: "cars.xml"}

// Bundled returns the embedded bytes of an asset
func Bundled(a Asset) ([]byte, error) {
	data, err := bundled.ReadFile(a.FileName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, a.Name)
	}
	return data, nil
}

// Provisioner ensures an asset exists on disk
type Provisioner interface {
	Ensure(dataDir string) (string, error)
}

type fileProvisioner struct {
	asset  Asset
	source string
}

// Option configures a provisioner
type Option func(*fileProvisioner)

// WithSourceFile installs the asset from a file on disk instead of the
// embedded copy. An empty path keeps the embedded copy.
func WithSourceFile(path string) Option {
	return func(p *fileProvisioner) {
		p.source = path
	}
}

// NewProvisioner creates a provisioner for a bundled asset
func NewProvisioner(a Asset, opts ...Option) Provisioner {
	p := &fileProvisioner{asset: a}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *fileProvisioner) load() ([]byte, string, error) {
	if p.source == "" {
		data, err := Bundled(p.asset)
		if err != nil {
			return nil, "", apperrors.NewInternalError("asset is not bundled", err)
		}
		return data, "bundled", nil
	}
	data, err := os.ReadFile(p.source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", apperrors.NewNotFoundError("asset source not found", err).WithDetails(p.source)
		}
		return nil, "", apperrors.NewIOError("failed to read asset source", err).WithDetails(p.source)
	}
	return data, p.source, nil
}

// Ensure creates dataDir when missing and writes the asset only if no file
// exists at its installed path. An existing asset is never rewritten.
func (p *fileProvisioner) Ensure(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", apperrors.NewIOError("failed to create data directory", err)
	}

	path := filepath.Join(dataDir, p.asset.FileName)
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return "", apperrors.NewIOError("asset path is a directory", nil).WithDetails(path)
	case err == nil:
		return path, nil
	case !os.IsNotExist(err):
		return "", apperrors.NewIOError("failed to inspect asset", err)
	}

	data, origin, err := p.load()
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(dataDir, path, data); err != nil {
		return "", apperrors.NewIOError("failed to install asset", err)
	}

	logger.WithFields(logrus.Fields{
		"asset":  p.asset.Name,
		"path":   path,
		"origin": origin,
		"bytes":  len(data),
	}).Info("Installed asset")
	return path, nil
}

// writeFileAtomic writes through a temp file in dir so that path never holds
// a truncated asset.
func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
