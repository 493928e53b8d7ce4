package vision

import (
	"embed"
	"fmt"
)

//go:embed modules/*.yaml
var moduleFS embed.FS

// Bundled module scripts
const (
	ModuleDiffConnect = "diffcon"
	ModuleHaar        = "haar"
	ModuleTransform   = "transform"
)

// ModuleSource returns the source of a bundled module script
func ModuleSource(name string) ([]byte, error) {
	data, err := moduleFS.ReadFile("modules/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown module %q", name)
	}
	return data, nil
}
