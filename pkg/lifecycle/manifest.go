package lifecycle

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is the ordered list of assets that must be in the static
// partition before a version counts as installed.
type Manifest struct {
	Assets []string `yaml:"assets" json:"assets"`
}

// DefaultManifest returns the application shell and its install metadata.
func DefaultManifest() Manifest {
	return Manifest{
		Assets: []string{
			"/",
			"/index.html",
			"/manifest.json",
			"/icons/icon-192x192.png",
			"/icons/icon-512x512.png",
		},
	}
}

// LoadManifest reads a manifest file. YAML and JSON are both accepted.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m.Normalize(), nil
}

// Validate checks that every asset is an absolute path and that the shell
// entry point and its installable metadata are present.
func (m Manifest) Validate() error {
	if len(m.Assets) == 0 {
		return fmt.Errorf("manifest has no assets")
	}

	var hasShell, hasMetadata bool
	for _, asset := range m.Assets {
		if !strings.HasPrefix(asset, "/") || strings.HasPrefix(asset, "//") {
			return fmt.Errorf("asset %q is not an absolute path", asset)
		}
		if asset == "/" || asset == "/index.html" {
			hasShell = true
		}
		if strings.HasSuffix(asset, "manifest.json") || strings.HasSuffix(asset, ".webmanifest") {
			hasMetadata = true
		}
	}

	if !hasShell {
		return fmt.Errorf("manifest must include the application shell (/ or /index.html)")
	}
	if !hasMetadata {
		return fmt.Errorf("manifest must include the web app manifest")
	}
	return nil
}

// Normalize drops duplicate paths, keeping first occurrence order.
func (m Manifest) Normalize() Manifest {
	seen := make(map[string]bool, len(m.Assets))
	out := make([]string, 0, len(m.Assets))
	for _, asset := range m.Assets {
		if seen[asset] {
			continue
		}
		seen[asset] = true
		out = append(out, asset)
	}
	return Manifest{Assets: out}
}
