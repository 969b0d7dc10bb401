package secops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/modfile"
)

// SBOM is a CycloneDX-style software bill of materials.
type SBOM struct {
	BOMFormat    string      `json:"bomFormat"`
	SpecVersion  string      `json:"specVersion"`
	SerialNumber string      `json:"serialNumber"`
	Version      int         `json:"version"`
	Metadata     BOMMetadata `json:"metadata"`
	Components   []Component `json:"components"`
}

// BOMMetadata describes the subject of the SBOM.
type BOMMetadata struct {
	Timestamp string    `json:"timestamp"`
	Component Component `json:"component"`
}

// Component is one dependency entry.
type Component struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	PURL    string `json:"purl,omitempty"`
}

// GenerateSBOM reads go.mod under root, plus package.json and its lockfile
// when present, and assembles a bill of materials.
func GenerateSBOM(root string) (*SBOM, error) {
	modPath := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(modPath)
	if err != nil {
		return nil, fmt.Errorf("read go.mod: %w", err)
	}
	mod, err := modfile.Parse(modPath, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parse go.mod: %w", err)
	}

	bom := &SBOM{
		BOMFormat:    "CycloneDX",
		SpecVersion:  "1.5",
		SerialNumber: "urn:uuid:" + uuid.NewString(),
		Version:      1,
		Metadata: BOMMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Component: Component{
				Type: "application",
				Name: mod.Module.Mod.Path,
			},
		},
	}

	for _, req := range mod.Require {
		bom.Components = append(bom.Components, Component{
			Type:    "library",
			Name:    req.Mod.Path,
			Version: req.Mod.Version,
			PURL:    fmt.Sprintf("pkg:golang/%s@%s", req.Mod.Path, req.Mod.Version),
		})
	}

	npmComponents, err := readNPMComponents(root)
	if err != nil {
		return nil, err
	}
	bom.Components = append(bom.Components, npmComponents...)

	return bom, nil
}

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

type packageLock struct {
	Packages map[string]struct {
		Version string `json:"version"`
	} `json:"packages"`
}

func readNPMComponents(root string) ([]Component, error) {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read package.json: %w", err)
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}

	locked, err := readLockedVersions(root)
	if err != nil {
		return nil, err
	}

	var components []Component
	for name, version := range pkg.Dependencies {
		components = append(components, npmComponent(name, version, locked))
	}
	for name, version := range pkg.DevDependencies {
		components = append(components, npmComponent(name, version, locked))
	}
	return components, nil
}

// readLockedVersions resolves exact installed versions from package-lock.json
// (lockfile v2/v3 layout). Without a lockfile the declared ranges are used.
func readLockedVersions(root string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(root, "package-lock.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read package-lock.json: %w", err)
	}
	var lock packageLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parse package-lock.json: %w", err)
	}

	locked := make(map[string]string, len(lock.Packages))
	for path, entry := range lock.Packages {
		name, ok := strings.CutPrefix(path, "node_modules/")
		if !ok || strings.Contains(name, "node_modules/") || entry.Version == "" {
			continue
		}
		locked[name] = entry.Version
	}
	return locked, nil
}

func npmComponent(name, version string, locked map[string]string) Component {
	cleaned := strings.TrimLeft(version, "^~>=<")
	if exact, ok := locked[name]; ok {
		cleaned = exact
	}
	return Component{
		Type:    "library",
		Name:    name,
		Version: cleaned,
		PURL:    fmt.Sprintf("pkg:npm/%s@%s", name, cleaned),
	}
}

// WriteJSON marshals the SBOM with indentation for human review.
func (b *SBOM) WriteJSON(path string) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
