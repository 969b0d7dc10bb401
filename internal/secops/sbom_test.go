package secops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGoMod = `module example.com/acme/svc

go 1.24.0

require (
	github.com/go-chi/chi/v5 v5.2.3
	github.com/jackc/pgx/v5 v5.7.6
)
`

const samplePackageJSON = `{
	"dependencies": {"react": "^18.3.1"},
	"devDependencies": {"vite": "~5.4.0"}
}`

func TestGenerateSBOM(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte(sampleGoMod), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte(samplePackageJSON), 0o644))

	bom, err := GenerateSBOM(root)
	require.NoError(t, err)

	assert.Equal(t, "CycloneDX", bom.BOMFormat)
	assert.Equal(t, "1.5", bom.SpecVersion)
	assert.Contains(t, bom.SerialNumber, "urn:uuid:")
	assert.Equal(t, "example.com/acme/svc", bom.Metadata.Component.Name)

	byName := map[string]Component{}
	for _, c := range bom.Components {
		byName[c.Name] = c
	}
	require.Len(t, byName, 4)
	assert.Equal(t, "pkg:golang/github.com/go-chi/chi/v5@v5.2.3", byName["github.com/go-chi/chi/v5"].PURL)
	assert.Equal(t, "pkg:npm/react@18.3.1", byName["react"].PURL, "range prefix stripped")
	assert.Equal(t, "5.4.0", byName["vite"].Version)
}

func TestGenerateSBOMPrefersLockedVersions(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte(sampleGoMod), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte(samplePackageJSON), 0o644))
	lock := `{
		"lockfileVersion": 3,
		"packages": {
			"": {"name": "acme-app"},
			"node_modules/react": {"version": "18.2.0"},
			"node_modules/vite": {"version": "5.4.11"},
			"node_modules/vite/node_modules/esbuild": {"version": "0.21.5"}
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "package-lock.json"), []byte(lock), 0o644))

	bom, err := GenerateSBOM(root)
	require.NoError(t, err)

	byName := map[string]Component{}
	for _, c := range bom.Components {
		byName[c.Name] = c
	}
	assert.Equal(t, "18.2.0", byName["react"].Version, "lockfile version wins over the declared range")
	assert.Equal(t, "pkg:npm/vite@5.4.11", byName["vite"].PURL)
	_, nested := byName["esbuild"]
	assert.False(t, nested, "transitive packages are not direct components")
}

func TestGenerateSBOMWithoutPackageJSON(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte(sampleGoMod), 0o644))

	bom, err := GenerateSBOM(root)
	require.NoError(t, err)
	assert.Len(t, bom.Components, 2)
}

func TestGenerateSBOMMissingGoMod(t *testing.T) {
	_, err := GenerateSBOM(t.TempDir())
	assert.Error(t, err)
}
