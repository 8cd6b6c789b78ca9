package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInitializationOptionsDecodesMultiModule(t *testing.T) {
	raw := []byte(`{
		"modulesHome": "/home/modules",
		"multiModule": {
			"file:///ws/a": {"name": "a", "srcPath": "/ws/a/src", "combined": true, "requires": ["b"]}
		},
		"platform": {"isDeveco": true, "test": false},
		"conditionCompile": {"passedWhenKeyValue": {"os": "linux"}}
	}`)

	c, err := ParseInitializationOptions(raw)
	require.NoError(t, err)
	assert.Equal(t, "/home/modules", c.ModulesHome)
	require.Contains(t, c.MultiModule, "file:///ws/a")
	assert.True(t, c.MultiModule["file:///ws/a"].Combined)
	assert.Equal(t, []string{"b"}, c.MultiModule["file:///ws/a"].Requires)
	assert.True(t, c.Platform.IsDeveco)
	assert.Equal(t, "linux", c.Condition.PassedWhenKeyValue["os"])
}

func TestParseInitializationOptionsEmptyIsZeroValue(t *testing.T) {
	c, err := ParseInitializationOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, Config{}, c)
}

func TestLoadWorkspaceDescriptorMergesOverBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workspace.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache_path = "/cache"
[multi_module.b]
name = "b"
src_path = "/ws/b/src"
`), 0o644))

	base := Config{ModulesHome: "/home/modules"}
	merged, err := LoadWorkspaceDescriptor(path, base)
	require.NoError(t, err)
	assert.Equal(t, "/home/modules", merged.ModulesHome, "base fields survive when the overlay doesn't set them")
	assert.Equal(t, "/cache", merged.CachePath)
	require.Contains(t, merged.MultiModule, "b")
	assert.Equal(t, "b", merged.MultiModule["b"].Name)
}

func TestLoadWorkspaceDescriptorMissingFileIsNotError(t *testing.T) {
	base := Config{ModulesHome: "/home/modules"}
	got, err := LoadWorkspaceDescriptor(filepath.Join(t.TempDir(), "missing.toml"), base)
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestEffectiveGCIntervalDefaultsWhenUnset(t *testing.T) {
	assert.Equal(t, DefaultGCInterval, Config{}.EffectiveGCInterval())
	assert.Equal(t, "@every 1m", Config{GCInterval: "@every 1m"}.EffectiveGCInterval())
}
