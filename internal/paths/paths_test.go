package paths

import (
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/require"
)

func TestRegistryCacheFile(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	xdg.Reload()

	path, err := RegistryCacheFile()
	require.NoError(t, err)
	require.Equal(t, "registry.json", filepath.Base(path))
	require.Equal(t, Namespace, filepath.Base(filepath.Dir(path)))

	// Parent directory must exist so later cache writes never fail on it
	require.DirExists(t, filepath.Dir(path))
}

func TestDistinctIDFile(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	xdg.Reload()

	path, err := DistinctIDFile()
	require.NoError(t, err)
	require.Equal(t, "distinct-id", filepath.Base(path))
	require.DirExists(t, filepath.Dir(path))
}
