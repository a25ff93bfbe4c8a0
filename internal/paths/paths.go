// Package paths provides per-user path resolution for provender state.
package paths

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// Namespace is the application prefix used under the XDG base directories.
const Namespace = "provender"

// registryCacheName is the file holding the last-known-good registry snapshot.
const registryCacheName = "registry.json"

// distinctIDName is the file holding the telemetry distinct id.
const distinctIDName = "distinct-id"

// RegistryCacheFile resolves the registry cache file path, creating parent
// directories as needed. The file itself is not created.
func RegistryCacheFile() (string, error) {
	return xdg.CacheFile(filepath.Join(Namespace, registryCacheName))
}

// DistinctIDFile resolves the telemetry distinct-id file path, creating
// parent directories as needed.
func DistinctIDFile() (string, error) {
	return xdg.StateFile(filepath.Join(Namespace, distinctIDName))
}

// TraceFile resolves the default trace output path under the state directory.
func TraceFile() (string, error) {
	return xdg.StateFile(filepath.Join(Namespace, "traces", "traces.jsonl"))
}
