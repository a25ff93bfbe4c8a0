package registry

import (
	"encoding/json"
	"fmt"
)

// ExpectedVersion is the registry schema version this build understands.
// Snapshots carrying any other version are rejected.
const ExpectedVersion = 1

// Snapshot is one complete, versioned instance of the registry data: a
// mapping from language name to that language's recipe table. The per-language
// payloads are opaque at this layer; only consumers that know a language's
// schema decode them. A Snapshot is immutable once installed - refreshes
// replace the whole value, never merge into it.
type Snapshot struct {
	Version   int                        `json:"version"`
	Languages map[string]json.RawMessage `json:"languages"`
}

// ParseSnapshot parses serialized registry text into a Snapshot.
// It does not validate the version; callers gate on ExpectedVersion.
func ParseSnapshot(text string) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(text), &snap); err != nil {
		return nil, fmt.Errorf("parsing registry snapshot: %w", err)
	}
	return &snap, nil
}

// WrongVersionError reports a snapshot whose schema version does not match
// ExpectedVersion. It distinguishes "schema too new, upgrade the program"
// from a corrupt or unreadable cache.
type WrongVersionError struct {
	Got int
}

func (e *WrongVersionError) Error() string {
	return fmt.Sprintf("wrong registry data version: %d (expected) != %d (got)", ExpectedVersion, e.Got)
}
