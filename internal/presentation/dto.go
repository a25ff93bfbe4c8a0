package presentation

import (
	"encoding/json"
	"sort"

	"github.com/provender-dev/provender/internal/registry"
	"github.com/provender-dev/provender/internal/resolver"
)

// LanguageDTO represents one language entry from a registry snapshot.
type LanguageDTO struct {
	Name  string          `json:"name"`
	Table json.RawMessage `json:"table"`
}

// SnapshotDTO represents a registry snapshot for presentation.
type SnapshotDTO struct {
	Version   int           `json:"version"`
	Languages []LanguageDTO `json:"languages"`
}

// RecipeDTO represents a resolved recipe for presentation.
type RecipeDTO struct {
	Language      string            `json:"language"`
	Dependencies  []string          `json:"dependencies"`
	BuildInputs   []string          `json:"build-inputs"`
	RuntimeInputs []string          `json:"runtime-inputs"`
	Environment   map[string]string `json:"environment-variables,omitempty"`
}

// FromSnapshot converts a registry snapshot to a DTO with languages sorted by
// name.
func FromSnapshot(snap *registry.Snapshot) SnapshotDTO {
	languages := make([]LanguageDTO, 0, len(snap.Languages))
	for name, table := range snap.Languages {
		languages = append(languages, LanguageDTO{Name: name, Table: table})
	}
	sort.Slice(languages, func(i, j int) bool {
		return languages[i].Name < languages[j].Name
	})

	return SnapshotDTO{
		Version:   snap.Version,
		Languages: languages,
	}
}

// FromRecipe converts a resolved recipe to a DTO. Nil slices become empty so
// the JSON output always carries the input arrays.
func FromRecipe(language string, dependencies []string, recipe resolver.Recipe) RecipeDTO {
	build := recipe.BuildInputs
	if build == nil {
		build = []string{}
	}
	runtime := recipe.RuntimeInputs
	if runtime == nil {
		runtime = []string{}
	}
	if dependencies == nil {
		dependencies = []string{}
	}

	return RecipeDTO{
		Language:      language,
		Dependencies:  dependencies,
		BuildInputs:   build,
		RuntimeInputs: runtime,
		Environment:   recipe.Environment,
	}
}
