// Package resolver maps a project's language-specific dependencies to a
// merged environment-provisioning recipe using the current registry snapshot.
//
// The registry keeps language payloads opaque; this package is the one place
// that applies a schema to them, and only for languages it knows.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/provender-dev/provender/internal/cachemanager"
	"github.com/provender-dev/provender/internal/log"
)

// ErrUnknownLanguage means the current snapshot has no table for the
// requested language.
var ErrUnknownLanguage = errors.New("language not present in registry")

// Recipe describes what an environment needs for a set of dependencies.
type Recipe struct {
	BuildInputs   []string          `json:"build-inputs,omitempty"`
	RuntimeInputs []string          `json:"runtime-inputs,omitempty"`
	Environment   map[string]string `json:"environment-variables,omitempty"`
}

// Table is the per-language registry payload schema: a default recipe plus
// one recipe per known dependency.
type Table struct {
	Default      Recipe            `json:"default"`
	Dependencies map[string]Recipe `json:"dependencies"`
}

// SnapshotSource supplies opaque language payloads from the current
// registry snapshot.
type SnapshotSource interface {
	Language(name string) (json.RawMessage, bool)
}

// request carries one resolution through the read-through cache loader.
type request struct {
	language     string
	dependencies []string
}

// Resolver resolves dependency sets against the registry, memoizing results.
type Resolver struct {
	source SnapshotSource
	rtc    *cachemanager.ReadThroughCache[string, Recipe, request]
	ttl    time.Duration
}

// New creates a resolver over the given snapshot source. A non-positive ttl
// disables memoization.
func New(source SnapshotSource, ttl time.Duration) *Resolver {
	r := &Resolver{source: source, ttl: ttl}
	cache := cachemanager.NewInMemoryCacheManager[string, Recipe]("resolve", ttl, cachemanager.DefaultCleanupInterval)
	r.rtc = cachemanager.NewReadThroughCache[string, Recipe, request](cache, r.compute, ttl <= 0)
	return r
}

// Resolve merges the recipes for the named dependencies on top of the
// language's default recipe. Dependency names the registry does not know
// contribute nothing. The result is deterministic regardless of input order.
func (r *Resolver) Resolve(ctx context.Context, language string, dependencies []string) (Recipe, error) {
	deps := normalize(dependencies)
	req := request{language: language, dependencies: deps}
	return r.rtc.Get(ctx, cacheKey(language, deps), req, r.ttl)
}

func (r *Resolver) compute(ctx context.Context, req request) (Recipe, error) {
	raw, ok := r.source.Language(req.language)
	if !ok {
		return Recipe{}, fmt.Errorf("%w: %s", ErrUnknownLanguage, req.language)
	}

	var table Table
	if err := json.Unmarshal(raw, &table); err != nil {
		return Recipe{}, fmt.Errorf("decoding %s recipe table: %w", req.language, err)
	}

	merged := table.Default
	for _, dep := range req.dependencies {
		recipe, ok := table.Dependencies[dep]
		if !ok {
			log.Debug(log.CatResolve, "No recipe for dependency", "language", req.language, "dependency", dep)
			continue
		}
		merged = merge(merged, recipe)
	}

	merged.BuildInputs = dedupeSorted(merged.BuildInputs)
	merged.RuntimeInputs = dedupeSorted(merged.RuntimeInputs)
	log.Debug(log.CatResolve, "Resolved recipe",
		"language", req.language,
		"dependencies", len(req.dependencies),
		"build_inputs", len(merged.BuildInputs))
	return merged, nil
}

// merge folds b into a. Inputs are unioned; environment variables from b win
// on conflict. Callers iterate dependencies in sorted order, which makes
// conflicts deterministic.
func merge(a, b Recipe) Recipe {
	out := Recipe{
		BuildInputs:   append(append([]string(nil), a.BuildInputs...), b.BuildInputs...),
		RuntimeInputs: append(append([]string(nil), a.RuntimeInputs...), b.RuntimeInputs...),
	}
	if len(a.Environment) > 0 || len(b.Environment) > 0 {
		out.Environment = make(map[string]string, len(a.Environment)+len(b.Environment))
		for k, v := range a.Environment {
			out.Environment[k] = v
		}
		for k, v := range b.Environment {
			out.Environment[k] = v
		}
	}
	return out
}

// normalize dedupes and sorts dependency names.
func normalize(dependencies []string) []string {
	seen := make(map[string]struct{}, len(dependencies))
	out := make([]string, 0, len(dependencies))
	for _, dep := range dependencies {
		if _, ok := seen[dep]; ok {
			continue
		}
		seen[dep] = struct{}{}
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

func dedupeSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return normalize(values)
}

func cacheKey(language string, sortedDeps []string) string {
	return language + ":" + strings.Join(sortedDeps, ",")
}
