// Package registry maintains the locally cached, versioned dependency
// registry and keeps it fresh via a detached background refresh.
//
// The store bootstraps synchronously from the per-user cache file (or the
// embedded fallback when no cache exists), validates the schema version, and
// then serves read-only snapshot views. When online, a single one-shot
// refresher races the rest of the program; readers observe either the
// bootstrap snapshot or the refreshed one, never a mix.
package registry

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/provender-dev/provender/internal/log"
	"github.com/provender-dev/provender/internal/paths"
	"github.com/provender-dev/provender/internal/pubsub"
)

// DefaultRemoteURL is the fixed remote registry endpoint. The whole snapshot
// is always fetched; there is no conditional-fetch negotiation.
const DefaultRemoteURL = "https://registry.provender.dev/registry.json"

// defaultFetchTimeout bounds the refresh request. The refresher is detached
// and never retried, so a hung request would otherwise live as long as the
// process.
const defaultFetchTimeout = 30 * time.Second

// fallbackSnapshot ships with the binary so a first run works with zero
// network and zero prior cache. It must satisfy ExpectedVersion.
//
//go:embed registry.json
var fallbackSnapshot string

const tracerName = "provender/registry"

// TelemetrySource produces the opaque header attached to refresh requests.
// Implementations are best-effort collaborators: an error here never aborts
// a refresh.
type TelemetrySource interface {
	HeaderName() string
	HeaderValue(ctx context.Context) (string, error)
}

// Config controls how a Store is opened.
type Config struct {
	// Offline disables the background refresher entirely.
	Offline bool

	// RemoteURL overrides the registry endpoint. Empty means DefaultRemoteURL.
	RemoteURL string

	// CachePath overrides the cache file location. Empty means the per-user
	// XDG cache path.
	CachePath string

	// Telemetry optionally supplies the refresh request header. Nil disables
	// the header.
	Telemetry TelemetrySource

	// Client overrides the HTTP client used by the refresher.
	Client *http.Client
}

// Store owns the authoritative current snapshot and mediates all access
// to it. Create one per process with Open; process exit reclaims it.
type Store struct {
	mu       sync.RWMutex
	snapshot *Snapshot

	// refreshDone is closed when the background refresher finishes,
	// successfully or not. Nil when the store was opened offline.
	refreshDone chan struct{}

	events *pubsub.Broker[RefreshResult]
}

// Open performs the synchronous bootstrap: resolve the cache file, read it
// (creating it empty if absent), substitute the embedded snapshot when the
// cache is empty, parse, validate the schema version, and - unless offline -
// spawn the detached background refresher.
//
// Every bootstrap failure is fatal: a corrupt cache or a version mismatch
// surfaces to the caller rather than silently falling back.
func Open(cfg Config) (*Store, error) {
	_, span := otel.Tracer(tracerName).Start(context.Background(), "registry.open",
		trace.WithAttributes(attribute.Bool("offline", cfg.Offline)))
	defer span.End()

	if cfg.CachePath == "" {
		path, err := paths.RegistryCacheFile()
		if err != nil {
			span.SetStatus(codes.Error, "cache path resolution failed")
			return nil, fmt.Errorf("resolving registry cache path: %w", err)
		}
		cfg.CachePath = path
	}
	if cfg.RemoteURL == "" {
		cfg.RemoteURL = DefaultRemoteURL
	}

	content, err := readCacheFile(cfg.CachePath)
	if err != nil {
		span.SetStatus(codes.Error, "cache read failed")
		return nil, err
	}

	if content == "" {
		log.Debug(log.CatRegistry, "Cache empty, using embedded fallback", "path", cfg.CachePath)
		content = fallbackSnapshot
	}

	snap, err := ParseSnapshot(content)
	if err != nil {
		span.SetStatus(codes.Error, "snapshot parse failed")
		return nil, err
	}
	if snap.Version != ExpectedVersion {
		span.SetStatus(codes.Error, "version mismatch")
		return nil, &WrongVersionError{Got: snap.Version}
	}

	s := &Store{
		snapshot: snap,
		events:   pubsub.NewBroker[RefreshResult](),
	}
	log.Debug(log.CatRegistry, "Loaded registry snapshot",
		"version", snap.Version, "languages", len(snap.Languages))

	if !cfg.Offline {
		// Detached on purpose: nothing awaits the refresher, and abandoning
		// it mid-flight at process exit is safe.
		s.refreshDone = make(chan struct{})
		go s.refresh(cfg)
	}

	return s, nil
}

// readCacheFile opens the cache file read+write, creating it empty if it
// does not exist so later refresh writes never hit a missing file, and
// returns its full contents. The handle is closed before returning; the
// refresher opens its own.
func readCacheFile(path string) (string, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644) //nolint:gosec // G304: per-user cache path
	if err != nil {
		return "", fmt.Errorf("opening registry cache %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading registry cache %s: %w", path, err)
	}
	return string(content), nil
}

// View calls fn with the current language table map under a read lock.
// The lock is held exactly for the duration of fn; fn must not retain the
// map. Installed snapshots are never mutated, so the json.RawMessage values
// themselves are safe to keep.
func (s *Store) View(fn func(languages map[string]json.RawMessage)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.snapshot.Languages)
}

// Language returns the opaque payload for one language from the current
// snapshot.
func (s *Store) Language(name string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.snapshot.Languages[name]
	return raw, ok
}

// Languages returns a copy of the current language table map.
func (s *Store) Languages() map[string]json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(s.snapshot.Languages))
	for name, raw := range s.snapshot.Languages {
		out[name] = raw
	}
	return out
}

// Snapshot returns a copy of the current snapshot. The language map is
// copied; the payloads are shared, which is safe because installed snapshots
// are never mutated.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := &Snapshot{
		Version:   s.snapshot.Version,
		Languages: make(map[string]json.RawMessage, len(s.snapshot.Languages)),
	}
	for name, raw := range s.snapshot.Languages {
		out.Languages[name] = raw
	}
	return out
}

// Fresh reports whether the background refresher has run to completion,
// regardless of whether it succeeded. Always false when offline. This is a
// liveness signal, not a correctness signal.
func (s *Store) Fresh() bool {
	if s.refreshDone == nil {
		// Offline: no refresher was ever spawned
		return false
	}
	select {
	case <-s.refreshDone:
		return true
	default:
		return false
	}
}

// Events returns the broker publishing a RefreshResult when the background
// refresh completes. Diagnostics only; Fresh is the normative signal.
func (s *Store) Events() pubsub.Subscriber[RefreshResult] {
	return s.events
}
