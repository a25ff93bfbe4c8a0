package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/provender-dev/provender/internal/pubsub"
)

const validSnapshot = `{"version":1,"languages":{"rust":{}}}`

// cachePath writes content to a registry cache file in a temp dir and
// returns its path. Empty content creates an empty file.
func cachePath(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOpen_OfflineLoadsCache(t *testing.T) {
	store, err := Open(Config{Offline: true, CachePath: cachePath(t, validSnapshot)})
	require.NoError(t, err)

	raw, ok := store.Language("rust")
	require.True(t, ok)
	require.JSONEq(t, `{}`, string(raw))

	require.False(t, store.Fresh(), "offline store must never report fresh")
}

func TestOpen_RoundTripsCacheContents(t *testing.T) {
	content := `{"version":1,"languages":{"rust":{"default":{"build-inputs":["openssl"]}},"go":{}}}`
	store, err := Open(Config{Offline: true, CachePath: cachePath(t, content)})
	require.NoError(t, err)

	want, err := ParseSnapshot(content)
	require.NoError(t, err)
	require.Equal(t, want.Languages, store.Languages())
}

func TestOpen_EmptyCacheFallsBackToEmbedded(t *testing.T) {
	store, err := Open(Config{Offline: true, CachePath: cachePath(t, "")})
	require.NoError(t, err)

	// Identical to a cache file containing exactly the embedded payload
	direct, err := Open(Config{Offline: true, CachePath: cachePath(t, fallbackSnapshot)})
	require.NoError(t, err)
	require.Equal(t, direct.Languages(), store.Languages())

	// The fallback ships with a usable rust table
	_, ok := store.Language("rust")
	require.True(t, ok)
}

func TestOpen_AbsentCacheCreatesFileAndFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")

	store, err := Open(Config{Offline: true, CachePath: path})
	require.NoError(t, err)
	require.NotEmpty(t, store.Languages())

	// File was proactively created so refresh writes never hit ENOENT
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Zero(t, info.Size())
}

func TestOpen_MalformedCacheIsFatal(t *testing.T) {
	_, err := Open(Config{Offline: true, CachePath: cachePath(t, "not json {")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "parsing registry snapshot")
}

func TestOpen_WrongVersionIsFatal(t *testing.T) {
	_, err := Open(Config{Offline: true, CachePath: cachePath(t, `{"version":2,"languages":{}}`)})
	require.Error(t, err)

	var wrongVersion *WrongVersionError
	require.ErrorAs(t, err, &wrongVersion)
	require.Equal(t, 2, wrongVersion.Got)
}

func TestOpen_UnreadableCachePathIsFatal(t *testing.T) {
	_, err := Open(Config{Offline: true, CachePath: filepath.Join(t.TempDir(), "missing", "registry.json")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "opening registry cache")
}

func TestRefresh_InstallsAndPersistsNewSnapshot(t *testing.T) {
	remote := "\n" + `{"version":1,"languages":{"rust":{},"go":{}}}` + "\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(remote))
	}))
	defer server.Close()

	path := cachePath(t, validSnapshot)
	store, err := Open(Config{CachePath: path, RemoteURL: server.URL})
	require.NoError(t, err)

	require.Eventually(t, store.Fresh, 2*time.Second, 10*time.Millisecond)

	// In-memory snapshot replaced whole
	langs := store.Languages()
	require.Len(t, langs, 2)
	require.Contains(t, langs, "go")

	// Cache file rewritten with the fetched text, trimmed
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"version":1,"languages":{"rust":{},"go":{}}}`, string(onDisk))
}

func TestRefresh_RemoteFailureLeavesStateUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>service unavailable</html>"))
	}))
	defer server.Close()

	path := cachePath(t, validSnapshot)
	store, err := Open(Config{CachePath: path, RemoteURL: server.URL})
	require.NoError(t, err)

	require.Eventually(t, store.Fresh, 2*time.Second, 10*time.Millisecond,
		"fresh reports completion even for failed refreshes")

	require.Equal(t, []string{"rust"}, keys(store.Languages()))

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, validSnapshot, string(onDisk))
}

func TestRefresh_UnreachableEndpointLeavesStateUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	path := cachePath(t, validSnapshot)
	store, err := Open(Config{CachePath: path, RemoteURL: server.URL})
	require.NoError(t, err)

	require.Eventually(t, store.Fresh, 2*time.Second, 10*time.Millisecond)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, validSnapshot, string(onDisk))
}

func TestRefresh_WrongVersionRemoteIsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":7,"languages":{"zig":{}}}`))
	}))
	defer server.Close()

	path := cachePath(t, validSnapshot)
	store, err := Open(Config{CachePath: path, RemoteURL: server.URL})
	require.NoError(t, err)

	require.Eventually(t, store.Fresh, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, []string{"rust"}, keys(store.Languages()))

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, validSnapshot, string(onDisk))
}

func TestRefresh_PublishesResultEvent(t *testing.T) {
	path := cachePath(t, validSnapshot)

	// Gate the remote response so the subscription exists before the
	// refresher can complete.
	blocked := make(chan struct{})
	gate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
		_, _ = w.Write([]byte(validSnapshot))
	}))
	defer gate.Close()

	store, err := Open(Config{CachePath: path, RemoteURL: gate.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := store.Events().Subscribe(ctx)
	close(blocked)

	select {
	case event := <-events:
		require.Equal(t, pubsub.RefreshedEvent, event.Type)
		require.True(t, event.Payload.Installed)
		require.NoError(t, event.Payload.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refresh event")
	}
}

func TestRefresh_CacheWriteFailureStillInstalls(t *testing.T) {
	newContent := `{"version":1,"languages":{"rust":{},"go":{}}}`

	// Gate the remote response so the cache path can be sabotaged after the
	// bootstrap read and the subscription exists before the refresh completes.
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
		_, _ = w.Write([]byte(newContent))
	}))
	defer server.Close()

	path := cachePath(t, validSnapshot)
	store, err := Open(Config{CachePath: path, RemoteURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := store.Events().Subscribe(ctx)

	// A directory at the cache path makes the rewrite fail regardless of
	// the uid running the tests.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))
	close(blocked)

	require.Eventually(t, store.Fresh, 2*time.Second, 10*time.Millisecond,
		"fresh reports completion even when persistence fails")

	// In-memory snapshot updated despite the failed write
	require.Contains(t, store.Languages(), "go")

	select {
	case event := <-events:
		require.True(t, event.Payload.Installed, "install precedes the cache write")
		require.Error(t, event.Payload.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refresh event")
	}
}

type stubTelemetry struct {
	value string
	err   error
}

func (s stubTelemetry) HeaderName() string { return "X-Provender-Telemetry" }

func (s stubTelemetry) HeaderValue(ctx context.Context) (string, error) {
	return s.value, s.err
}

func TestRefresh_AttachesTelemetryHeader(t *testing.T) {
	var mu sync.Mutex
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotHeader = r.Header.Get("X-Provender-Telemetry")
		mu.Unlock()
		_, _ = w.Write([]byte(validSnapshot))
	}))
	defer server.Close()

	store, err := Open(Config{
		CachePath: cachePath(t, validSnapshot),
		RemoteURL: server.URL,
		Telemetry: stubTelemetry{value: `{"distinct_id":"abc"}`},
	})
	require.NoError(t, err)
	require.Eventually(t, store.Fresh, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, `{"distinct_id":"abc"}`, gotHeader)
}

func TestRefresh_TelemetryFailureIsNotFatal(t *testing.T) {
	var mu sync.Mutex
	headerSeen := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headerSeen = r.Header.Get("X-Provender-Telemetry") != ""
		mu.Unlock()
		_, _ = w.Write([]byte(`{"version":1,"languages":{"rust":{},"go":{}}}`))
	}))
	defer server.Close()

	store, err := Open(Config{
		CachePath: cachePath(t, validSnapshot),
		RemoteURL: server.URL,
		Telemetry: stubTelemetry{err: os.ErrPermission},
	})
	require.NoError(t, err)
	require.Eventually(t, store.Fresh, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.False(t, headerSeen, "header must be omitted when telemetry fails")
	require.Contains(t, store.Languages(), "go", "refresh must still install")
}

func TestView_NeverObservesTornSnapshot(t *testing.T) {
	oldContent := `{"version":1,"languages":{"rust":{"default":{}}}}`
	newContent := `{"version":1,"languages":{"rust":{"default":{}},"go":{"default":{}},"python":{"default":{}}}}`

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(newContent))
	}))
	defer server.Close()

	store, err := Open(Config{CachePath: cachePath(t, oldContent), RemoteURL: server.URL})
	require.NoError(t, err)

	oldSnap, err := ParseSnapshot(oldContent)
	require.NoError(t, err)
	newSnap, err := ParseSnapshot(newContent)
	require.NoError(t, err)

	var wg sync.WaitGroup
	torn := make(chan map[string]json.RawMessage, 1)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !store.Fresh() {
				store.View(func(languages map[string]json.RawMessage) {
					if !reflect.DeepEqual(languages, oldSnap.Languages) &&
						!reflect.DeepEqual(languages, newSnap.Languages) {
						select {
						case torn <- languages:
						default:
						}
					}
				})
			}
		}()
	}

	close(release)
	wg.Wait()

	select {
	case langs := <-torn:
		t.Fatalf("observed torn snapshot: %v", keys(langs))
	default:
	}

	require.Equal(t, newSnap.Languages, store.Languages())
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
