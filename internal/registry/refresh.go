package registry

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/provender-dev/provender/internal/log"
	"github.com/provender-dev/provender/internal/pubsub"
)

// RefreshResult describes how a background refresh ended.
// Installed is true once the in-memory snapshot was replaced, even if the
// subsequent cache write failed.
type RefreshResult struct {
	Installed bool
	Err       error
}

// refresh is the one-shot background task: fetch the remote snapshot,
// validate it, install it, persist it. Every failure is soft - logged,
// published, and absorbed, leaving the previous state exactly as it was.
// It runs exactly once per process lifetime and is never retried.
func (s *Store) refresh(cfg Config) {
	defer close(s.refreshDone)

	ctx, span := otel.Tracer(tracerName).Start(context.Background(), "registry.refresh",
		trace.WithAttributes(attribute.String("url", cfg.RemoteURL)))
	defer span.End()

	result := s.fetchAndInstall(ctx, cfg)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, "refresh failed")
	}

	s.events.Publish(pubsub.RefreshedEvent, result)
}

func (s *Store) fetchAndInstall(ctx context.Context, cfg Config) RefreshResult {
	// Telemetry is best-effort: never abort the refresh because the header
	// could not be built.
	var headerName, headerValue string
	if cfg.Telemetry != nil {
		value, err := cfg.Telemetry.HeaderValue(ctx)
		if err != nil {
			log.Warn(log.CatTelemetry, "Continuing refresh without telemetry header", "error", err)
		} else {
			headerName = cfg.Telemetry.HeaderName()
			headerValue = value
		}
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.RemoteURL, nil)
	if err != nil {
		log.ErrorErr(log.CatRefresh, "Could not build registry request", err, "url", cfg.RemoteURL)
		return RefreshResult{Err: err}
	}
	if headerValue != "" {
		req.Header.Set(headerName, headerValue)
	}
	log.Debug(log.CatRefresh, "Fetching new registry data", "url", cfg.RemoteURL)

	resp, err := client.Do(req)
	if err != nil {
		log.ErrorErr(log.CatRefresh, "Could not fetch new registry data", err, "url", cfg.RemoteURL)
		return RefreshResult{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.ErrorErr(log.CatRefresh, "Could not read new registry data body", err, "url", cfg.RemoteURL)
		return RefreshResult{Err: err}
	}
	content := string(body)

	fresh, err := ParseSnapshot(content)
	if err != nil {
		log.ErrorErr(log.CatRefresh, "Could not parse new registry data", err, "url", cfg.RemoteURL)
		return RefreshResult{Err: err}
	}
	// Same gate as bootstrap: a remote payload for a schema we cannot
	// interpret must not replace a snapshot we can.
	if fresh.Version != ExpectedVersion {
		err := &WrongVersionError{Got: fresh.Version}
		log.ErrorErr(log.CatRefresh, "Rejected new registry data", err, "url", cfg.RemoteURL)
		return RefreshResult{Err: err}
	}

	// Whole-value replacement: readers in flight keep the snapshot they
	// locked, everyone after this sees only the new one.
	s.mu.Lock()
	s.snapshot = fresh
	s.mu.Unlock()
	log.Debug(log.CatRefresh, "Installed refreshed registry snapshot",
		"version", fresh.Version, "languages", len(fresh.Languages))

	// Persist after install. A failed write leaves memory ahead of disk,
	// which the next process start self-corrects by re-fetching.
	if err := writeCacheFile(cfg.CachePath, content); err != nil {
		log.ErrorErr(log.CatCache, "Could not write refreshed registry cache", err, "path", cfg.CachePath)
		return RefreshResult{Installed: true, Err: err}
	}
	log.Debug(log.CatCache, "Refreshed remote registry into cache", "path", cfg.CachePath)

	return RefreshResult{Installed: true}
}

// writeCacheFile truncates and rewrites the cache file in full with the
// fetched text, trimmed of surrounding whitespace.
func writeCacheFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: per-user cache path
	if err != nil {
		return err
	}
	if _, err := f.WriteString(strings.TrimSpace(content)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
