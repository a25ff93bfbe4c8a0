package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/provender-dev/provender/internal/log"
	"github.com/provender-dev/provender/internal/paths"
	"github.com/provender-dev/provender/internal/registry"
	"github.com/provender-dev/provender/internal/telemetry"
	"github.com/provender-dev/provender/internal/tracing"
)

// shutdownTimeout bounds the trace flush on exit.
const shutdownTimeout = 5 * time.Second

// openStore opens the registry store with the loaded config. The returned
// cleanup flushes traces and must be called before the process exits.
func openStore() (*registry.Store, func(), error) {
	tracingCfg := cfg.Tracing
	if tracingCfg.Enabled && tracingCfg.Exporter == "file" && tracingCfg.FilePath == "" {
		if path, err := paths.TraceFile(); err == nil {
			tracingCfg.FilePath = path
		}
	}
	provider, err := tracing.NewProvider(tracingCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing tracing: %w", err)
	}

	var source registry.TelemetrySource
	if !cfg.DisableTelemetry {
		collector, err := telemetry.New(version)
		if err != nil {
			// Telemetry is best effort, the refresh works without the header
			log.Warn(log.CatTelemetry, "Telemetry unavailable", "error", err.Error())
		} else {
			source = collector
		}
	}

	store, err := registry.Open(registry.Config{
		Offline:   cfg.Offline,
		RemoteURL: cfg.RegistryURL,
		Telemetry: source,
	})
	if err != nil {
		shutdown(provider)
		return nil, nil, err
	}

	if !cfg.Offline {
		observeRefresh(store)
	}

	return store, func() { shutdown(provider) }, nil
}

// observeRefresh logs the background refresh outcome when it lands before the
// process exits. Abandoning the subscription at exit is as safe as abandoning
// the refresher itself.
func observeRefresh(store *registry.Store) {
	events := store.Events().Subscribe(context.Background())
	go func() {
		for event := range events {
			result := event.Payload
			if result.Err != nil {
				log.ErrorErr(log.CatRefresh, "Background refresh failed", result.Err, "installed", result.Installed)
				continue
			}
			log.Debug(log.CatRefresh, "Background refresh installed new snapshot")
		}
	}()
}

func shutdown(provider *tracing.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		log.ErrorErr(log.CatTrace, "Trace shutdown failed", err)
	}
}
