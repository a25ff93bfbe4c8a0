// Package telemetry builds the opaque header value attached to registry
// refresh requests. Everything here is best-effort: callers treat any error
// as "send no header" and carry on.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/provender-dev/provender/internal/log"
	"github.com/provender-dev/provender/internal/paths"
)

// headerName is the custom HTTP header carrying the telemetry payload.
const headerName = "X-Provender-Telemetry"

// Collector produces the telemetry header from a persisted distinct id and
// build information.
type Collector struct {
	version string
	idPath  string
}

// payload is the serialized header value.
type payload struct {
	DistinctID string `json:"distinct_id"`
	Version    string `json:"version"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
}

// New creates a collector reporting the given tool version. The distinct id
// lives under the per-user state directory.
func New(version string) (*Collector, error) {
	idPath, err := paths.DistinctIDFile()
	if err != nil {
		return nil, fmt.Errorf("resolving distinct-id path: %w", err)
	}
	return &Collector{version: version, idPath: idPath}, nil
}

// HeaderName returns the HTTP header name the value belongs in.
func (c *Collector) HeaderName() string {
	return headerName
}

// HeaderValue serializes the telemetry payload. The distinct id is created
// on first use and reused afterward.
func (c *Collector) HeaderValue(ctx context.Context) (string, error) {
	id, err := c.distinctID()
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(payload{
		DistinctID: id,
		Version:    c.version,
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	})
	if err != nil {
		return "", fmt.Errorf("serializing telemetry header: %w", err)
	}

	log.Debug(log.CatTelemetry, "Built telemetry header", "distinct_id", id)
	return string(data), nil
}

// distinctID reads the persisted anonymous id, minting and storing a new one
// when absent.
func (c *Collector) distinctID() (string, error) {
	data, err := os.ReadFile(c.idPath) //nolint:gosec // G304: per-user state path
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading distinct id: %w", err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(c.idPath, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persisting distinct id: %w", err)
	}
	log.Debug(log.CatTelemetry, "Minted new distinct id")
	return id, nil
}
