// Package logging provides a minimal logging interface and adapters for PlantMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the bus, dispatcher and workflow engine use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - PlantMeshLogger with contextual cloning helpers (component, workflow)
//     and domain helpers for dispatches, workflow steps and admissions
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eventBus := bus.New(func(o *bus.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
