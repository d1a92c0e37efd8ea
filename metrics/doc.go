// Package metrics exposes prometheus collectors for the coordination engine.
// A single Collector is shared by the bus, dispatcher, correlator and
// workflow engine; every component treats a nil Collector as disabled.
package metrics
