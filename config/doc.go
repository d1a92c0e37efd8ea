// Package config loads declarative agent definitions from YAML and watches
// the definition file for changes. A reload hands the full agent set to the
// dispatcher, which rebuilds the subscription index atomically; there is no
// incremental diffing, so reloads are safely re-runnable.
package config
