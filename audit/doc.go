// Package audit houses concrete implementations of the core.AuditSink
// contract. Sinks are strictly best-effort: a slow or failing sink drops
// entries instead of ever blocking the dispatcher or workflow engine.
package audit
