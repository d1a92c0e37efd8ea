// Package a2a implements agent-to-agent request/response correlation. A
// caller issues a request to a named target agent and awaits exactly one
// resolution, keyed by a generated request identifier. Duplicate resolutions
// are discarded and unresolved requests are rejected after a timeout, which
// decouples the caller's awaiting context from the asynchronous, possibly
// cross-process, handler execution.
package a2a
