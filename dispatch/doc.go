// Package dispatch bridges event bus notifications to agent processing. The
// dispatcher gates every processor call behind sliding-window admission
// control, records an audit-trail entry per dispatch and enforces the loop
// prevention invariant: an agent invoked as part of an automatic cascade
// never publishes further events, which bounds cascade depth to exactly one
// hop and keeps the event graph acyclic regardless of how agent
// subscriptions are configured.
package dispatch
