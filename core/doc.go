// Package core provides the foundational domain types and collaborator
// contracts used by PlantMesh. It defines the core abstractions for:
//
//   - Events (immutable publish/subscribe records with priority and timeout)
//   - Subscriptions (an agent's interest in an event type)
//   - Deliveries (per-subscriber dispatch outcomes)
//   - Agent specifications (declarative trigger/subscribe/publish records)
//   - Pluggable collaborators for agent processing and audit trailing
//
// The package intentionally keeps implementation concerns (bus dispatch,
// rate limiting, workflow orchestration) out of scope, exposing small
// interfaces to enable custom backends and extensions.
package core
