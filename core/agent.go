package core

import "context"

// AgentSpec is a declarative agent configuration record, typically loaded
// from YAML. The coordination engine treats the agent's business logic as an
// external collaborator; the spec only describes how the agent participates
// in the event mesh.
type AgentSpec struct {
	// ID uniquely identifies the agent.
	ID string `yaml:"id" json:"id"`
	// Trigger is the chat command or intent keyword routed to this agent.
	Trigger string `yaml:"trigger" json:"trigger"`
	// Subscribes lists event types the agent reacts to. The wildcard "*"
	// subscribes to everything.
	Subscribes []string `yaml:"subscribes" json:"subscribes"`
	// Publishes lists event types the agent emits after a manual dispatch.
	// Auto-triggered dispatches never publish, regardless of this list.
	Publishes []string `yaml:"publishes" json:"publishes"`
	// Priority orders the agent among subscribers of the same event type.
	Priority int `yaml:"priority" json:"priority"`
	// Instructions is the opaque prompt/persona text handed to the processor.
	Instructions string `yaml:"instructions" json:"instructions"`
}

// Processor executes an agent's business logic. Implementations typically
// call a language-model provider; any raised error is treated by the
// dispatcher as a per-dispatch failure, never as fatal to the bus.
//
// autoTriggered reports whether the invocation resulted from an automatic
// event cascade rather than a direct user or timer trigger. Processors may
// use it to adjust prompting; the dispatcher uses it to suppress further
// event publication.
type Processor interface {
	Process(ctx context.Context, agent AgentSpec, message string, autoTriggered bool) (string, error)
}

// NoOpProcessor is the documented default when no processor collaborator is
// wired: it returns an empty response and no error, so dispatches succeed
// without side effects. Use it in tests or read-only deployments.
type NoOpProcessor struct{}

// Process implements Processor.
func (NoOpProcessor) Process(context.Context, AgentSpec, string, bool) (string, error) {
	return "", nil
}
