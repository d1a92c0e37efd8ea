// Package workflow implements the deterministic 3-step production workflow
// that replaces ad-hoc event cascades for order-centric operations. Each run
// executes compliance validation, a conditional batch assessment and a status
// report strictly in sequence over agent-to-agent calls, absorbing
// collaborator failures into structured fallback results and aggregating the
// outcomes into one of a fixed set of terminal dispositions.
package workflow
