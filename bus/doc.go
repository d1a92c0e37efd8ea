// Package bus implements the priority-ordered publish/subscribe event bus at
// the heart of the coordination engine. A publish resolves the subscriber
// list from the subscription index (direct subscribers first, wildcard
// subscribers after), dispatches in parallel or sequentially, bounds every
// handler invocation with a per-event timeout and returns one delivery
// outcome per subscriber. Individual handler failures never abort the
// publish; they are reported per subscriber and counted in the bus metrics.
//
// The bus exclusively owns the bounded event history and the subscription
// index; both are safe for concurrent use.
package bus
