// Package ratelimit implements sliding-window admission control for outbound
// language-model provider calls. Admission is a hard gate: a rejected call is
// dropped and counted, never queued or retried by the limiter.
package ratelimit
