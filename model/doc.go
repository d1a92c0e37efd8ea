// Package model houses concrete implementations of the core.Processor
// contract, the external collaborator executing an agent's business logic.
// Provider-backed processors live in sub-packages (anthropic, openai) so the
// wiring layer decides which vendor to instantiate; this package provides a
// deterministic mock for tests and demos.
package model
