// Package logging provides a minimal logging interface and adapters for brandmesh.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that the planner, agents, coordinator and pipeline use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - BrandMeshLogger with brand/invocation context and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(repo, coordinator, runner.WithLogger(logger))
//
// Message keys are dotted event names such as "planner.step.executed".
package logging
