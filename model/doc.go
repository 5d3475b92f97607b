// Package model defines the provider-agnostic completion contract used by the
// planner and agents.
//
// A Model turns a normalized Request (instructions, role-based contents, tool
// definitions and a reasoning-effort hint) into a stream of Responses. Provider
// adapters live in the anthropic and openai subpackages. Router picks between a
// tool-calling backend and a general reasoning backend, and ScriptedModel
// replays canned responses for tests.
package model
