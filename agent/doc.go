// Package agent defines the three-phase agent contract and the brand agents
// built on it.
//
// Every agent is driven the same way by the runner:
//
//  1. Initialize merges brand memory into the agent's own memory
//     (instructions, objectives, shared scope). It is idempotent.
//  2. Orient is a pure decision: a stimulus always wins, otherwise the agent
//     scans its memory for stale or actionable state and returns a Target,
//     or nil when there is nothing to do.
//  3. Act is the only mutating phase. User requests go through the planner;
//     maintenance targets run dedicated logic. Act always produces a log entry
//     and never panics past its boundary. The only error it returns is
//     core.ErrUnknownTarget.
//
// BaseAgent carries the shared plumbing; IntelAgent, MarketingAgent,
// ComplianceAgent and OperationsAgent add the per-kind orient rules and
// target handlers.
package agent
