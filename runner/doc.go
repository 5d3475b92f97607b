// Package runner drives agent invocations end to end.
//
// One invocation reads fresh brand and agent memory, initializes the agent,
// lets it orient, acts on the chosen target under a timeout, writes the whole
// agent memory back, appends the log entry and finally dispatches the effects
// the act produced:
//
//   - core.HandoffEffect goes to the handoff coordinator
//   - core.MessageEffect goes to the mailbox, subject to the brand message rate
//   - core.AlertEffect and core.ReviewEffect are merged into the receiving
//     agent's memory
//
// The log entry is persisted whatever the outcome of act. Invocations may
// run concurrently; coordination happens only through the stored documents.
package runner
