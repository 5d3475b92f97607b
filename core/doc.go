// Package core provides the foundational domain types shared by the brandmesh
// runtime. It defines:
//
//   - BrandDomainMemory (tenant-owned brand profile, objectives, constraints)
//   - AgentMemory (a closed, tagged variant per agent kind)
//   - Target (the decoded action chosen by an agent's orient step)
//   - AgentLogEntry, AgentHandoff and Thread audit records
//   - Effects (side effects emitted by tools and dispatched by the caller)
//   - ToolContext (the scoped surface handed to tool shims)
//   - Content / Part (planner transcript segments)
//
// Persistence, model access and orchestration live in sibling packages; this
// package only carries types, validation and small helpers.
package core
