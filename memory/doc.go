// Package memory persists brand and agent memory and provides the shared,
// cross-agent ("hive mind") memory surfaces.
//
// Repository is the validated read/write boundary for BrandDomainMemory,
// AgentMemory and the append-only agent log. SharedContext holds labelled
// context blocks visible to every agent of a brand, Mailbox carries
// inter-agent messages, and FactStore persists searchable facts. All of them
// sit on top of a docstore.Store; FactStore additionally has a vector-backed
// implementation in the chromem subpackage.
package memory
