// Package triage implements the five-stage remediation pipeline: log
// analysis, error localization, solution proposal, code generation, and
// version-control commit.
//
// The package declares the typed entities exchanged between stages and the
// stage-agent interfaces; the Orchestrator sequences the stages, enforces
// the early-exit gates, and returns the terminal VersionControlResult.
// Concrete agents live in internal/agent, the committer in internal/vcs.
//
// A run is a single sequential thread of control: each stage strictly
// depends on the prior stage's typed output. Concurrent runs against the
// same repository clone are unsafe; the design assumes at most one
// in-flight run per clone.
package triage
