package triage

import (
	"context"
	"fmt"
	"time"
)

// Stage represents a pipeline stage in strict execution order.
type Stage string

const (
	// StageIdle is the initial state before any agent has run.
	StageIdle Stage = "idle"

	// StageAnalyzed means the log batch has been condensed into a LogAnalysis.
	StageAnalyzed Stage = "analyzed"

	// StageLocalized means the error source has been localized in the codebase.
	StageLocalized Stage = "localized"

	// StageProposed means a remediation has been proposed.
	StageProposed Stage = "proposed"

	// StageGenerated means replacement file content has been generated.
	StageGenerated Stage = "generated"

	// StageCommitted is the terminal state, success or failure.
	StageCommitted Stage = "committed"
)

// AllStages returns the stages in execution order.
func AllStages() []Stage {
	return []Stage{StageIdle, StageAnalyzed, StageLocalized, StageProposed, StageGenerated, StageCommitted}
}

// Next returns the stage following s, or an error when s is terminal or unknown.
func (s Stage) Next() (Stage, error) {
	stages := AllStages()
	for i, st := range stages {
		if st == s {
			if i == len(stages)-1 {
				return "", fmt.Errorf("stage %s is terminal", s)
			}
			return stages[i+1], nil
		}
	}
	return "", fmt.Errorf("unknown stage: %s", s)
}

// LogAnalysis is the condensed signature of the dominant error in a log
// batch. It is produced once per run and is immutable after creation.
type LogAnalysis struct {
	ErrorType     string    `json:"error_type"`
	ErrorMessage  string    `json:"error_message"`
	StackTrace    string    `json:"stack_trace"`
	AffectedFiles []string  `json:"affected_files"`
	Severity      string    `json:"severity"`
	Timestamp     time.Time `json:"timestamp"`
}

// ErrorContext is the localized error source derived from a LogAnalysis
// plus retrieval over the indexed codebase.
type ErrorContext struct {
	ErrorLocation string `json:"error_location"`
	RootCause     string `json:"root_cause"`
	RelevantCode  string `json:"relevant_code"`
	Summary       string `json:"summary"`

	// RelevantFiles lists every path consulted during retrieval,
	// regardless of whether the model cited it.
	RelevantFiles []string `json:"relevant_files"`
}

// Solution is a proposed remediation. AffectedFiles is the authoritative,
// ordered list of files the CodeGenerator will attempt; an empty list is
// the pipeline's designed early-exit signal, not an error.
type Solution struct {
	Description   string            `json:"description"`
	AffectedFiles []string          `json:"affected_files"`
	CodeChanges   map[string]string `json:"code_changes"`
	TestsNeeded   []string          `json:"tests_needed"`
}

// FixedFiles maps an affected-file identifier to its full replacement
// text. It is ephemeral, held only until commit.
type FixedFiles map[string]string

// VersionControlResult is the terminal entity of a run. Success is false
// whenever branch creation, any write, or the commit fails, or there is
// nothing to commit.
type VersionControlResult struct {
	BranchName    string   `json:"branch_name"`
	CommitMessage string   `json:"commit_message"`
	FilesChanged  []string `json:"files_changed"`
	Success       bool     `json:"success"`
}

// FileObserver receives one notification per fixed file, in generation
// order, with the before/after pair. Observer failures never abort the
// pipeline.
type FileObserver func(filename, original, fixed string)

// LogAnalyzer condenses a batch of arbitrary log records into one LogAnalysis.
type LogAnalyzer interface {
	Analyze(ctx context.Context, batch []map[string]any) (*LogAnalysis, error)
}

// ErrorLocator localizes the error source for an analysis.
type ErrorLocator interface {
	Locate(ctx context.Context, analysis *LogAnalysis) (*ErrorContext, error)
}

// SolutionArchitect proposes a remediation for an analysis.
// errCtx and extraContext may be empty.
type SolutionArchitect interface {
	Propose(ctx context.Context, analysis *LogAnalysis, errCtx *ErrorContext, extraContext string) (*Solution, error)
}

// CodeGenerator produces full replacement content for each affected file.
type CodeGenerator interface {
	Generate(ctx context.Context, solution *Solution, preloaded map[string]string, observer FileObserver) (FixedFiles, error)
}

// Committer applies fixed files on an isolated branch and commits them.
type Committer interface {
	Commit(ctx context.Context, analysis *LogAnalysis, fixed FixedFiles) (*VersionControlResult, error)
}
