// Package agent implements the pipeline's stage agents. Each agent turns
// one typed input into one typed output via a single completion call plus
// strict JSON parsing: replies must be JSON-only, code-fence decorations
// are stripped before parsing, a one-element list unwraps to its element,
// and any non-mapping shape is a ContractViolation. Missing keys are
// substituted with documented defaults by pure fill functions.
package agent
