package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolatahmett-invicti/log-heal/internal/index"
	"github.com/bolatahmett-invicti/log-heal/internal/triage"
)

// fakeClient replays canned replies and records every prompt it receives.
type fakeClient struct {
	replies []string
	calls   int
	prompts []string
	err     error
}

func (f *fakeClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	reply := f.replies[f.calls%len(f.replies)]
	f.calls++
	return reply, nil
}

func TestLogAnalyzer_ParsesReply(t *testing.T) {
	client := &fakeClient{replies: []string{`{
		"error_type": "NullPointerException",
		"error_message": "Cannot invoke method on null object",
		"stack_trace": "at com.example.UserController.getUser(UserController.java:45)",
		"affected_files": ["UserController.java"],
		"severity": "high"
	}`}}
	analyzer := NewLogAnalyzer(client, nil)

	analysis, err := analyzer.Analyze(context.Background(), []map[string]any{
		{"level": "ERROR", "message": "boom"},
	})
	require.NoError(t, err)
	assert.Equal(t, "NullPointerException", analysis.ErrorType)
	assert.Equal(t, "high", analysis.Severity)
	assert.Equal(t, []string{"UserController.java"}, analysis.AffectedFiles)
	assert.False(t, analysis.Timestamp.IsZero())

	// The batch is embedded in the prompt.
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "boom")
}

func TestLogAnalyzer_MissingFieldsGetDefaults(t *testing.T) {
	client := &fakeClient{replies: []string{`{}`}}
	analyzer := NewLogAnalyzer(client, nil)

	analysis, err := analyzer.Analyze(context.Background(), []map[string]any{{"m": "x"}})
	require.NoError(t, err)
	assert.Equal(t, "Unknown Error", analysis.ErrorType)
	assert.Equal(t, "No message", analysis.ErrorMessage)
	assert.Equal(t, "No stack trace", analysis.StackTrace)
	assert.Equal(t, "medium", analysis.Severity)
	assert.Empty(t, analysis.AffectedFiles)
}

func TestLogAnalyzer_ContractViolation(t *testing.T) {
	client := &fakeClient{replies: []string{"not json at all"}}
	analyzer := NewLogAnalyzer(client, nil)

	_, err := analyzer.Analyze(context.Background(), []map[string]any{{"m": "x"}})
	var violation *ContractViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "log_analyzer", violation.Stage)
}

func TestLogAnalyzer_TransportErrorPassesThrough(t *testing.T) {
	want := errors.New("upstream down")
	client := &fakeClient{err: want}
	analyzer := NewLogAnalyzer(client, nil)

	_, err := analyzer.Analyze(context.Background(), []map[string]any{{"m": "x"}})
	require.ErrorIs(t, err, want)
}

func buildTestIndex(t *testing.T) *index.Index {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "UserController.java")
	require.NoError(t, os.WriteFile(path,
		[]byte("public class UserController {\n    void getUser() {}\n}\n"), 0o644))
	idx, err := index.Build(root, index.Options{}, nil)
	require.NoError(t, err)
	return idx
}

func TestErrorLocator_WithIndexEmbedsExcerpts(t *testing.T) {
	idx := buildTestIndex(t)
	client := &fakeClient{replies: []string{`{
		"error_location": "UserController.java:45:getUser",
		"root_cause": "user object was null",
		"relevant_code": "void getUser() {}",
		"summary": "NPE in getUser"
	}`}}
	locator := NewErrorLocator(client, idx, nil)

	analysis := &triage.LogAnalysis{
		ErrorType:    "NullPointerException",
		ErrorMessage: "Cannot invoke method",
		StackTrace:   "at com.example.UserController.getUser(UserController.java:2)",
		Severity:     "high",
	}
	errCtx, err := locator.Locate(context.Background(), analysis)
	require.NoError(t, err)

	assert.Equal(t, "UserController.java:45:getUser", errCtx.ErrorLocation)
	require.Len(t, errCtx.RelevantFiles, 1)
	assert.Contains(t, errCtx.RelevantFiles[0], "UserController.java")

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Relevant files:")
	assert.Contains(t, client.prompts[0], "UserController.java")
}

func TestErrorLocator_WithoutIndexUsesReducedPrompt(t *testing.T) {
	client := &fakeClient{replies: []string{`{"summary": "s"}`}}
	locator := NewErrorLocator(client, nil, nil)

	analysis := &triage.LogAnalysis{ErrorType: "E", ErrorMessage: "m", StackTrace: "st"}
	errCtx, err := locator.Locate(context.Background(), analysis)
	require.NoError(t, err)

	assert.Equal(t, "Unknown", errCtx.ErrorLocation)
	assert.Equal(t, "Unknown", errCtx.RootCause)
	assert.Equal(t, "N/A", errCtx.RelevantCode)
	assert.Empty(t, errCtx.RelevantFiles)
	assert.NotContains(t, client.prompts[0], "Relevant files:")
}

func TestSolutionArchitect_ParsesReply(t *testing.T) {
	client := &fakeClient{replies: []string{`{
		"description": "add a null check",
		"affected_files": ["UserController.java"],
		"code_changes": {"UserController.java": "guard against null user"},
		"tests_needed": ["null user returns 404"]
	}`}}
	architect := NewSolutionArchitect(client, nil)

	analysis := &triage.LogAnalysis{ErrorType: "NPE", ErrorMessage: "null", Severity: "high"}
	errCtx := &triage.ErrorContext{ErrorLocation: "UserController.java:45", RootCause: "null user"}

	solution, err := architect.Propose(context.Background(), analysis, errCtx, "service runs on JDK 17")
	require.NoError(t, err)
	assert.Equal(t, "add a null check", solution.Description)
	assert.Equal(t, []string{"UserController.java"}, solution.AffectedFiles)
	assert.Equal(t, "guard against null user", solution.CodeChanges["UserController.java"])

	assert.Contains(t, client.prompts[0], "UserController.java:45")
	assert.Contains(t, client.prompts[0], "service runs on JDK 17")
}

func TestSolutionArchitect_NilErrorContext(t *testing.T) {
	client := &fakeClient{replies: []string{`{"description": "d", "affected_files": []}`}}
	architect := NewSolutionArchitect(client, nil)

	solution, err := architect.Propose(context.Background(), &triage.LogAnalysis{ErrorType: "E"}, nil, "")
	require.NoError(t, err)
	assert.Empty(t, solution.AffectedFiles)
	assert.NotContains(t, client.prompts[0], "Error Location:")
}

func TestCodeGenerator_PreloadedContent(t *testing.T) {
	client := &fakeClient{replies: []string{"```java\npublic class Fixed {}\n```"}}
	gen := NewCodeGenerator(client, nil, nil)

	solution := &triage.Solution{
		Description:   "fix it",
		AffectedFiles: []string{"UserController.java"},
		CodeChanges:   map[string]string{"UserController.java": "add null check"},
	}
	preloaded := map[string]string{"UserController.java": "public class UserController {}"}

	fixed, err := gen.Generate(context.Background(), solution, preloaded, nil)
	require.NoError(t, err)
	assert.Equal(t, "public class Fixed {}", fixed["UserController.java"])

	assert.Contains(t, client.prompts[0], "public class UserController {}")
	assert.Contains(t, client.prompts[0], "add null check")
}

func TestCodeGenerator_IndexFallbackAndSkip(t *testing.T) {
	idx := buildTestIndex(t)
	client := &fakeClient{replies: []string{"fixed content"}}
	gen := NewCodeGenerator(client, idx, nil)

	solution := &triage.Solution{
		AffectedFiles: []string{"UserController.java", "Missing.java"},
		CodeChanges:   map[string]string{},
	}
	fixed, err := gen.Generate(context.Background(), solution, map[string]string{}, nil)
	require.NoError(t, err)

	// Indexed file is resolved, unknown file is skipped.
	require.Len(t, fixed, 1)
	assert.Equal(t, "fixed content", fixed["UserController.java"])
	assert.Equal(t, 1, client.calls)
}

func TestCodeGenerator_ObserverReceivesBeforeAfter(t *testing.T) {
	client := &fakeClient{replies: []string{"after"}}
	gen := NewCodeGenerator(client, nil, nil)

	var gotName, gotOriginal, gotFixed string
	observer := func(filename, original, fixed string) {
		gotName, gotOriginal, gotFixed = filename, original, fixed
	}

	solution := &triage.Solution{AffectedFiles: []string{"a.py"}}
	_, err := gen.Generate(context.Background(), solution, map[string]string{"a.py": "before"}, observer)
	require.NoError(t, err)

	assert.Equal(t, "a.py", gotName)
	assert.Equal(t, "before", gotOriginal)
	assert.Equal(t, "after", gotFixed)
}

func TestCodeGenerator_ObserverPanicDoesNotAbort(t *testing.T) {
	client := &fakeClient{replies: []string{"after"}}
	gen := NewCodeGenerator(client, nil, nil)

	observer := func(filename, original, fixed string) {
		panic("misbehaving consumer")
	}

	solution := &triage.Solution{AffectedFiles: []string{"a.py"}}
	fixed, err := gen.Generate(context.Background(), solution, map[string]string{"a.py": "before"}, observer)
	require.NoError(t, err)
	assert.Equal(t, "after", fixed["a.py"])
}
