package triage_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolatahmett-invicti/log-heal/internal/agent"
	"github.com/bolatahmett-invicti/log-heal/internal/index"
	"github.com/bolatahmett-invicti/log-heal/internal/triage"
	"github.com/bolatahmett-invicti/log-heal/internal/vcs"
)

// scriptedClient routes each prompt to a stage reply by matching the
// stage-specific phrasing of the prompt templates.
type scriptedClient struct {
	analysis   string
	location   string
	solution   string
	generation string
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	switch {
	case strings.Contains(prompt, "Analyze the following error log records"):
		return c.analysis, nil
	case strings.Contains(prompt, "localize its source"):
		return c.location, nil
	case strings.Contains(prompt, "Propose a fix"):
		return c.solution, nil
	case strings.Contains(prompt, "Fix the following file"):
		return c.generation, nil
	}
	return "", fmt.Errorf("unexpected prompt: %s", prompt[:60])
}

// setupRepo creates a git repository holding one committed Java file.
func setupRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	// No trailing newline: generated replies are whitespace-trimmed, so a
	// no-op fix must match the committed bytes exactly.
	src := "public class UserController {\n    void getUser() { user.getName(); }\n}"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "UserController.java"), []byte(src), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com"},
	})
	require.NoError(t, err)

	return dir
}

func TestPipeline_EndToEnd(t *testing.T) {
	dir := setupRepo(t)

	idx, err := index.Build(dir, index.Options{}, nil)
	require.NoError(t, err)

	client := &scriptedClient{
		analysis: `{
			"error_type": "NullPointerException",
			"error_message": "Cannot invoke getName on null user",
			"stack_trace": "at com.example.UserController.getUser(UserController.java:2)",
			"affected_files": ["UserController.java"],
			"severity": "high"
		}`,
		location: `{
			"error_location": "UserController.java:2:getUser",
			"root_cause": "user is null when getUser runs",
			"relevant_code": "void getUser() { user.getName(); }",
			"summary": "NPE dereferencing a null user"
		}`,
		solution: `{
			"description": "guard against a null user",
			"affected_files": ["UserController.java"],
			"code_changes": {"UserController.java": "add a null check before getName"},
			"tests_needed": ["null user does not throw"]
		}`,
		generation: "```java\npublic class UserController {\n    void getUser() { if (user != null) user.getName(); }\n}\n```",
	}

	committer, err := vcs.NewManager(vcs.Config{RepoPath: dir, AuthorName: "tester", AuthorEmail: "tester@example.com"}, idx, nil)
	require.NoError(t, err)

	orch, err := triage.NewOrchestrator(
		agent.NewLogAnalyzer(client, nil),
		agent.NewErrorLocator(client, idx, nil),
		agent.NewSolutionArchitect(client, nil),
		agent.NewCodeGenerator(client, idx, nil),
		committer,
		nil,
	)
	require.NoError(t, err)

	var observed []string
	observer := func(filename, original, fixed string) {
		observed = append(observed, filename)
	}

	batch := []map[string]any{
		{"level": "ERROR", "message": "NullPointerException in user-service"},
	}
	result, err := orch.Process(context.Background(), batch, nil, "", observer)
	require.NoError(t, err)

	require.True(t, result.Success)
	assert.True(t, strings.HasPrefix(result.BranchName, "fix/nullpointerexception-"), result.BranchName)
	assert.Equal(t, []string{"src/UserController.java"}, result.FilesChanged)
	assert.Equal(t, []string{"UserController.java"}, observed)

	// The committed file carries the generated fix at its indexed path.
	content, err := os.ReadFile(filepath.Join(dir, "src", "UserController.java"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "if (user != null)")

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, result.BranchName, head.Name().Short())
}

func TestPipeline_NoOpFixProducesNoBranch(t *testing.T) {
	dir := setupRepo(t)

	idx, err := index.Build(dir, index.Options{}, nil)
	require.NoError(t, err)

	original, err := os.ReadFile(filepath.Join(dir, "src", "UserController.java"))
	require.NoError(t, err)

	client := &scriptedClient{
		analysis: `{"error_type": "NullPointerException", "stack_trace": "at a.UserController.getUser(UserController.java:2)"}`,
		location: `{"summary": "s"}`,
		solution: `{"description": "no change needed", "affected_files": ["UserController.java"],
			"code_changes": {"UserController.java": "none"}}`,
		// Generation returns the file byte-for-byte unchanged.
		generation: string(original),
	}

	committer, err := vcs.NewManager(vcs.Config{RepoPath: dir, AuthorName: "tester", AuthorEmail: "tester@example.com"}, idx, nil)
	require.NoError(t, err)

	orch, err := triage.NewOrchestrator(
		agent.NewLogAnalyzer(client, nil),
		agent.NewErrorLocator(client, idx, nil),
		agent.NewSolutionArchitect(client, nil),
		agent.NewCodeGenerator(client, idx, nil),
		committer,
		nil,
	)
	require.NoError(t, err)

	result, err := orch.Process(context.Background(), []map[string]any{{"m": "x"}}, nil, "", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.BranchName)
}
