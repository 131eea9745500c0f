package index

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func javaClass(name string, lines int) string {
	var sb strings.Builder
	sb.WriteString("public class " + name + " {\n")
	for i := 0; i < lines; i++ {
		sb.WriteString("    // line filler\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}

func TestBuild_IndexesFilesAndClasses(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/UserController.java", javaClass("UserController", 60))
	writeFile(t, root, "src/util/helpers.py", "class Helper:\n    pass\n")
	writeFile(t, root, "README.md", "# not indexed\n")

	idx, err := Build(root, Options{}, nil)
	require.NoError(t, err)

	files, classes := idx.Stats()
	assert.Equal(t, 2, files)
	assert.Equal(t, 2, classes)

	path, ok := idx.Lookup("UserController.java")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "src", "UserController.java"), path)

	_, ok = idx.Lookup("README.md")
	assert.False(t, ok)
}

func TestBuild_SkipsDependencyDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "node_modules/lib/index.js", "class Hidden {}\n")
	writeFile(t, root, ".git/hooks/sample.py", "class AlsoHidden:\n    pass\n")
	writeFile(t, root, "app/main.py", "class Visible:\n    pass\n")

	idx, err := Build(root, Options{}, nil)
	require.NoError(t, err)

	files, _ := idx.Stats()
	assert.Equal(t, 1, files)

	_, ok := idx.Lookup("index.js")
	assert.False(t, ok)
}

func TestBuild_RejectsMissingRoot(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "nope"), Options{}, nil)
	require.Error(t, err)
}

func TestBuild_CustomExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "class A:\n    pass\n")
	writeFile(t, root, "b.kt", "class B\n")

	idx, err := Build(root, Options{Extensions: []string{".kt"}}, nil)
	require.NoError(t, err)

	_, ok := idx.Lookup("b.kt")
	assert.True(t, ok)
	_, ok = idx.Lookup("a.py")
	assert.False(t, ok)
}

func TestFindRelevantFiles_StackFrameMatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/UserController.java", javaClass("UserController", 60))

	idx, err := Build(root, Options{}, nil)
	require.NoError(t, err)

	stack := "java.lang.NullPointerException\n\tat com.example.UserController.getUser(UserController.java:45)"
	results := idx.FindRelevantFiles(stack, "", 10)
	require.Len(t, results, 1)

	ex := results[0]
	assert.Equal(t, "UserController.java", ex.Filename)
	assert.Equal(t, "45", ex.Line)
	assert.Equal(t, "stack_trace", ex.Relevance)
	assert.Contains(t, ex.Content, "... (lines 35-55) ...")
}

func TestFindRelevantFiles_PythonAndJSFrames(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "handlers.py", "class Handler:\n    pass\n")
	writeFile(t, root, "app.js", "class App {}\n")

	idx, err := Build(root, Options{}, nil)
	require.NoError(t, err)

	pyStack := `Traceback (most recent call last):
  File "handlers.py", line 2, in handle`
	results := idx.FindRelevantFiles(pyStack, "", 10)
	require.Len(t, results, 1)
	assert.Equal(t, "handlers.py", results[0].Filename)

	jsStack := "TypeError: x is undefined\n    at run (app.js:1:10)"
	results = idx.FindRelevantFiles(jsStack, "", 10)
	require.Len(t, results, 1)
	assert.Equal(t, "app.js", results[0].Filename)
}

func TestFindRelevantFiles_ClassMatchFromErrorMessage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/PaymentService.java", javaClass("PaymentService", 5))

	idx, err := Build(root, Options{}, nil)
	require.NoError(t, err)

	results := idx.FindRelevantFiles("", "PaymentService threw an exception", 10)
	require.Len(t, results, 1)
	assert.Equal(t, "class_match", results[0].Relevance)
	assert.Contains(t, results[0].Content, "... (first 8 lines) ...")
}

func TestFindRelevantFiles_DeduplicatesAndCaps(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/UserController.java", javaClass("UserController", 30))
	for i := 0; i < 5; i++ {
		writeFile(t, root, "src/Extra"+string(rune('A'+i))+".java", javaClass("Extra"+string(rune('A'+i)), 3))
	}

	idx, err := Build(root, Options{}, nil)
	require.NoError(t, err)

	// The same frame repeats; the class name also appears in the message.
	stack := "at a.UserController.x(UserController.java:10)\nat a.UserController.y(UserController.java:20)"
	results := idx.FindRelevantFiles(stack, "UserController failed", 10)
	require.Len(t, results, 1)

	// Cap applies across both match kinds.
	msg := "ExtraA ExtraB ExtraC ExtraD ExtraE"
	results = idx.FindRelevantFiles(stack, msg, 3)
	assert.Len(t, results, 3)
}

func TestFindRelevantFiles_RemovedFileReportsReadError(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "gone.py", "class Gone:\n    pass\n")

	idx, err := Build(root, Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	results := idx.FindRelevantFiles(`File "gone.py", line 1`, "", 10)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "[error reading file")
}

func TestContent_ReadError(t *testing.T) {
	root := t.TempDir()
	idx, err := Build(root, Options{}, nil)
	require.NoError(t, err)

	assert.Contains(t, idx.Content(filepath.Join(root, "missing.py")), "[error reading file")
}

func TestBaseFilename(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"UserController.java", "UserController.java"},
		{"src/app/main.py", "main.py"},
		{`C:\proj\src\Program.cs`, "Program.cs"},
		{"./relative/path.js", "path.js"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, baseFilename(tt.ref), tt.ref)
	}
}
