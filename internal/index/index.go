// Package index provides the in-memory retrieval index powering heuristic
// context retrieval: filename and class-name lookups over a scanned source
// tree, and relevance queries driven by stack traces and error text.
package index

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// defaultSkipDirs are directory names that are never scanned. They
// typically hold dependencies, build output, or version-control data.
var defaultSkipDirs = map[string]bool{
	".git":          true,
	".svn":          true,
	".hg":           true,
	"node_modules":  true,
	"vendor":        true,
	".venv":         true,
	"venv":          true,
	"env":           true,
	"__pycache__":   true,
	"bin":           true,
	"obj":           true,
	"build":         true,
	"dist":          true,
	"target":        true,
	".idea":         true,
	".vscode":       true,
	".cache":        true,
	".pytest_cache": true,
	".mypy_cache":   true,
	"site-packages": true,
	"packages":      true,
}

// DefaultExtensions is the allow-list of source file extensions indexed
// when none are configured.
var DefaultExtensions = []string{".py", ".java", ".cs", ".js", ".ts", ".go", ".rb"}

// classPatterns match class and interface declarations across the
// languages the pipeline targets. Intentionally language-agnostic.
var classPatterns = []*regexp.Regexp{
	regexp.MustCompile(`class\s+(\w+)`),
	regexp.MustCompile(`interface\s+(\w+)`),
	regexp.MustCompile(`public\s+class\s+(\w+)`),
}

// stackFramePatterns match call-site references in stack traces. Each
// pattern captures a file reference and, when present, a line number.
var stackFramePatterns = []*regexp.Regexp{
	// Java: at com.example.UserController.getUser(UserController.java:45)
	regexp.MustCompile(`at\s+[\w.$]+\(([\w.]+):(\d+)\)`),
	// Python: File "script.py", line 123
	regexp.MustCompile(`File\s+"([^"]+)",\s+line\s+(\d+)`),
	// JavaScript/TypeScript: file.js:123:45
	regexp.MustCompile(`([\w./\\-]+\.\w+):(\d+):(\d+)`),
	// C#: File.cs:line 123
	regexp.MustCompile(`([\w.]+\.cs):line\s+(\d+)`),
}

var capitalizedToken = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]*\b`)

const (
	excerptContextLines = 10
	excerptHeadLines    = 20
)

// Excerpt is one relevance query hit: a resolved path plus a short content
// window around the referenced line.
type Excerpt struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	Line      string `json:"line"`
	Content   string `json:"content"`
	Relevance string `json:"relevance"`
}

// Options configures an index build.
type Options struct {
	// Extensions is the allow-list of file extensions. Defaults to
	// DefaultExtensions when empty.
	Extensions []string
}

// Index holds filename and class-name lookups over one source tree. It is
// built once and read-only thereafter; queries never fail.
//
// Known limitation: fileIndex conflates same-named files from different
// directories (last write wins during the scan). Acceptable for small
// trees, a correctness risk at scale.
type Index struct {
	root    string
	files   map[string]string   // filename -> path, last write wins
	classes map[string][]string // class name -> paths, insertion order
	logger  *zap.Logger
}

// Build scans the tree rooted at root and returns the populated index.
// Individual file read failures are tolerated (the file keeps its filename
// entry but contributes no class names); only an invalid root fails.
func Build(root string, opts Options, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("index root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("index root must be a directory: %s", root)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[e] = true
	}

	idx := &Index{
		root:    filepath.Clean(root),
		files:   make(map[string]string),
		classes: make(map[string][]string),
		logger:  logger,
	}

	err = filepath.WalkDir(idx.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree, skip rather than abort.
			logger.Debug("skipping unreadable entry", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if defaultSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !allowed[filepath.Ext(path)] {
			return nil
		}

		idx.files[d.Name()] = path

		content, err := os.ReadFile(path)
		if err != nil {
			logger.Debug("skipping class extraction", zap.String("path", path), zap.Error(err))
			return nil
		}
		text := string(content) // lossy: invalid bytes are tolerated as-is
		for _, pattern := range classPatterns {
			for _, m := range pattern.FindAllStringSubmatch(text, -1) {
				idx.classes[m[1]] = append(idx.classes[m[1]], path)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	files, classes := idx.Stats()
	logger.Info("codebase indexed",
		zap.String("root", idx.root),
		zap.Int("files", files),
		zap.Int("classes", classes),
	)
	return idx, nil
}

// Root returns the scanned root path.
func (idx *Index) Root() string { return idx.root }

// Stats returns the number of indexed filenames and distinct class names.
func (idx *Index) Stats() (files, classes int) {
	return len(idx.files), len(idx.classes)
}

// Lookup resolves a bare filename to its indexed path.
func (idx *Index) Lookup(filename string) (string, bool) {
	path, ok := idx.files[filename]
	return path, ok
}

// Content returns the full text of a file. Read failures are reported
// inline rather than as an error, matching the query contract.
func (idx *Index) Content(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("[error reading file: %v]", err)
	}
	return string(content)
}

// FindRelevantFiles answers a relevance query from a stack trace and error
// message. Stack-frame matches come first in discovery order, then class
// matches from capitalized error-message tokens (up to two paths per
// class). At most maxFiles entries are returned and no path appears twice.
// The query never fails: unreadable files yield an excerpt containing the
// read error.
func (idx *Index) FindRelevantFiles(stackTrace, errorMessage string, maxFiles int) []Excerpt {
	var relevant []Excerpt
	seen := make(map[string]bool)

	for _, pattern := range stackFramePatterns {
		for _, m := range pattern.FindAllStringSubmatch(stackTrace, -1) {
			filename := baseFilename(m[1])
			path, ok := idx.files[filename]
			if !ok || seen[path] {
				continue
			}

			line := "?"
			lineNo := 0
			if len(m) > 2 {
				if n, err := strconv.Atoi(m[2]); err == nil {
					line = m[2]
					lineNo = n
				}
			}

			relevant = append(relevant, Excerpt{
				Path:      path,
				Filename:  filename,
				Line:      line,
				Content:   idx.readExcerpt(path, lineNo),
				Relevance: "stack_trace",
			})
			seen[path] = true
		}
	}

	for _, token := range capitalizedToken.FindAllString(errorMessage, -1) {
		paths, ok := idx.classes[token]
		if !ok {
			continue
		}
		if len(paths) > 2 {
			paths = paths[:2]
		}
		for _, path := range paths {
			if seen[path] {
				continue
			}
			relevant = append(relevant, Excerpt{
				Path:      path,
				Filename:  filepath.Base(path),
				Line:      "?",
				Content:   idx.readExcerpt(path, 0),
				Relevance: "class_match",
			})
			seen[path] = true
		}
	}

	if len(relevant) > maxFiles {
		relevant = relevant[:maxFiles]
	}
	return relevant
}

// readExcerpt returns ±excerptContextLines around lineNo when it falls
// inside the file, else the first excerptHeadLines lines.
func (idx *Index) readExcerpt(path string, lineNo int) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("[error reading file: %v]", err)
	}

	lines := strings.Split(string(content), "\n")
	if lineNo > 0 && lineNo <= len(lines) {
		start := lineNo - excerptContextLines - 1
		if start < 0 {
			start = 0
		}
		end := lineNo + excerptContextLines
		if end > len(lines) {
			end = len(lines)
		}
		return fmt.Sprintf("... (lines %d-%d) ...\n%s", start+1, end, strings.Join(lines[start:end], "\n"))
	}

	end := excerptHeadLines
	if end > len(lines) {
		end = len(lines)
	}
	return fmt.Sprintf("... (first %d lines) ...\n%s", end, strings.Join(lines[:end], "\n"))
}

// baseFilename strips any path prefix, tolerating both separators.
func baseFilename(ref string) string {
	ref = strings.ReplaceAll(ref, "\\", "/")
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	return ref
}
