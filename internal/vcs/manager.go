package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bolatahmett-invicti/log-heal/internal/index"
	"github.com/bolatahmett-invicti/log-heal/internal/triage"
)

const instrumentationName = "github.com/bolatahmett-invicti/log-heal/internal/vcs"

// GitOperationError wraps a failed git operation with the step that failed.
type GitOperationError struct {
	Op  string
	Err error
}

func (e *GitOperationError) Error() string {
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *GitOperationError) Unwrap() error { return e.Err }

// Config controls where and as whom fixes are committed.
type Config struct {
	// RepoPath is the root of the working clone that receives fixes.
	RepoPath string `koanf:"repo_path"`
	// AuthorName and AuthorEmail identify the commit author. When empty
	// the repository's own user.name/user.email config is used; a commit
	// with no resolvable identity fails with an actionable message.
	AuthorName  string `koanf:"author_name"`
	AuthorEmail string `koanf:"author_email"`
	// BranchPrefix prepends every fix branch name.
	BranchPrefix string `koanf:"branch_prefix"`
}

// DefaultConfig returns the commit settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		RepoPath:     ".",
		BranchPrefix: "fix/",
	}
}

// Manager applies fixed file contents to the working tree and commits
// them on an isolated branch. It implements triage.Committer.
type Manager struct {
	cfg    Config
	index  *index.Index // may be nil
	logger *zap.Logger
	tracer trace.Tracer
}

// NewManager creates a commit manager for the clone at cfg.RepoPath.
// idx, when non-nil, resolves bare filenames to repository paths.
func NewManager(cfg Config, idx *index.Index, logger *zap.Logger) (*Manager, error) {
	if cfg.RepoPath == "" {
		return nil, fmt.Errorf("vcs: repo path is required")
	}
	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = "fix/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		index:  idx,
		logger: logger.Named("vcs"),
		tracer: otel.Tracer(instrumentationName),
	}, nil
}

var slugCleanup = regexp.MustCompile(`[^a-z0-9-]+`)

// branchSlug turns an error type into a branch-safe slug.
func branchSlug(errorType string) string {
	s := strings.ToLower(strings.TrimSpace(errorType))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = slugCleanup.ReplaceAllString(s, "")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "unknown-error"
	}
	return s
}

// Commit writes the fixed files into the working tree on a fresh branch
// and commits them. Git failures are reported through the result, not
// the error return; once the branch exists a failure also rolls the
// repository back to its prior branch. Only a repository that cannot be
// opened at all surfaces as an error.
func (m *Manager) Commit(ctx context.Context, analysis *triage.LogAnalysis, fixed triage.FixedFiles) (*triage.VersionControlResult, error) {
	_, span := m.tracer.Start(ctx, "vcs.commit")
	defer span.End()

	branchName := fmt.Sprintf("%s%s-%s", m.cfg.BranchPrefix, branchSlug(analysis.ErrorType), time.Now().Format("20060102-150405"))
	span.SetAttributes(
		attribute.String("branch", branchName),
		attribute.Int("files", len(fixed)),
	)

	repo, err := git.PlainOpen(m.cfg.RepoPath)
	if err != nil {
		return nil, &GitOperationError{Op: "open", Err: err}
	}

	fail := func(op string, cause error) (*triage.VersionControlResult, error) {
		gitErr := &GitOperationError{Op: op, Err: cause}
		m.logger.Error("commit step failed",
			zap.String("branch", branchName), zap.Error(gitErr))
		span.RecordError(gitErr)
		span.SetStatus(codes.Error, op)
		return &triage.VersionControlResult{
			BranchName:   "",
			FilesChanged: []string{},
			Success:      false,
		}, nil
	}

	head, err := repo.Head()
	if err != nil {
		return fail("head", err)
	}
	priorBranch := head.Name()

	wt, err := repo.Worktree()
	if err != nil {
		return fail("worktree", err)
	}

	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branchName),
		Create: true,
	}); err != nil {
		return fail("checkout", err)
	}
	m.logger.Info("created fix branch", zap.String("branch", branchName))

	// The branch exists from here on: every failure restores the prior
	// branch and deletes it before reporting.
	failBranch := func(op string, cause error) (*triage.VersionControlResult, error) {
		m.rollback(repo, wt, priorBranch, branchName)
		return fail(op, cause)
	}

	changed := make([]string, 0, len(fixed))
	for name, content := range fixed {
		path, writeErr := m.writeFile(name, content)
		if writeErr != nil {
			return failBranch("write", writeErr)
		}
		changed = append(changed, path)
		m.logger.Debug("wrote fixed file", zap.String("path", path))
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return failBranch("add", err)
	}

	status, err := wt.Status()
	if err != nil {
		return failBranch("status", err)
	}
	if status.IsClean() {
		m.logger.Info("generated content matches existing files, nothing to commit",
			zap.String("branch", branchName))
		m.rollback(repo, wt, priorBranch, branchName)
		return &triage.VersionControlResult{
			BranchName:   "",
			FilesChanged: []string{},
			Success:      false,
		}, nil
	}

	author, err := m.author(repo)
	if err != nil {
		return failBranch("author", err)
	}

	message := fmt.Sprintf("fix: automated remediation for %s\n\n%s\n\nSeverity: %s\nTimestamp: %s\n",
		analysis.ErrorType, analysis.ErrorMessage, analysis.Severity, analysis.Timestamp.Format(time.RFC3339))
	if _, err := wt.Commit(message, &git.CommitOptions{Author: author}); err != nil {
		return failBranch("commit", err)
	}

	m.logger.Info("committed fix",
		zap.String("branch", branchName),
		zap.Strings("files", changed))

	return &triage.VersionControlResult{
		BranchName:    branchName,
		CommitMessage: message,
		FilesChanged:  changed,
		Success:       true,
	}, nil
}

// writeFile resolves name to a repository path and writes content there.
// A bare filename known to the index lands at its indexed path, anything
// else is joined to the repository root.
func (m *Manager) writeFile(name, content string) (string, error) {
	rel := name
	if m.index != nil {
		if p, ok := m.index.Lookup(filepath.Base(name)); ok {
			if r, err := filepath.Rel(m.index.Root(), p); err == nil {
				rel = r
			}
		}
	}
	rel = filepath.FromSlash(rel)
	abs := filepath.Join(m.cfg.RepoPath, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// author resolves the commit identity: explicit config first, then the
// repository's merged user settings. An unresolvable identity is an
// error so the operator gets told what to set instead of a bare git
// failure.
func (m *Manager) author(repo *git.Repository) (*object.Signature, error) {
	name := m.cfg.AuthorName
	email := m.cfg.AuthorEmail
	if name == "" || email == "" {
		if cfg, err := repo.ConfigScoped(gitconfig.GlobalScope); err == nil {
			if name == "" {
				name = cfg.User.Name
			}
			if email == "" {
				email = cfg.User.Email
			}
		}
	}
	if name == "" || email == "" {
		return nil, fmt.Errorf("author identity is not configured: set git.author_name and git.author_email, or run 'git config user.name' and 'git config user.email' in the repository")
	}
	return &object.Signature{Name: name, Email: email, When: time.Now()}, nil
}

// rollback restores the prior branch and removes the fix branch. Errors
// here are logged only, the caller already has a failure to report.
func (m *Manager) rollback(repo *git.Repository, wt *git.Worktree, prior plumbing.ReferenceName, branch string) {
	if err := wt.Checkout(&git.CheckoutOptions{Branch: prior, Force: true}); err != nil {
		m.logger.Warn("failed to restore prior branch", zap.Error(err))
		return
	}
	if err := repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(branch)); err != nil {
		m.logger.Warn("failed to delete fix branch", zap.String("branch", branch), zap.Error(err))
	}
}
