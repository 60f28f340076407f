package diff

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitDiff runs `git diff` against baseRef in repoDir and returns the raw
// unified diff. An empty baseRef diffs the working tree against HEAD.
func GitDiff(ctx context.Context, repoDir, baseRef string, contextLines int) (string, error) {
	if baseRef == "" {
		baseRef = "HEAD"
	}
	args := []string{"diff", "--no-color", "--no-ext-diff", fmt.Sprintf("-U%d", contextLines), baseRef}
	return runGit(ctx, repoDir, args...)
}

// RepoRoot returns the top-level directory of the repository containing dir.
func RepoRoot(ctx context.Context, dir string) (string, error) {
	out, err := runGit(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}
