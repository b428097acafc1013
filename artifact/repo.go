package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultGit is the git binary used when Repository.Git is empty.
const DefaultGit = "git"

// Repository clones a git repository and streams the bytes of every regular
// file in its tree.
//
// Files are visited in byte-wise lexicographic order of their slash-separated
// path relative to the repository root. The ".git" directory, symlinks and
// paths matching Exclude are skipped. This ordering is part of the digest
// contract: it does not depend on filesystem enumeration order.
type Repository struct {
	URL string
	// Branch selects a branch or tag to check out; empty uses the remote HEAD.
	Branch string
	// Depth limits history for the clone; 0 clones full history. History does
	// not affect the digest, only clone time.
	Depth int
	// Git is the git binary; DefaultGit when empty.
	Git string
	// Exclude holds glob patterns (gobwas/glob syntax, '/' separated) of
	// paths to leave out of the stream.
	Exclude []string
}

var _ Source = (*Repository)(nil)

// NewRepository returns a shallow-clone repository source.
func NewRepository(url string) *Repository {
	return &Repository{URL: url, Depth: 1}
}

func checkRepoURL(url string) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("empty repository url")
	}
	if strings.HasPrefix(url, "-") {
		return errors.New("repository url must not start with '-'")
	}
	return nil
}

func (r *Repository) Ref() string { return r.URL }
func (r *Repository) Type() Type  { return TypeRepo }

func (r *Repository) Resolve(ctx context.Context, scratch Scratch, w io.Writer) (err error) {
	if err := checkRepoURL(r.URL); err != nil {
		return NewError(KindConfiguration, scratch, r.URL, "parse url", err)
	}
	matcher, err := compileExcludes(r.Exclude)
	if err != nil {
		return NewError(KindConfiguration, scratch, r.URL, "compile excludes", err)
	}

	dir := scratch.Path("repo")
	defer func() {
		if rerr := os.RemoveAll(dir); rerr != nil {
			err = errors.Join(err, NewError(KindFilesystem, scratch, r.URL, "remove clone", rerr))
		}
	}()

	if err := r.clone(ctx, dir); err != nil {
		return NewError(KindNetwork, scratch, r.URL, "clone", err)
	}

	files, err := walkFiles(dir, matcher)
	if err != nil {
		return NewError(KindFilesystem, scratch, r.URL, "walk", err)
	}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return NewError(KindNetwork, scratch, r.URL, "resolve", err)
		}
		if err := copyFile(w, dir, rel); err != nil {
			return NewError(KindFilesystem, scratch, r.URL, "read "+rel, err)
		}
	}
	return nil
}

func (r *Repository) clone(ctx context.Context, dir string) error {
	args := []string{"clone", "--quiet", "--no-tags"}
	if r.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(r.Depth))
	}
	if r.Branch != "" {
		args = append(args, "--branch", r.Branch)
	}
	args = append(args, "--", r.URL, dir)

	git := r.Git
	if git == "" {
		git = DefaultGit
	}
	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, git, args...)
	command.Stderr = &stderr
	command.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if err := command.Run(); err != nil {
		return fmt.Errorf("git %s: %w (stderr: %s)", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
