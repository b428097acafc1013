// Package artifact resolves artifact references (remote file URIs and source
// repository URLs) into ordered byte streams.
//
// A Source owns every scratch file or directory it creates during one call to
// Resolve and removes them before returning, on success and on failure.
package artifact

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
)

// Type distinguishes the two source variants.
type Type string

const (
	TypeFile Type = "file"
	TypeRepo Type = "repo"
	// TypeAuto picks TypeRepo or TypeFile per reference, see Detect.
	TypeAuto Type = "auto"
)

// ParseType maps a user supplied name to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "files":
		return TypeFile, nil
	case "repo", "repos", "git":
		return TypeRepo, nil
	case "", "auto":
		return TypeAuto, nil
	default:
		return "", fmt.Errorf("unknown source type %q", s)
	}
}

// Scratch is the scratch area lent to one Resolve call.
//
// Dir is shared by every source of a run; Index is the source's position in
// the run and keys the names the source may create under Dir.
type Scratch struct {
	Dir   string
	Index int
}

// Path returns the scratch path reserved for this source with the given prefix,
// e.g. Path("file") is "<dir>/file-<index>".
func (s Scratch) Path(prefix string) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s-%d", prefix, s.Index))
}

// Source produces the ordered byte stream of a single artifact reference.
type Source interface {
	// Ref is the original reference string, used in errors and reports.
	Ref() string
	Type() Type
	// Resolve writes the artifact's bytes to w in their canonical order.
	// Everything created under scratch is removed before Resolve returns.
	Resolve(ctx context.Context, scratch Scratch, w io.Writer) error
}

// Detect guesses the source type of ref.
//
// A reference is a repository when it uses the git or ssh scheme, uses scp
// syntax (git@host:path), or its path ends in ".git". A bare "https://host/owner/repo"
// on a well known forge (github.com, gitlab.com, bitbucket.org) is also a
// repository. Everything else is a remote file.
func Detect(ref string) Type {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "git@") {
		return TypeRepo
	}
	u, err := url.Parse(ref)
	if err != nil {
		return TypeFile
	}
	switch u.Scheme {
	case "git", "ssh":
		return TypeRepo
	}
	p := strings.TrimSuffix(u.Path, "/")
	if strings.HasSuffix(p, ".git") {
		return TypeRepo
	}
	switch strings.ToLower(u.Hostname()) {
	case "github.com", "gitlab.com", "bitbucket.org":
		if len(strings.Split(strings.Trim(p, "/"), "/")) == 2 {
			return TypeRepo
		}
	}
	return TypeFile
}

// writeTracker remembers whether a copy failed on the write side, so a
// failed io.Copy can be attributed to the reader or the writer.
type writeTracker struct {
	w   io.Writer
	err error
}

func (t *writeTracker) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}
