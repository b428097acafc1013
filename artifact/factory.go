package artifact

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Factory builds sources from reference strings with shared settings.
type Factory struct {
	HTTPClient *http.Client
	// Persist writes remote files to scratch before folding them.
	Persist   bool
	UserAgent string

	Git     string
	Depth   int
	Branch  string
	Exclude []string
}

// Source builds one source of typ for ref. TypeAuto uses Detect. References
// are checked here so a bad one fails before any source is resolved.
func (f Factory) Source(typ Type, ref string) (Source, error) {
	if typ == TypeAuto || typ == "" {
		typ = Detect(ref)
	}
	switch typ {
	case TypeFile:
		if _, err := parseRemoteURI(ref); err != nil {
			return nil, err
		}
		return &RemoteFile{URI: ref, Client: f.HTTPClient, Persist: f.Persist, UserAgent: f.UserAgent}, nil
	case TypeRepo:
		if err := checkRepoURL(ref); err != nil {
			return nil, err
		}
		if _, err := compileExcludes(f.Exclude); err != nil {
			return nil, err
		}
		return &Repository{URL: ref, Branch: f.Branch, Depth: f.Depth, Git: f.Git, Exclude: f.Exclude}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", typ)
	}
}

// Sources builds one source per reference, in order. Empty references are a
// configuration error naming their index.
func (f Factory) Sources(typ Type, refs []string) ([]Source, error) {
	if len(refs) == 0 {
		return nil, ConfigError("build sources", errors.New("at least one artifact reference is required"))
	}
	out := make([]Source, 0, len(refs))
	for i, ref := range refs {
		if strings.TrimSpace(ref) == "" {
			return nil, NewError(KindConfiguration, Scratch{Index: i}, ref, "build source", errors.New("empty reference"))
		}
		s, err := f.Source(typ, ref)
		if err != nil {
			return nil, NewError(KindConfiguration, Scratch{Index: i}, ref, "build source", err)
		}
		out = append(out, s)
	}
	return out, nil
}
