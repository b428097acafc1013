package artifact

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestDetect(t *testing.T) {
	cases := map[string]Type{
		"https://github.com/MORpheus-Software/NFA":        TypeRepo,
		"https://github.com/MORpheus-Software/NFA/":       TypeRepo,
		"https://example.com/repos/app.git":               TypeRepo,
		"git@github.com:owner/repo.git":                   TypeRepo,
		"ssh://git@example.com/owner/repo":                TypeRepo,
		"https://github.com/owner/repo/releases/app.tgz":  TypeFile,
		"https://example.com/builds/app-1.0.0.tar.gz":     TypeFile,
		"https://raw.githubusercontent.com/o/r/main/x.js": TypeFile,
	}
	for ref, want := range cases {
		if got := Detect(ref); got != want {
			t.Fatalf("Detect(%q) = %s, want %s", ref, got, want)
		}
	}
}

func TestScratchPath(t *testing.T) {
	s := Scratch{Dir: "/tmp/run", Index: 4}
	if got := s.Path("file"); !strings.HasSuffix(got, "file-4") {
		t.Fatalf("Path = %s", got)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	primary := NewError(KindNetwork, Scratch{Index: 1}, "https://a", "fetch", errors.New("boom"))
	cleanup := NewError(KindFilesystem, Scratch{Index: 1}, "https://a", "remove scratch file", errors.New("busy"))
	joined := errors.Join(primary, cleanup)

	if KindOf(joined) != KindNetwork {
		t.Fatalf("KindOf should report the primary failure, got %s", KindOf(joined))
	}
	if !IsKind(joined, KindFilesystem) || !IsKind(joined, KindNetwork) {
		t.Fatalf("IsKind should see both kinds in %v", joined)
	}
	if IsKind(joined, KindConfiguration) {
		t.Fatalf("unexpected configuration kind")
	}
	msg := primary.Error()
	if !strings.Contains(msg, "source 1") || !strings.Contains(msg, "https://a") {
		t.Fatalf("message must name index and reference: %s", msg)
	}

	cfg := ConfigError("load", errors.New("missing"))
	if strings.Contains(cfg.Error(), "source") {
		t.Fatalf("run-level errors should not name a source: %s", cfg)
	}
}

func TestFactory_Sources(t *testing.T) {
	f := Factory{Persist: true, Depth: 1}
	srcs, err := f.Sources(TypeAuto, []string{"https://example.com/a.bin", "https://github.com/o/r"})
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if srcs[0].Type() != TypeFile || srcs[1].Type() != TypeRepo {
		t.Fatalf("unexpected types: %s, %s", srcs[0].Type(), srcs[1].Type())
	}

	if _, err := f.Sources(TypeFile, nil); KindOf(err) != KindConfiguration {
		t.Fatalf("empty list: expected configuration error, got %v", err)
	}
	_, err = f.Sources(TypeFile, []string{"https://example.com/a", " "})
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindConfiguration || e.Index != 1 {
		t.Fatalf("blank reference: unexpected error %v", err)
	}
}

func TestFactory_RejectsBadReferencesUpFront(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("A"))
	}))
	defer srv.Close()

	f := Factory{HTTPClient: srv.Client(), Persist: true}
	cases := []struct {
		typ  Type
		refs []string
	}{
		{TypeFile, []string{srv.URL + "/a", "ftp://bad/x"}},
		{TypeFile, []string{srv.URL + "/a", "/local/path"}},
		{TypeFile, []string{srv.URL + "/a", "https://"}},
		{TypeFile, []string{srv.URL + "/a", "http://%zz"}},
		{TypeRepo, []string{"https://example.com/r.git", "--upload-pack=evil"}},
	}
	for _, tc := range cases {
		srcs, err := f.Sources(tc.typ, tc.refs)
		var e *Error
		if !errors.As(err, &e) || e.Kind != KindConfiguration || e.Index != 1 {
			t.Fatalf("%v: expected configuration error for source 1, got %v", tc.refs, err)
		}
		if srcs != nil {
			t.Fatalf("%v: sources returned alongside an error", tc.refs)
		}
	}

	bad := Factory{Exclude: []string{"[unclosed"}}
	if _, err := bad.Sources(TypeRepo, []string{"https://example.com/r.git"}); KindOf(err) != KindConfiguration {
		t.Fatalf("bad exclude: expected configuration error, got %v", err)
	}
	if n := requests.Load(); n != 0 {
		t.Fatalf("%d requests served before configuration was rejected", n)
	}
}
