package artifact

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func serveBytes(t *testing.T, routes map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", dir, err)
	}
	if len(entries) != 0 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("scratch not cleaned up: %v", names)
	}
}

func TestRemoteFile_PersistStreamsAndCleansUp(t *testing.T) {
	payload := bytes.Repeat([]byte("payload-"), 4096)
	srv := serveBytes(t, map[string][]byte{"/a.bin": payload})

	for _, persist := range []bool{true, false} {
		dir := t.TempDir()
		src := &RemoteFile{URI: srv.URL + "/a.bin", Persist: persist, UserAgent: "nfa-test"}
		var got bytes.Buffer
		if err := src.Resolve(context.Background(), Scratch{Dir: dir, Index: 3}, &got); err != nil {
			t.Fatalf("Resolve(persist=%v): %v", persist, err)
		}
		if !bytes.Equal(got.Bytes(), payload) {
			t.Fatalf("persist=%v: body mismatch (%d bytes)", persist, got.Len())
		}
		assertEmptyDir(t, dir)
	}
}

func TestRemoteFile_ZeroLength(t *testing.T) {
	srv := serveBytes(t, map[string][]byte{"/empty": {}})
	dir := t.TempDir()
	var got bytes.Buffer
	if err := NewRemoteFile(srv.URL+"/empty", srv.Client()).Resolve(context.Background(), Scratch{Dir: dir}, &got); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Len() != 0 {
		t.Fatalf("expected no bytes, got %d", got.Len())
	}
	assertEmptyDir(t, dir)
}

func TestRemoteFile_StatusIsNetworkError(t *testing.T) {
	srv := serveBytes(t, nil)
	dir := t.TempDir()
	ref := srv.URL + "/missing"
	err := NewRemoteFile(ref, nil).Resolve(context.Background(), Scratch{Dir: dir, Index: 1}, &bytes.Buffer{})
	if err == nil {
		t.Fatalf("expected error")
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *artifact.Error, got %T", err)
	}
	if e.Kind != KindNetwork || e.Index != 1 || e.Ref != ref {
		t.Fatalf("unexpected error fields: %+v", e)
	}
	if !bytes.Contains([]byte(err.Error()), []byte(ref)) {
		t.Fatalf("message does not name the reference: %s", err)
	}
	assertEmptyDir(t, dir)
}

func TestRemoteFile_ConnectionRefusedIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/gone"
	srv.Close()

	err := NewRemoteFile(url, nil).Resolve(context.Background(), Scratch{Dir: t.TempDir()}, &bytes.Buffer{})
	if !IsKind(err, KindNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestRemoteFile_UnsupportedScheme(t *testing.T) {
	err := NewRemoteFile("ftp://example.com/x", nil).Resolve(context.Background(), Scratch{Dir: t.TempDir()}, &bytes.Buffer{})
	if KindOf(err) != KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRemoteFile_ScratchWriteFailureIsFilesystemError(t *testing.T) {
	srv := serveBytes(t, map[string][]byte{"/a": []byte("A")})
	missing := t.TempDir() + "/does-not-exist"
	err := NewRemoteFile(srv.URL+"/a", nil).Resolve(context.Background(), Scratch{Dir: missing}, &bytes.Buffer{})
	if KindOf(err) != KindFilesystem {
		t.Fatalf("expected filesystem error, got %v", err)
	}
}

func TestRemoteFile_CanceledContext(t *testing.T) {
	srv := serveBytes(t, map[string][]byte{"/a": []byte("A")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRemoteFile(srv.URL+"/a", nil).Resolve(ctx, Scratch{Dir: t.TempDir()}, &bytes.Buffer{})
	if !IsKind(err, KindNetwork) {
		t.Fatalf("expected network error on canceled context, got %v", err)
	}
}
