package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// RemoteFile fetches one file over HTTP(S).
//
// When Persist is set the body is first written to the scratch file
// "file-<index>", then read back into the digest stream, then removed. This
// keeps a local copy available for the duration of the fetch only.
type RemoteFile struct {
	URI       string
	Client    *http.Client
	Persist   bool
	UserAgent string
}

var _ Source = (*RemoteFile)(nil)

// NewRemoteFile returns a persisting remote file source using client
// (http.DefaultClient when nil).
func NewRemoteFile(uri string, client *http.Client) *RemoteFile {
	return &RemoteFile{URI: uri, Client: client, Persist: true}
}

// parseRemoteURI accepts absolute http and https URIs only.
func parseRemoteURI(uri string) (*url.URL, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func (f *RemoteFile) Ref() string { return f.URI }
func (f *RemoteFile) Type() Type  { return TypeFile }

func (f *RemoteFile) Resolve(ctx context.Context, scratch Scratch, w io.Writer) (err error) {
	u, err := parseRemoteURI(f.URI)
	if err != nil {
		return NewError(KindConfiguration, scratch, f.URI, "parse uri", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return NewError(KindConfiguration, scratch, f.URI, "build request", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return NewError(KindNetwork, scratch, f.URI, "fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewError(KindNetwork, scratch, f.URI, "fetch", fmt.Errorf("unexpected status %s", resp.Status))
	}

	if !f.Persist {
		return f.copyBody(scratch, w, resp.Body)
	}

	path := scratch.Path("file")
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return NewError(KindFilesystem, scratch, f.URI, "create scratch file", err)
	}
	defer func() {
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = errors.Join(err, NewError(KindFilesystem, scratch, f.URI, "remove scratch file", rerr))
		}
	}()

	if cerr := f.copyBody(scratch, out, resp.Body); cerr != nil {
		_ = out.Close()
		return cerr
	}
	if err := out.Close(); err != nil {
		return NewError(KindFilesystem, scratch, f.URI, "write scratch file", err)
	}

	in, err := os.Open(path)
	if err != nil {
		return NewError(KindFilesystem, scratch, f.URI, "open scratch file", err)
	}
	defer in.Close()
	if _, err := io.Copy(w, in); err != nil {
		return NewError(KindFilesystem, scratch, f.URI, "read scratch file", err)
	}
	return nil
}

// copyBody copies body to w, attributing read failures to the network and
// write failures to the filesystem.
func (f *RemoteFile) copyBody(scratch Scratch, w io.Writer, body io.Reader) error {
	tw := &writeTracker{w: w}
	if _, err := io.Copy(tw, body); err != nil {
		if tw.err != nil {
			return NewError(KindFilesystem, scratch, f.URI, "write", tw.err)
		}
		return NewError(KindNetwork, scratch, f.URI, "read body", err)
	}
	return nil
}
