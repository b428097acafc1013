// Package bundle packs content-addressed blobs into a deterministic tar
// archive so a registry's descriptors can be carried between stores.
//
// Layout:
//
//	blobs/<cid>   raw bytes, re-hashed on both export and import
//	index.json    entry list and optional labels (written last)
//
// Identical inputs produce identical archive bytes.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/nfa/cidutil"
	"xdao.co/nfa/storage"
)

// FormatVersion is the index.json schema version.
const FormatVersion = 1

const (
	blobDir   = "blobs/"
	indexName = "index.json"
)

var (
	ErrUnknownEntry = errors.New("bundle: unknown entry")
	ErrDuplicate    = errors.New("bundle: duplicate entry")
)

var epoch = time.Unix(0, 0).UTC()

// Index describes a bundle's contents.
type Index struct {
	Version int `json:"version"`
	// Codec and Multihash name the CID construction of every entry.
	Codec     string  `json:"cidCodec"`
	Multihash string  `json:"multihash"`
	Entries   []Entry `json:"entries"`
	Labels    []Label `json:"labels,omitempty"`
}

type Entry struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

// Label names an entry, e.g. the contract that references a descriptor.
// Labels are informational; content is addressed by CID alone.
type Label struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

// Export writes the blobs for ids, followed by the index, to w. Duplicate
// ids are written once and entries are ordered by CID string.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []cid.Cid, labels map[string]cid.Cid) (err error) {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}
	keys := make([]string, 0, len(ids))
	byKey := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		k := id.String()
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
			byKey[k] = id
		}
	}
	slices.Sort(keys)

	idx := Index{Version: FormatVersion, Codec: "raw", Multihash: "sha2-256", Entries: make([]Entry, 0, len(keys))}
	names := make([]string, 0, len(labels))
	for name, id := range labels {
		if name == "" {
			return errors.New("bundle: empty label name")
		}
		if _, ok := byKey[id.String()]; !ok {
			return fmt.Errorf("bundle: label %q refers to %s, which is not exported", name, id)
		}
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		idx.Labels = append(idx.Labels, Label{Name: name, CID: labels[name].String()})
	}

	tw := tar.NewWriter(w)
	defer func() {
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
	}()
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := cas.Get(ctx, byKey[k])
		if err != nil {
			return fmt.Errorf("bundle: export %s: %w", k, err)
		}
		if got, err := cidutil.RawSHA256(b); err != nil || got.String() != k {
			return fmt.Errorf("bundle: export %s: %w", k, storage.ErrCIDMismatch)
		}
		if err := writeEntry(tw, blobDir+k, b); err != nil {
			return err
		}
		idx.Entries = append(idx.Entries, Entry{CID: k, Size: len(b)})
	}

	b, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return writeEntry(tw, indexName, append(b, '\n'))
}

// ImportOptions controls Import.
type ImportOptions struct {
	// IgnoreUnknown skips entries outside the bundle layout instead of
	// failing.
	IgnoreUnknown bool
}

// Import stores every blob in r into cas and returns the bundle's index.
// A blob whose bytes do not hash to its name aborts the import with
// storage.ErrCIDMismatch; blobs stored before that point stay stored.
func Import(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) (Index, error) {
	if cas == nil {
		return Index{}, errors.New("bundle: nil CAS")
	}
	var (
		tr       = tar.NewReader(r)
		imported = map[string]int{}
		order    []string
		idx      *Index
	)
	for {
		if err := ctx.Err(); err != nil {
			return Index{}, err
		}
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Index{}, err
		}
		name, ok := cleanPath(h.Name)
		switch {
		case !ok:
			return Index{}, fmt.Errorf("bundle: invalid entry path %q", h.Name)
		case h.Typeflag != tar.TypeReg:
			if opts.IgnoreUnknown {
				continue
			}
			return Index{}, fmt.Errorf("%w: %s (type %c)", ErrUnknownEntry, name, h.Typeflag)
		case name == indexName:
			if idx != nil {
				return Index{}, fmt.Errorf("%w: %s", ErrDuplicate, name)
			}
			idx = new(Index)
			if err := json.NewDecoder(tr).Decode(idx); err != nil {
				return Index{}, fmt.Errorf("bundle: %s: %w", indexName, err)
			}
		case strings.HasPrefix(name, blobDir):
			key := strings.TrimPrefix(name, blobDir)
			id, err := cid.Decode(key)
			if err != nil || !id.Defined() {
				return Index{}, fmt.Errorf("bundle: %s: %w", name, storage.ErrInvalidCID)
			}
			if _, ok := imported[id.String()]; ok {
				return Index{}, fmt.Errorf("%w: %s", ErrDuplicate, name)
			}
			payload, err := io.ReadAll(tr)
			if err != nil {
				return Index{}, err
			}
			if got, err := cidutil.RawSHA256(payload); err != nil || got != id {
				return Index{}, fmt.Errorf("bundle: %s: %w", name, storage.ErrCIDMismatch)
			}
			stored, err := cas.Put(ctx, payload)
			if err != nil {
				return Index{}, fmt.Errorf("bundle: import %s: %w", id, err)
			}
			if stored != id {
				return Index{}, fmt.Errorf("bundle: import %s: %w", id, storage.ErrCIDMismatch)
			}
			imported[id.String()] = len(payload)
			order = append(order, id.String())
		default:
			if opts.IgnoreUnknown {
				continue
			}
			return Index{}, fmt.Errorf("%w: %s", ErrUnknownEntry, name)
		}
	}

	if idx == nil {
		// Bundles without an index still import; synthesize one.
		idx = &Index{Version: FormatVersion, Codec: "raw", Multihash: "sha2-256"}
		for _, k := range order {
			idx.Entries = append(idx.Entries, Entry{CID: k, Size: imported[k]})
		}
		return *idx, nil
	}
	if idx.Version != FormatVersion {
		return Index{}, fmt.Errorf("bundle: unsupported index version %d", idx.Version)
	}
	for _, e := range idx.Entries {
		if size, ok := imported[e.CID]; !ok || size != e.Size {
			return Index{}, fmt.Errorf("bundle: index lists %s (%d bytes) but the archive does not carry it", e.CID, e.Size)
		}
	}
	for _, l := range idx.Labels {
		if _, ok := imported[l.CID]; !ok {
			return Index{}, fmt.Errorf("bundle: label %q refers to missing entry %s", l.Name, l.CID)
		}
	}
	return *idx, nil
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

// cleanPath rejects absolute paths, traversal and empty segments.
func cleanPath(name string) (string, bool) {
	name = strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"), "./")
	if name == "" || strings.HasPrefix(name, "/") {
		return "", false
	}
	if path.Clean(name) != name {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	return name, true
}
