package digest

import "hash"

// Engine accumulates chunks into a single digest.
//
// An Engine is not safe for concurrent use; callers that fetch in parallel
// must serialize writes in the order that defines the digest. After Finalize
// the engine is spent and rejects further input with ErrInvalidState.
type Engine struct {
	alg  Algorithm
	h    hash.Hash
	n    int64
	done bool
}

// New returns an empty engine for alg.
func New(alg Algorithm) (*Engine, error) {
	h, err := alg.newHash()
	if err != nil {
		return nil, err
	}
	return &Engine{alg: alg, h: h}, nil
}

// NewSHA256 returns an engine for the registry commitment algorithm.
func NewSHA256() *Engine {
	e, _ := New(SHA256)
	return e
}

func (e *Engine) Algorithm() Algorithm { return e.alg }

// Len reports the number of bytes folded so far.
func (e *Engine) Len() int64 { return e.n }

// Update appends chunk to the logical input stream.
func (e *Engine) Update(chunk []byte) error {
	if e.done {
		return ErrInvalidState
	}
	// hash.Hash.Write never returns an error.
	_, _ = e.h.Write(chunk)
	e.n += int64(len(chunk))
	return nil
}

// Write implements io.Writer so sources can stream directly into the engine.
func (e *Engine) Write(p []byte) (int, error) {
	if err := e.Update(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Finalize returns the digest of everything passed to Update.
func (e *Engine) Finalize() (Digest, error) {
	if e.done {
		return Digest{}, ErrInvalidState
	}
	e.done = true
	return Digest{alg: e.alg, sum: e.h.Sum(nil)}, nil
}
