// Package digest implements the incremental digest engine that folds an
// ordered sequence of byte chunks into one fixed-size digest.
//
// The digest of a run depends only on the concatenation of every chunk passed
// to Update, in call order. How the stream is chunked never affects the result.
package digest

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/ipfs/go-cid"
	sha256simd "github.com/minio/sha256-simd"
	"github.com/zeebo/blake3"

	"xdao.co/nfa/cidutil"
)

// Algorithm names a supported hash function.
type Algorithm string

const (
	// SHA256 is the commitment algorithm recorded in version descriptors.
	SHA256 Algorithm = "sha256"
	// BLAKE3 is available for local content addressing; registry commitments
	// are always SHA256.
	BLAKE3 Algorithm = "blake3"
)

// Size is the digest length in bytes for every supported algorithm.
const Size = 32

var (
	ErrInvalidState     = errors.New("digest: engine already finalized")
	ErrUnknownAlgorithm = errors.New("digest: unknown algorithm")
	ErrMalformed        = errors.New("digest: malformed digest")
)

// ParseAlgorithm maps a user supplied name to an Algorithm.
// The empty string selects SHA256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sha256", "sha-256", "sha2-256":
		return SHA256, nil
	case "blake3":
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownAlgorithm, s)
	}
}

func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256simd.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownAlgorithm, string(a))
	}
}

// Digest is a finalized digest value. The zero value is "no digest".
type Digest struct {
	alg Algorithm
	sum []byte
}

// Sum hashes data in one call.
func Sum(alg Algorithm, data []byte) (Digest, error) {
	e, err := New(alg)
	if err != nil {
		return Digest{}, err
	}
	if err := e.Update(data); err != nil {
		return Digest{}, err
	}
	return e.Finalize()
}

// FromBytes wraps raw digest bytes. The slice is copied.
func FromBytes(alg Algorithm, sum []byte) (Digest, error) {
	if _, err := alg.newHash(); err != nil {
		return Digest{}, err
	}
	if len(sum) != Size {
		return Digest{}, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformed, Size, len(sum))
	}
	return Digest{alg: alg, sum: append([]byte(nil), sum...)}, nil
}

// ParseHex decodes a hex digest for alg. An optional 0x prefix is accepted.
func ParseHex(alg Algorithm, s string) (Digest, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(s) != hex.EncodedLen(Size) {
		return Digest{}, fmt.Errorf("%w: want %d hex characters, got %d", ErrMalformed, hex.EncodedLen(Size), len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromBytes(alg, b)
}

func (d Digest) Algorithm() Algorithm { return d.alg }

// Bytes returns a copy of the raw digest.
func (d Digest) Bytes() []byte { return append([]byte(nil), d.sum...) }

func (d Digest) IsZero() bool { return len(d.sum) == 0 }

// Hex is the lower-case hex encoding without prefix.
func (d Digest) Hex() string { return hex.EncodeToString(d.sum) }

// Bytes32 is the 0x-prefixed encoding used for bytes32 registry fields.
func (d Digest) Bytes32() string { return "0x" + d.Hex() }

// String renders "<algorithm>:<hex>".
func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}
	return string(d.alg) + ":" + d.Hex()
}

func (d Digest) Equal(o Digest) bool {
	return d.alg == o.alg && bytes.Equal(d.sum, o.sum)
}

// CID renders a SHA256 digest as a CIDv1 (raw + sha2-256).
func (d Digest) CID() (cid.Cid, error) {
	if d.alg != SHA256 {
		return cid.Undef, fmt.Errorf("digest: cid requires %s, have %s", SHA256, d.alg)
	}
	return cidutil.FromSHA256(d.sum)
}
