package descriptor

import (
	_ "crypto/sha256" // registers sha256 for go-digest validation
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	godigest "github.com/opencontainers/go-digest"

	"xdao.co/nfa/digest"
)

// Hash is a SHA-256 commitment in canonical form: 64 lower-case hex
// characters without prefix. The empty Hash means "not asserted".
type Hash string

// ZeroHash is the all-zero bytes32 placeholder used when no ABI is published.
const ZeroHash Hash = "0000000000000000000000000000000000000000000000000000000000000000"

// ParseHash accepts a bare hex digest, a 0x-prefixed bytes32 value, or an
// OCI style "sha256:<hex>" digest and returns the canonical form.
func ParseHash(s string) (Hash, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("descriptor: empty hash")
	}
	if strings.Contains(s, ":") {
		d, err := godigest.Parse(s)
		if err != nil {
			return "", fmt.Errorf("descriptor: invalid digest %q: %w", s, err)
		}
		if d.Algorithm() != godigest.SHA256 {
			return "", fmt.Errorf("descriptor: unsupported digest algorithm %q", d.Algorithm())
		}
		return Hash(d.Encoded()), nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != hex.EncodedLen(digest.Size) {
		return "", fmt.Errorf("descriptor: hash must be %d hex characters, got %d", hex.EncodedLen(digest.Size), len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("descriptor: invalid hash: %w", err)
	}
	return Hash(strings.ToLower(s)), nil
}

// HashOf converts a computed digest into a commitment. Only SHA-256 digests
// can be committed.
func HashOf(d digest.Digest) (Hash, error) {
	if d.IsZero() {
		return "", fmt.Errorf("descriptor: empty digest")
	}
	if d.Algorithm() != digest.SHA256 {
		return "", fmt.Errorf("descriptor: commitments use %s, got %s", digest.SHA256, d.Algorithm())
	}
	return Hash(d.Hex()), nil
}

func (h Hash) IsZero() bool { return h == "" }

// IsPlaceholder reports whether h is the all-zero bytes32 value.
func (h Hash) IsPlaceholder() bool { return h == ZeroHash }

func (h Hash) Hex() string { return string(h) }

// Bytes32 is the registry encoding.
func (h Hash) Bytes32() string {
	if h.IsZero() {
		return ""
	}
	return "0x" + string(h)
}

// OCI renders the commitment as an OCI content digest.
func (h Hash) OCI() godigest.Digest {
	return godigest.NewDigestFromEncoded(godigest.SHA256, string(h))
}

// Digest converts the commitment into a comparable digest value.
func (h Hash) Digest() (digest.Digest, error) {
	return digest.ParseHex(digest.SHA256, string(h))
}

// CID renders the commitment as a CIDv1 (raw + sha2-256).
func (h Hash) CID() (cid.Cid, error) {
	d, err := h.Digest()
	if err != nil {
		return cid.Undef, err
	}
	return d.CID()
}
