package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// SHA256Size is the length in bytes of a sha2-256 digest.
const SHA256Size = 32

// RawSHA256 returns the CIDv1 (raw + sha2-256) addressing data.
func RawSHA256(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// FromSHA256 wraps an already computed sha2-256 digest in a CIDv1 (raw).
//
// The digest is taken as-is; it is not recomputed from content. Use this to
// render a published commitment in CAS form.
func FromSHA256(sum []byte) (cid.Cid, error) {
	if len(sum) != SHA256Size {
		return cid.Undef, fmt.Errorf("cidutil: sha2-256 digest must be %d bytes, got %d", SHA256Size, len(sum))
	}
	mh, err := multihash.Encode(sum, multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// SHA256Of extracts the sha2-256 digest bytes addressed by id.
func SHA256Of(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, fmt.Errorf("cidutil: undefined cid")
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return nil, err
	}
	if dec.Code != multihash.SHA2_256 {
		return nil, fmt.Errorf("cidutil: cid %s is not sha2-256 (code 0x%x)", id, dec.Code)
	}
	return dec.Digest, nil
}
