package descriptor

import (
	"fmt"

	"xdao.co/nfa/digest"
)

// BuildInput carries everything except the computed commitments.
type BuildInput struct {
	VersionID      string
	DownloadURIs   []string
	ABIURIs        []string
	RouterRequired bool
	PaymentModel   PaymentModel
}

// Build assembles an AppInfo committing to code. abi may hold nothing (the
// zero placeholder is recorded when ABI URIs are present), one aggregate
// digest, or one digest per ABI URI.
func Build(in BuildInput, code digest.Digest, abi ...digest.Digest) (AppInfo, error) {
	codeHash, err := HashOf(code)
	if err != nil {
		return AppInfo{}, fmt.Errorf("%w: code digest: %v", ErrInvalid, err)
	}
	spec := VersionSpec{
		VersionID:    in.VersionID,
		DownloadURIs: in.DownloadURIs,
		CodeHash:     codeHash,
		ABIURIs:      in.ABIURIs,
	}
	for i, d := range abi {
		h, err := HashOf(d)
		if err != nil {
			return AppInfo{}, fmt.Errorf("%w: abi digest %d: %v", ErrInvalid, i, err)
		}
		spec.ABIHash = append(spec.ABIHash, h)
	}
	if len(spec.ABIHash) == 0 && len(spec.ABIURIs) > 0 {
		spec.ABIHash = []Hash{ZeroHash}
	}
	v, err := NewVersionInfo(spec)
	if err != nil {
		return AppInfo{}, err
	}
	pm := in.PaymentModel
	if pm == "" {
		pm = PaymentFree
	}
	return NewAppInfo(in.RouterRequired, pm, v)
}
