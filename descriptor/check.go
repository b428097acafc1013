package descriptor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"xdao.co/nfa/artifact"
	"xdao.co/nfa/digest"
	"xdao.co/nfa/verify"
)

// Hasher computes one ordered digest over sources. *verify.Verifier
// satisfies it.
type Hasher interface {
	Algorithm() digest.Algorithm
	Run(ctx context.Context, sources []artifact.Source, opts ...verify.RunOption) (*verify.Result, error)
}

// CheckResult is the outcome of recomputing a commitment.
type CheckResult struct {
	Ref      string         `json:"ref"`
	Verdict  verify.Verdict `json:"verdict"`
	Expected Hash           `json:"expected,omitempty"`
	Computed Hash           `json:"computed,omitempty"`
}

// Checker recomputes descriptor commitments from their URIs.
type Checker struct {
	Hasher  Hasher
	Sources artifact.Factory
	// Type of every URI; TypeAuto detects per reference.
	Type artifact.Type
}

// Check recomputes the code digest over v's download URIs. A mismatch is
// reported through the verdict; err is reserved for failures to compute.
func (c Checker) Check(ctx context.Context, v VersionInfo) (CheckResult, error) {
	uris := v.DownloadURIs()
	if len(uris) == 0 {
		return CheckResult{}, artifact.ConfigError("check code", errors.New("descriptor has no downloadURIs"))
	}
	computed, err := c.compute(ctx, uris)
	if err != nil {
		return CheckResult{}, err
	}
	return result("code", v.CodeHash(), computed), nil
}

// CheckABI recomputes ABI commitments. One hash is checked as an aggregate
// over all ABI URIs; otherwise each URI is checked against its own hash.
// The zero placeholder and an absent hash yield Unchecked, and blank URIs
// are never fetched.
func (c Checker) CheckABI(ctx context.Context, v VersionInfo) ([]CheckResult, error) {
	uris := v.ABIURIs()
	hashes := v.ABIHash()
	if len(uris) == 0 {
		return nil, nil
	}
	if len(hashes) <= 1 {
		var expected Hash
		if len(hashes) == 1 {
			expected = hashes[0]
		}
		if slices.ContainsFunc(uris, blank) {
			return []CheckResult{{Ref: "abi", Verdict: verify.Unchecked, Expected: expected}}, nil
		}
		computed, err := c.compute(ctx, uris)
		if err != nil {
			return nil, err
		}
		return []CheckResult{result("abi", expected, computed)}, nil
	}
	out := make([]CheckResult, 0, len(uris))
	for i, u := range uris {
		if blank(u) {
			out = append(out, CheckResult{Ref: fmt.Sprintf("abi[%d]", i), Verdict: verify.Unchecked, Expected: hashes[i]})
			continue
		}
		computed, err := c.compute(ctx, []string{u})
		if err != nil {
			return nil, err
		}
		out = append(out, result(fmt.Sprintf("abi[%d]", i), hashes[i], computed))
	}
	return out, nil
}

func (c Checker) compute(ctx context.Context, uris []string) (Hash, error) {
	if c.Hasher == nil {
		return "", artifact.ConfigError("check", errors.New("no hasher configured"))
	}
	if c.Hasher.Algorithm() != digest.SHA256 {
		return "", artifact.ConfigError("check", fmt.Errorf("commitments use %s, hasher uses %s", digest.SHA256, c.Hasher.Algorithm()))
	}
	sources, err := c.Sources.Sources(c.Type, uris)
	if err != nil {
		return "", err
	}
	res, err := c.Hasher.Run(ctx, sources)
	if err != nil {
		return "", err
	}
	return HashOf(res.Digest)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func result(ref string, expected, computed Hash) CheckResult {
	r := CheckResult{Ref: ref, Expected: expected, Computed: computed}
	switch {
	case expected.IsZero() || expected.IsPlaceholder():
		r.Verdict = verify.Unchecked
	case expected == computed:
		r.Verdict = verify.Match
	default:
		r.Verdict = verify.Mismatch
	}
	return r
}
