// Package descriptor defines the version and application descriptors that
// carry a code hash commitment, and the checks that recompute it.
//
// VersionInfo and AppInfo are immutable values. Publishing a new digest
// means building a new descriptor; nothing is mutated in place. Accessors
// return copies of slices.
package descriptor

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var ErrInvalid = errors.New("descriptor: invalid")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// PaymentModel labels how an application is paid for.
type PaymentModel string

const (
	PaymentFree PaymentModel = "free"
	PaymentPaid PaymentModel = "paid"
)

func ParsePaymentModel(s string) (PaymentModel, error) {
	switch PaymentModel(strings.ToLower(strings.TrimSpace(s))) {
	case PaymentFree:
		return PaymentFree, nil
	case PaymentPaid:
		return PaymentPaid, nil
	default:
		return "", invalid("unknown payment model %q", s)
	}
}

// VersionSpec is the input to NewVersionInfo.
type VersionSpec struct {
	VersionID    string
	DownloadURIs []string
	CodeHash     Hash
	ABIURIs      []string
	// ABIHash is either one aggregate digest over all ABI URIs, or one
	// digest per ABI URI, or empty.
	ABIHash []Hash
}

// VersionInfo describes one published version and its commitment.
type VersionInfo struct {
	versionID    string
	downloadURIs []string
	codeHash     Hash
	abiURIs      []string
	abiHash      []Hash
}

// NewVersionInfo validates spec and returns the descriptor. Hashes may be
// given in any form ParseHash accepts; they are stored canonically.
func NewVersionInfo(spec VersionSpec) (VersionInfo, error) {
	v := VersionInfo{
		versionID:    strings.TrimSpace(spec.VersionID),
		downloadURIs: slices.Clone(spec.DownloadURIs),
		abiURIs:      slices.Clone(spec.ABIURIs),
		abiHash:      make([]Hash, 0, len(spec.ABIHash)),
	}
	if !spec.CodeHash.IsZero() {
		h, err := ParseHash(string(spec.CodeHash))
		if err != nil {
			return VersionInfo{}, invalid("codeHash: %v", err)
		}
		v.codeHash = h
	}
	for i, h := range spec.ABIHash {
		c, err := ParseHash(string(h))
		if err != nil {
			return VersionInfo{}, invalid("abiHash[%d]: %v", i, err)
		}
		v.abiHash = append(v.abiHash, c)
	}
	if len(v.abiHash) == 0 {
		v.abiHash = nil
	}
	if err := v.validate(); err != nil {
		return VersionInfo{}, err
	}
	return v, nil
}

func (v VersionInfo) validate() error {
	if v.versionID == "" {
		return invalid("versionId is required")
	}
	if _, err := semver.NewVersion(v.versionID); err != nil {
		return invalid("versionId %q is not a semantic version: %v", v.versionID, err)
	}
	for i, u := range v.downloadURIs {
		if strings.TrimSpace(u) == "" {
			return invalid("downloadURIs[%d] is empty", i)
		}
	}
	if !v.codeHash.IsZero() {
		if !canonical(v.codeHash) {
			return invalid("codeHash %q is not a canonical sha256 hex digest", v.codeHash)
		}
		if len(v.downloadURIs) == 0 {
			return invalid("codeHash asserted without downloadURIs")
		}
	}
	for i, h := range v.abiHash {
		if !canonical(h) {
			return invalid("abiHash[%d] %q is not a canonical sha256 hex digest", i, h)
		}
	}
	switch n := len(v.abiHash); {
	case n == 0, n == 1:
	case n == len(v.abiURIs):
	default:
		return invalid("abiHash has %d entries for %d abiURIs", n, len(v.abiURIs))
	}
	// A blank ABI URI is a "no ABI published" marker and may only sit under
	// an absent or placeholder hash.
	for i, u := range v.abiURIs {
		if strings.TrimSpace(u) != "" {
			continue
		}
		if h := v.abiHashFor(i); !h.IsZero() && !h.IsPlaceholder() {
			return invalid("abiURIs[%d] is empty but abiHash commits to %s", i, h)
		}
	}
	return nil
}

func canonical(h Hash) bool {
	c, err := ParseHash(string(h))
	return err == nil && c == h
}

// abiHashFor returns the hash governing abiURIs[i]: the per-URI hash when
// there is one per URI, otherwise the aggregate (or nothing).
func (v VersionInfo) abiHashFor(i int) Hash {
	switch {
	case len(v.abiHash) > 1:
		return v.abiHash[i]
	case len(v.abiHash) == 1:
		return v.abiHash[0]
	default:
		return ""
	}
}

func (v VersionInfo) VersionID() string      { return v.versionID }
func (v VersionInfo) DownloadURIs() []string { return slices.Clone(v.downloadURIs) }
func (v VersionInfo) CodeHash() Hash         { return v.codeHash }
func (v VersionInfo) ABIURIs() []string      { return slices.Clone(v.abiURIs) }
func (v VersionInfo) ABIHash() []Hash        { return slices.Clone(v.abiHash) }

// IsZero reports whether v is the zero value (never constructed).
func (v VersionInfo) IsZero() bool { return v.versionID == "" }

// Spec returns the inputs that would rebuild v.
func (v VersionInfo) Spec() VersionSpec {
	return VersionSpec{
		VersionID:    v.versionID,
		DownloadURIs: v.DownloadURIs(),
		CodeHash:     v.codeHash,
		ABIURIs:      v.ABIURIs(),
		ABIHash:      v.ABIHash(),
	}
}

// WithCodeHash returns a new descriptor committing to h. v is unchanged.
func (v VersionInfo) WithCodeHash(h Hash) (VersionInfo, error) {
	spec := v.Spec()
	spec.CodeHash = h
	return NewVersionInfo(spec)
}

func (v VersionInfo) Equal(o VersionInfo) bool {
	return v.versionID == o.versionID &&
		slices.Equal(v.downloadURIs, o.downloadURIs) &&
		v.codeHash == o.codeHash &&
		slices.Equal(v.abiURIs, o.abiURIs) &&
		slices.Equal(v.abiHash, o.abiHash)
}

// AppInfo describes a published application. It owns exactly one VersionInfo.
type AppInfo struct {
	routerRequired bool
	paymentModel   PaymentModel
	versionInfo    VersionInfo
}

// NewAppInfo validates its inputs and returns the descriptor.
func NewAppInfo(routerRequired bool, payment PaymentModel, version VersionInfo) (AppInfo, error) {
	pm, err := ParsePaymentModel(string(payment))
	if err != nil {
		return AppInfo{}, err
	}
	if version.IsZero() {
		return AppInfo{}, invalid("versionInfo is required")
	}
	if err := version.validate(); err != nil {
		return AppInfo{}, err
	}
	return AppInfo{routerRequired: routerRequired, paymentModel: pm, versionInfo: version}, nil
}

func (a AppInfo) RouterRequired() bool       { return a.routerRequired }
func (a AppInfo) PaymentModel() PaymentModel { return a.paymentModel }
func (a AppInfo) VersionInfo() VersionInfo   { return a.versionInfo }
func (a AppInfo) IsZero() bool               { return a.versionInfo.IsZero() }

// WithVersionInfo returns a new AppInfo owning version. a is unchanged.
func (a AppInfo) WithVersionInfo(version VersionInfo) (AppInfo, error) {
	return NewAppInfo(a.routerRequired, a.paymentModel, version)
}

func (a AppInfo) Equal(o AppInfo) bool {
	return a.routerRequired == o.routerRequired &&
		a.paymentModel == o.paymentModel &&
		a.versionInfo.Equal(o.versionInfo)
}
