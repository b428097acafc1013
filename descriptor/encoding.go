package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Wire forms. Hashes travel in the registry's bytes32 encoding (0x-prefixed);
// parsing accepts every form ParseHash accepts.

type versionWire struct {
	VersionID    string   `json:"versionId" yaml:"versionId"`
	DownloadURIs []string `json:"downloadURIs" yaml:"downloadURIs"`
	CodeHash     string   `json:"codeHash,omitempty" yaml:"codeHash,omitempty"`
	ABIURIs      []string `json:"abiURIs" yaml:"abiURIs"`
	ABIHash      hashList `json:"abiHash" yaml:"abiHash"`
}

type appWire struct {
	RouterRequired bool         `json:"routerRequired" yaml:"routerRequired"`
	PaymentModel   string       `json:"paymentModel" yaml:"paymentModel"`
	VersionInfo    *VersionInfo `json:"versionInfo" yaml:"versionInfo"`
}

// hashList decodes either a single hash string or a list of them.
type hashList []string

func (h *hashList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*h = nil
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*h = hashList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*h = list
	return nil
}

func (h *hashList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			*h = nil
			return nil
		}
		*h = hashList{n.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return err
		}
		*h = list
		return nil
	default:
		return fmt.Errorf("descriptor: abiHash must be a string or a list, line %d", n.Line)
	}
}

func (v VersionInfo) wire() versionWire {
	w := versionWire{
		VersionID:    v.versionID,
		DownloadURIs: nonNil(v.downloadURIs),
		CodeHash:     v.codeHash.Bytes32(),
		ABIURIs:      nonNil(v.abiURIs),
		ABIHash:      hashList{},
	}
	for _, h := range v.abiHash {
		w.ABIHash = append(w.ABIHash, h.Bytes32())
	}
	return w
}

func (w versionWire) versionInfo() (VersionInfo, error) {
	spec := VersionSpec{
		VersionID:    w.VersionID,
		DownloadURIs: w.DownloadURIs,
		ABIURIs:      w.ABIURIs,
	}
	if w.CodeHash != "" {
		h, err := ParseHash(w.CodeHash)
		if err != nil {
			return VersionInfo{}, fmt.Errorf("%w: codeHash: %v", ErrInvalid, err)
		}
		spec.CodeHash = h
	}
	for i, s := range w.ABIHash {
		h, err := ParseHash(s)
		if err != nil {
			return VersionInfo{}, fmt.Errorf("%w: abiHash[%d]: %v", ErrInvalid, i, err)
		}
		spec.ABIHash = append(spec.ABIHash, h)
	}
	return NewVersionInfo(spec)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (v VersionInfo) MarshalJSON() ([]byte, error) { return marshalJSON(v.wire()) }

func (v *VersionInfo) UnmarshalJSON(b []byte) error {
	var w versionWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out, err := w.versionInfo()
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func (v VersionInfo) MarshalYAML() (any, error) { return v.wire(), nil }

func (v *VersionInfo) UnmarshalYAML(n *yaml.Node) error {
	var w versionWire
	if err := n.Decode(&w); err != nil {
		return err
	}
	out, err := w.versionInfo()
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func (a AppInfo) wire() appWire {
	v := a.versionInfo
	return appWire{RouterRequired: a.routerRequired, PaymentModel: string(a.paymentModel), VersionInfo: &v}
}

func (w appWire) appInfo() (AppInfo, error) {
	if w.VersionInfo == nil {
		return AppInfo{}, invalid("versionInfo is required")
	}
	return NewAppInfo(w.RouterRequired, PaymentModel(w.PaymentModel), *w.VersionInfo)
}

func (a AppInfo) MarshalJSON() ([]byte, error) { return marshalJSON(a.wire()) }

func (a *AppInfo) UnmarshalJSON(b []byte) error {
	var w appWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out, err := w.appInfo()
	if err != nil {
		return err
	}
	*a = out
	return nil
}

func (a AppInfo) MarshalYAML() (any, error) { return a.wire(), nil }

func (a *AppInfo) UnmarshalYAML(n *yaml.Node) error {
	var w appWire
	if err := n.Decode(&w); err != nil {
		return err
	}
	out, err := w.appInfo()
	if err != nil {
		return err
	}
	*a = out
	return nil
}

// Canonical returns the stable JSON encoding of a. Field order is fixed and
// HTML characters in URIs are left unescaped, so equal descriptors encode to
// equal bytes and the encoding can be content-addressed.
func Canonical(a AppInfo) ([]byte, error) {
	return marshalJSON(a.wire())
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ParseAppInfo decodes JSON or YAML (YAML is a superset of JSON).
func ParseAppInfo(b []byte) (AppInfo, error) {
	var a AppInfo
	if err := yaml.Unmarshal(b, &a); err != nil {
		return AppInfo{}, err
	}
	if a.IsZero() {
		return AppInfo{}, invalid("empty document")
	}
	return a, nil
}
