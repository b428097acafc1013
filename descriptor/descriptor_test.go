package descriptor

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"xdao.co/nfa/digest"
)

const abHex = "38164fbd17603d73f696b8b4d72664d735bb6a7c88577687fd2ae33fd6964153"

func mustSum(t *testing.T, alg digest.Algorithm, s string) digest.Digest {
	t.Helper()
	d, err := digest.Sum(alg, []byte(s))
	if err != nil {
		t.Fatalf("digest.Sum: %v", err)
	}
	return d
}

func mustVersion(t *testing.T, spec VersionSpec) VersionInfo {
	t.Helper()
	v, err := NewVersionInfo(spec)
	if err != nil {
		t.Fatalf("NewVersionInfo: %v", err)
	}
	return v
}

func TestParseHashForms(t *testing.T) {
	upper := strings.ToUpper(abHex)
	for _, in := range []string{abHex, "0x" + abHex, "0X" + upper, "sha256:" + abHex, "  " + abHex + "\n"} {
		h, err := ParseHash(in)
		if err != nil {
			t.Fatalf("ParseHash(%q): %v", in, err)
		}
		if h != Hash(abHex) {
			t.Fatalf("ParseHash(%q) = %q", in, h)
		}
	}
	for _, in := range []string{"", "0x1234", "sha512:" + abHex, strings.Repeat("z", 64), "sha256:nothex"} {
		if _, err := ParseHash(in); err == nil {
			t.Fatalf("ParseHash(%q) expected error", in)
		}
	}
}

func TestHashConversions(t *testing.T) {
	h := Hash(abHex)
	if h.Bytes32() != "0x"+abHex {
		t.Fatalf("Bytes32 = %q", h.Bytes32())
	}
	if h.OCI().String() != "sha256:"+abHex {
		t.Fatalf("OCI = %q", h.OCI())
	}
	d, err := h.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	back, err := HashOf(d)
	if err != nil || back != h {
		t.Fatalf("HashOf = %q, %v", back, err)
	}
	if _, err := h.CID(); err != nil {
		t.Fatalf("CID: %v", err)
	}
	if _, err := HashOf(mustSum(t, digest.BLAKE3, "AB")); err == nil {
		t.Fatalf("expected blake3 digest to be rejected as a commitment")
	}
	if !ZeroHash.IsPlaceholder() || Hash("").IsPlaceholder() {
		t.Fatalf("placeholder detection is wrong")
	}
}

func TestVersionInfoValidation(t *testing.T) {
	cases := []struct {
		name string
		spec VersionSpec
	}{
		{"missing version", VersionSpec{DownloadURIs: []string{"https://x"}}},
		{"not semver", VersionSpec{VersionID: "latest"}},
		{"empty uri", VersionSpec{VersionID: "1.0.0", DownloadURIs: []string{""}}},
		{"hash without uris", VersionSpec{VersionID: "1.0.0", CodeHash: Hash(abHex)}},
		{"short hash", VersionSpec{VersionID: "1.0.0", DownloadURIs: []string{"https://x"}, CodeHash: Hash("0x" + abHex[:62])}},
		{"double prefix", VersionSpec{VersionID: "1.0.0", DownloadURIs: []string{"https://x"}, CodeHash: Hash("0x0x" + abHex)}},
		{"bad abi hash", VersionSpec{VersionID: "1.0.0", ABIURIs: []string{"a"}, ABIHash: []Hash{"sha512:" + abHex}}},
		{"abi count", VersionSpec{VersionID: "1.0.0", ABIURIs: []string{"a", "b", "c"}, ABIHash: []Hash{ZeroHash, ZeroHash}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewVersionInfo(tc.spec)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}

	// Per-URI and aggregate ABI hashes are both accepted.
	mustVersion(t, VersionSpec{VersionID: "1.0.0", ABIURIs: []string{"a", "b"}, ABIHash: []Hash{ZeroHash, Hash(abHex)}})
	mustVersion(t, VersionSpec{VersionID: "v1.2.3-rc.1", ABIURIs: []string{"a", "b"}, ABIHash: []Hash{Hash(abHex)}})
}

func TestVersionInfoStoresCanonicalHashes(t *testing.T) {
	for _, in := range []Hash{Hash("0x" + abHex), Hash("sha256:" + abHex), Hash(strings.ToUpper(abHex))} {
		t.Run(string(in), func(t *testing.T) {
			v := mustVersion(t, VersionSpec{
				VersionID:    "1.0.0",
				DownloadURIs: []string{"https://x"},
				CodeHash:     in,
				ABIURIs:      []string{"https://abi"},
				ABIHash:      []Hash{in},
			})
			if v.CodeHash() != Hash(abHex) {
				t.Fatalf("codeHash stored as %q", v.CodeHash())
			}
			if got := v.ABIHash(); len(got) != 1 || got[0] != Hash(abHex) {
				t.Fatalf("abiHash stored as %v", got)
			}

			b, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if !strings.Contains(string(b), `"codeHash":"0x`+abHex+`"`) {
				t.Fatalf("wire form = %s", b)
			}
			var back VersionInfo
			if err := json.Unmarshal(b, &back); err != nil {
				t.Fatalf("Unmarshal %s: %v", b, err)
			}
			if !back.Equal(v) {
				t.Fatalf("round trip changed the descriptor")
			}
		})
	}
}

func TestVersionInfoIsImmutable(t *testing.T) {
	uris := []string{"https://example.com/a"}
	v := mustVersion(t, VersionSpec{VersionID: "1.0.0", DownloadURIs: uris})
	uris[0] = "https://evil.example.com"
	got := v.DownloadURIs()
	if got[0] != "https://example.com/a" {
		t.Fatalf("descriptor aliases caller slice: %v", got)
	}
	got[0] = "mutated"
	if v.DownloadURIs()[0] != "https://example.com/a" {
		t.Fatalf("accessor returned internal slice")
	}

	committed, err := v.WithCodeHash(Hash(abHex))
	if err != nil {
		t.Fatalf("WithCodeHash: %v", err)
	}
	if !v.CodeHash().IsZero() {
		t.Fatalf("WithCodeHash mutated the receiver")
	}
	if committed.CodeHash() != Hash(abHex) || committed.Equal(v) {
		t.Fatalf("WithCodeHash did not produce a new committed descriptor")
	}
}

func TestBuild(t *testing.T) {
	code := mustSum(t, digest.SHA256, "AB")
	app, err := Build(BuildInput{
		VersionID:    "1.0.0",
		DownloadURIs: []string{"https://example.com/a", "https://example.com/b"},
		ABIURIs:      []string{"https://example.com/abi.json"},
	}, code)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if app.PaymentModel() != PaymentFree {
		t.Fatalf("default payment model = %q", app.PaymentModel())
	}
	v := app.VersionInfo()
	if v.CodeHash() != Hash(abHex) {
		t.Fatalf("codeHash = %q", v.CodeHash())
	}
	if h := v.ABIHash(); len(h) != 1 || !h[0].IsPlaceholder() {
		t.Fatalf("abiHash = %v, want zero placeholder", h)
	}

	if _, err := Build(BuildInput{VersionID: "1.0.0"}, code); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected commitment without URIs to be rejected, got %v", err)
	}
	if _, err := Build(BuildInput{VersionID: "1.0.0", DownloadURIs: []string{"x"}}, digest.Digest{}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected empty digest to be rejected, got %v", err)
	}
	if _, err := Build(BuildInput{VersionID: "1.0.0", DownloadURIs: []string{"x"}, PaymentModel: "barter"}, code); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected unknown payment model to be rejected, got %v", err)
	}
}

func TestAppInfoJSONWireFormat(t *testing.T) {
	code := mustSum(t, digest.SHA256, "AB")
	app, err := Build(BuildInput{
		VersionID:      "2.1.0",
		DownloadURIs:   []string{"https://example.com/a?x=1&y=2"},
		RouterRequired: true,
		PaymentModel:   PaymentPaid,
	}, code)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Canonical(app)
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if !strings.Contains(string(b), `"https://example.com/a?x=1&y=2"`) || strings.Contains(string(b), `\u0026`) {
		t.Fatalf("canonical form escapes URIs: %s", b)
	}
	if b[len(b)-1] == '\n' {
		t.Fatalf("canonical form ends in a newline")
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	vi := raw["versionInfo"].(map[string]any)
	if vi["codeHash"] != "0x"+abHex {
		t.Fatalf("codeHash on the wire = %v", vi["codeHash"])
	}
	if raw["paymentModel"] != "paid" || raw["routerRequired"] != true {
		t.Fatalf("unexpected wire document: %s", b)
	}

	got, err := ParseAppInfo(b)
	if err != nil {
		t.Fatalf("ParseAppInfo: %v", err)
	}
	if !got.Equal(app) {
		t.Fatalf("decoded descriptor differs: %+v vs %+v", got, app)
	}
	again, _ := Canonical(got)
	if string(again) != string(b) {
		t.Fatalf("canonical encoding is not stable:\n%s\n%s", b, again)
	}
}

func TestABIHashStringOrList(t *testing.T) {
	single := `{"versionId":"1.0.0","downloadURIs":[],"abiURIs":["a","b"],"abiHash":"0x` + abHex + `"}`
	var v VersionInfo
	if err := json.Unmarshal([]byte(single), &v); err != nil {
		t.Fatalf("unmarshal single: %v", err)
	}
	if h := v.ABIHash(); len(h) != 1 || h[0] != Hash(abHex) {
		t.Fatalf("abiHash = %v", h)
	}

	list := "versionId: 1.0.0\nabiURIs: [a, b]\nabiHash:\n  - sha256:" + abHex + "\n  - \"0x" + string(ZeroHash) + "\"\n"
	if err := yaml.Unmarshal([]byte(list), &v); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if h := v.ABIHash(); len(h) != 2 || h[0] != Hash(abHex) || !h[1].IsPlaceholder() {
		t.Fatalf("abiHash = %v", h)
	}
}

func TestParseAppInfoYAML(t *testing.T) {
	doc := `
routerRequired: false
paymentModel: free
versionInfo:
  versionId: 0.3.0
  downloadURIs:
    - https://example.com/app.tar
  codeHash: "0x` + abHex + `"
  abiURIs: []
  abiHash: []
`
	app, err := ParseAppInfo([]byte(doc))
	if err != nil {
		t.Fatalf("ParseAppInfo: %v", err)
	}
	if app.VersionInfo().VersionID() != "0.3.0" || app.VersionInfo().CodeHash() != Hash(abHex) {
		t.Fatalf("unexpected descriptor: %+v", app)
	}

	out, err := yaml.Marshal(app)
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}
	if !strings.Contains(string(out), "0x"+abHex) {
		t.Fatalf("yaml output lacks bytes32 hash:\n%s", out)
	}

	if _, err := ParseAppInfo([]byte("paymentModel: free\n")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected missing versionInfo to be rejected, got %v", err)
	}
}

func TestBlankABIURIRequiresPlaceholder(t *testing.T) {
	mustVersion(t, VersionSpec{VersionID: "0.0.1", ABIURIs: []string{""}, ABIHash: []Hash{ZeroHash}})
	mustVersion(t, VersionSpec{VersionID: "0.0.1", ABIURIs: []string{""}})
	_, err := NewVersionInfo(VersionSpec{VersionID: "0.0.1", ABIURIs: []string{""}, ABIHash: []Hash{Hash(abHex)}})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected blank URI under a real hash to be rejected, got %v", err)
	}
}
