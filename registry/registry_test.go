package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"xdao.co/nfa/cidutil"
	"xdao.co/nfa/descriptor"
	"xdao.co/nfa/storage/localfs"
)

const testCodeHash = "518c4bf773cea6b73b940ff8525167d33343aecfef4edb56d928fd77aa6d89f1"

var testOwner = MustParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

func TestAddressChecksum(t *testing.T) {
	for _, s := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	} {
		a, err := ParseAddress(s)
		if err != nil {
			t.Fatalf("ParseAddress(%q): %v", s, err)
		}
		if a.String() != s {
			t.Fatalf("String() = %q, want %q", a.String(), s)
		}
		lower, err := ParseAddress(strings.ToLower(s))
		if err != nil || lower != a {
			t.Fatalf("lower-case form: %v, %v", lower, err)
		}
	}

	bad := []string{
		"5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAe",
		"0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", // checksum broken
		"0xzzAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	}
	for _, s := range bad {
		if _, err := ParseAddress(s); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("ParseAddress(%q) = %v, want ErrInvalidAddress", s, err)
		}
	}
}

func TestKeccakEmpty(t *testing.T) {
	const want = "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	got := keccak256(nil)
	if hexOf(got) != want {
		t.Fatalf("keccak256(\"\") = %s", hexOf(got))
	}
}

func hexOf(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0x0f])
	}
	return string(out)
}

func openLocal(t *testing.T, dir string) *Local {
	t.Helper()
	cas, err := localfs.New(filepath.Join(dir, "cas"))
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l, err := OpenLocal(LocalOptions{
		Dir:     filepath.Join(dir, "registry"),
		CAS:     cas,
		Factory: MustParseAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"),
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	return l
}

func testApp(t *testing.T, versionID, codeHash string) descriptor.AppInfo {
	t.Helper()
	v, err := descriptor.NewVersionInfo(descriptor.VersionSpec{
		VersionID:    versionID,
		DownloadURIs: []string{"https://github.com/MORpheus-Software/NFA"},
		CodeHash:     descriptor.Hash(codeHash),
		ABIURIs:      []string{""},
		ABIHash:      []descriptor.Hash{descriptor.ZeroHash},
	})
	if err != nil {
		t.Fatalf("NewVersionInfo: %v", err)
	}
	app, err := descriptor.NewAppInfo(false, descriptor.PaymentFree, v)
	if err != nil {
		t.Fatalf("NewAppInfo: %v", err)
	}
	return app
}

func TestCreateThenQueryEvent(t *testing.T) {
	ctx := context.Background()
	l := openLocal(t, t.TempDir())
	app := testApp(t, "0.0.1", testCodeHash)

	addr, err := l.CreateNFAContract(ctx, "Test NFA", "TST", app, app.VersionInfo(), testOwner)
	if err != nil {
		t.Fatalf("CreateNFAContract: %v", err)
	}
	if addr.IsZero() {
		t.Fatalf("zero contract address")
	}

	events, err := l.ContractsCreated(ctx)
	if err != nil {
		t.Fatalf("ContractsCreated: %v", err)
	}
	if len(events) != 1 || events[0].Contract != addr || events[0].Owner != testOwner {
		t.Fatalf("events = %+v", events)
	}

	got, err := l.GetAppInfo(ctx, events[0].Contract)
	if err != nil {
		t.Fatalf("GetAppInfo: %v", err)
	}
	if got.VersionInfo().CodeHash().Bytes32() != "0x"+testCodeHash {
		t.Fatalf("codeHash = %s", got.VersionInfo().CodeHash().Bytes32())
	}
	if !got.Equal(app) {
		t.Fatalf("stored descriptor differs")
	}
}

func TestCreateWithBytes32CodeHash(t *testing.T) {
	ctx := context.Background()
	l := openLocal(t, t.TempDir())
	app := testApp(t, "0.0.1", "0x"+testCodeHash)

	addr, err := l.CreateNFAContract(ctx, "Test NFA", "TST", app, app.VersionInfo(), testOwner)
	if err != nil {
		t.Fatalf("CreateNFAContract: %v", err)
	}
	got, err := l.GetAppInfo(ctx, addr)
	if err != nil {
		t.Fatalf("GetAppInfo: %v", err)
	}
	if got.VersionInfo().CodeHash() != descriptor.Hash(testCodeHash) {
		t.Fatalf("codeHash = %q", got.VersionInfo().CodeHash())
	}
}

func TestVersionReuse(t *testing.T) {
	ctx := context.Background()
	l := openLocal(t, t.TempDir())
	app := testApp(t, "1.0.0", testCodeHash)

	first, err := l.CreateNFAContract(ctx, "App", "APP", app, app.VersionInfo(), testOwner)
	if err != nil {
		t.Fatalf("CreateNFAContract: %v", err)
	}
	again, err := l.CreateNFAContract(ctx, "App", "APP", app, app.VersionInfo(), testOwner)
	if err != nil {
		t.Fatalf("identical re-registration: %v", err)
	}
	if again != first {
		t.Fatalf("identical re-registration returned %s, want %s", again, first)
	}

	changed := testApp(t, "1.0.0", strings.Repeat("ab", 32))
	if _, err := l.CreateNFAContract(ctx, "App", "APP", changed, changed.VersionInfo(), testOwner); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	rejected, err := descriptor.Canonical(changed)
	if err != nil {
		t.Fatal(err)
	}
	rejectedID, err := cidutil.RawSHA256(rejected)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := l.cas.Has(ctx, rejectedID); err != nil || ok {
		t.Fatalf("rejected descriptor was stored (has=%v, err=%v)", ok, err)
	}

	next := testApp(t, "1.1.0", strings.Repeat("ab", 32))
	second, err := l.CreateNFAContract(ctx, "App", "APP", next, next.VersionInfo(), testOwner)
	if err != nil {
		t.Fatalf("new version: %v", err)
	}
	if second == first {
		t.Fatalf("new version reused the contract address")
	}
	events, _ := l.ContractsCreated(ctx)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	l := openLocal(t, t.TempDir())
	app := testApp(t, "1.0.0", testCodeHash)
	other := testApp(t, "2.0.0", testCodeHash)

	cases := []struct {
		name   string
		call   func() error
		target error
	}{
		{"no name", func() error {
			_, err := l.CreateNFAContract(ctx, "", "APP", app, app.VersionInfo(), testOwner)
			return err
		}, ErrInvalidRequest},
		{"no symbol", func() error {
			_, err := l.CreateNFAContract(ctx, "App", " ", app, app.VersionInfo(), testOwner)
			return err
		}, ErrInvalidRequest},
		{"zero owner", func() error {
			_, err := l.CreateNFAContract(ctx, "App", "APP", app, app.VersionInfo(), Address{})
			return err
		}, ErrInvalidAddress},
		{"version mismatch", func() error {
			_, err := l.CreateNFAContract(ctx, "App", "APP", app, other.VersionInfo(), testOwner)
			return err
		}, ErrInvalidRequest},
	}
	for _, tc := range cases {
		if err := tc.call(); !errors.Is(err, tc.target) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.target)
		}
	}

	if _, err := l.GetAppInfo(ctx, testOwner); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetAppInfo unknown: got %v want ErrNotFound", err)
	}
}

func TestReopenReplaysLog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := openLocal(t, dir)
	app := testApp(t, "1.0.0", testCodeHash)
	addr, err := l.CreateNFAContract(ctx, "App", "APP", app, app.VersionInfo(), testOwner)
	if err != nil {
		t.Fatalf("CreateNFAContract: %v", err)
	}

	reopened := openLocal(t, dir)
	got, err := reopened.GetAppInfo(ctx, addr)
	if err != nil {
		t.Fatalf("GetAppInfo after reopen: %v", err)
	}
	if !got.Equal(app) {
		t.Fatalf("descriptor differs after reopen")
	}
	// The nonce continues, so a new contract does not collide.
	next := testApp(t, "1.0.1", testCodeHash)
	addr2, err := reopened.CreateNFAContract(ctx, "App", "APP", next, next.VersionInfo(), testOwner)
	if err != nil {
		t.Fatalf("CreateNFAContract after reopen: %v", err)
	}
	if addr2 == addr {
		t.Fatalf("address collision after reopen")
	}

	if err := os.WriteFile(filepath.Join(dir, "registry", EventsFile), []byte("{not json\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cas, _ := localfs.New(filepath.Join(dir, "cas"))
	if _, err := OpenLocal(LocalOptions{Dir: filepath.Join(dir, "registry"), CAS: cas}); err == nil {
		t.Fatalf("expected corrupt log to fail")
	}
}

func TestConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	l := openLocal(t, t.TempDir())
	app := testApp(t, "3.0.0", testCodeHash)

	var wg sync.WaitGroup
	addrs := make([]Address, 8)
	errs := make([]error, 8)
	for i := range addrs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			addrs[i], errs[i] = l.CreateNFAContract(ctx, "App", "APP", app, app.VersionInfo(), testOwner)
		}()
	}
	wg.Wait()
	for i := range addrs {
		if errs[i] != nil {
			t.Fatalf("create %d: %v", i, errs[i])
		}
		if addrs[i] != addrs[0] {
			t.Fatalf("concurrent identical creates produced different contracts")
		}
	}
	events, _ := l.ContractsCreated(ctx)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
}
