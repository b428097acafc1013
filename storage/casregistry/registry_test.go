package casregistry

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/spf13/pflag"

	"xdao.co/nfa/storage"
)

type nopCAS struct{ tag string }

func (nopCAS) Put(context.Context, []byte) (cid.Cid, error) { return cid.Undef, storage.ErrInvalidCID }
func (nopCAS) Get(context.Context, cid.Cid) ([]byte, error) { return nil, storage.ErrNotFound }
func (nopCAS) Has(context.Context, cid.Cid) (bool, error) { return false, nil }

func TestRegisterAndOpen(t *testing.T) {
	var flagTag string
	b := Backend{
		Name:        "test-nop",
		Description: "no-op store",
		Usage:       UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagTag, "nop-tag", "", "tag")
		},
		Open: func() (storage.CAS, func() error, error) { return nopCAS{tag: flagTag}, nil, nil },
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			return nopCAS{tag: cfg["nop-tag"]}, nil, nil
		},
	}
	if err := Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := Register(b); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := Register(Backend{Name: "incomplete", Usage: UsageCLI}); err == nil {
		t.Fatalf("expected incomplete backend to be rejected")
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, UsageDaemon)
	if err := fs.Parse([]string{"--nop-tag=from-flag"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cas, _, err := Open("test-nop", UsageDaemon)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if cas.(nopCAS).tag != "from-flag" {
		t.Fatalf("flag value not applied: %+v", cas)
	}

	cas, _, err = OpenWithConfig("test-nop", UsageDaemon, map[string]string{"nop-tag": "from-config"})
	if err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	if cas.(nopCAS).tag != "from-config" {
		t.Fatalf("config value not applied: %+v", cas)
	}

	if _, _, err := Open("test-nop", UsageCLI); err == nil {
		t.Fatalf("expected usage mismatch to fail")
	}
	if _, _, err := Open("does-not-exist", UsageDaemon); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}

	found := false
	for _, n := range Names(UsageDaemon) {
		if n == "test-nop" {
			found = true
		}
	}
	if !found {
		t.Fatalf("test-nop missing from Names")
	}
}
