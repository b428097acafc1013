package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ipfs/go-cid"

	"xdao.co/nfa/registry"
	"xdao.co/nfa/storage/bundle"
)

// cmdExport writes every registered descriptor to a bundle labelled with
// the contract that references it.
func cmdExport(e env, args []string) (code int) {
	var (
		c       common
		outPath string
	)
	fs := newFlagSet(e, "export", &c, true)
	fs.StringVarP(&outPath, "out", "o", "", "write the bundle to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(e.errOut, "usage: nfa export [-o bundle.tar]")
		return exitUsage
	}
	cfg, err := c.load(fs)
	if err != nil {
		return exitCode(e, "export", err)
	}
	log := logger(e, cfg)
	cas, closeStore, err := c.openStore(cfg)
	if err != nil {
		return exitCode(e, "export", err)
	}
	if closeStore != nil {
		defer func() { _ = closeStore() }()
	}
	reg, err := registry.OpenLocal(registry.LocalOptions{Dir: cfg.Registry.Dir, CAS: cas, Logger: log})
	if err != nil {
		return exitCode(e, "export", err)
	}
	events, err := reg.ContractsCreated(e.ctx)
	if err != nil {
		return exitCode(e, "export", err)
	}

	ids := make([]cid.Cid, 0, len(events))
	labels := make(map[string]cid.Cid, len(events))
	for _, ev := range events {
		id, err := cid.Decode(ev.Descriptor)
		if err != nil {
			return exitCode(e, "export", fmt.Errorf("contract %s: %w", ev.Contract, err))
		}
		ids = append(ids, id)
		labels[ev.Contract.String()] = id
	}

	var w io.Writer = e.out
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return exitCode(e, "export", err)
		}
		defer func() {
			if err := f.Close(); err != nil && code == exitOK {
				code = exitCode(e, "export", err)
			}
		}()
		w = f
	}
	if err := bundle.Export(e.ctx, w, cas, ids, labels); err != nil {
		return exitCode(e, "export", err)
	}
	log.Info().Int("contracts", len(events)).Msg("bundle exported")
	return exitOK
}

// cmdImport loads a bundle's descriptors into the descriptor store and
// prints each label with its CID.
func cmdImport(e env, args []string) int {
	var (
		c             common
		ignoreUnknown bool
	)
	fs := newFlagSet(e, "import", &c, true)
	fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "skip archive entries outside the bundle layout")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: nfa import [--ignore-unknown] <bundle.tar|->")
		return exitUsage
	}
	cfg, err := c.load(fs)
	if err != nil {
		return exitCode(e, "import", err)
	}
	cas, closeStore, err := c.openStore(cfg)
	if err != nil {
		return exitCode(e, "import", err)
	}
	if closeStore != nil {
		defer func() { _ = closeStore() }()
	}

	var r io.Reader = e.in
	if p := fs.Arg(0); p != "-" {
		f, err := os.Open(p)
		if err != nil {
			return exitCode(e, "import", err)
		}
		defer f.Close()
		r = f
	}
	idx, err := bundle.Import(e.ctx, r, cas, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
	if err != nil {
		if errors.Is(err, bundle.ErrUnknownEntry) {
			fmt.Fprintln(e.errOut, "hint: pass --ignore-unknown to skip foreign entries")
		}
		return exitCode(e, "import", err)
	}
	for _, l := range idx.Labels {
		fmt.Fprintf(e.out, "%s\t%s\n", l.Name, l.CID)
	}
	log := logger(e, cfg)
	log.Info().Int("entries", len(idx.Entries)).Msg("bundle imported")
	return exitOK
}
