package main

import (
	"errors"
	"fmt"

	"xdao.co/nfa/registry"
	"xdao.co/nfa/verify"
)

// cmdPublish registers a descriptor under a new contract and prints the
// contract address.
func cmdPublish(e env, args []string) (code int) {
	var (
		c      common
		name   string
		symbol string
		owner  string
		check  bool
	)
	fs := newFlagSet(e, "publish", &c, true)
	fs.StringVar(&name, "name", "", "contract name")
	fs.StringVar(&symbol, "symbol", "", "contract symbol")
	fs.StringVar(&owner, "owner", "", "owner address (0x...)")
	fs.BoolVar(&check, "check", false, "recompute the code digest and refuse to publish on mismatch")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if name == "" || symbol == "" || owner == "" || fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: nfa publish --name <name> --symbol <symbol> --owner <0xaddress> [--check] <descriptor-file|->")
		return exitUsage
	}
	ownerAddr, err := registry.ParseAddress(owner)
	if err != nil {
		return exitCode(e, "publish", err)
	}
	app, err := readDescriptor(fs.Arg(0), e.in)
	if err != nil {
		return exitCode(e, "publish", err)
	}

	cfg, err := c.load(fs)
	if err != nil {
		return exitCode(e, "publish", err)
	}
	log := logger(e, cfg)

	if check {
		checker, err := newChecker(&c, cfg, log)
		if err != nil {
			return exitCode(e, "publish", err)
		}
		res, err := checker.Check(e.ctx, app.VersionInfo())
		if err != nil {
			return exitCode(e, "publish", err)
		}
		if res.Verdict != verify.Match {
			fmt.Fprintf(e.errOut, "nfa publish: code %s: committed %s, computed %s\n", res.Verdict, res.Expected.Bytes32(), res.Computed.Bytes32())
			return exitMismatch
		}
	}

	reg, closeStore, err := c.openRegistry(cfg, log)
	if err != nil {
		return exitCode(e, "publish", err)
	}
	defer func() {
		if err := closeStore(); err != nil && code == exitOK {
			code = exitCode(e, "publish", err)
		}
	}()

	addr, err := reg.CreateNFAContract(e.ctx, name, symbol, app, app.VersionInfo(), ownerAddr)
	if errors.Is(err, registry.ErrVersionConflict) {
		fmt.Fprintf(e.errOut, "nfa publish: %v\n", err)
		return exitFailure
	}
	if err != nil {
		return exitCode(e, "publish", err)
	}
	fmt.Fprintln(e.out, addr)
	return exitOK
}
