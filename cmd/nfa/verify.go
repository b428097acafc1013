package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"xdao.co/nfa/descriptor"
	"xdao.co/nfa/registry"
	"xdao.co/nfa/verify"
)

type verifyReport struct {
	Contract  string                  `json:"contract,omitempty"`
	VersionID string                  `json:"versionId"`
	Results   []descriptor.CheckResult `json:"results"`
}

// cmdVerify recomputes a descriptor's commitments. The descriptor comes
// from the registry when the argument is a contract address, otherwise
// from a file.
func cmdVerify(e env, args []string) (code int) {
	var (
		c       common
		withABI bool
		jsonOut bool
	)
	fs := newFlagSet(e, "verify", &c, true)
	fs.BoolVar(&withABI, "abi", false, "also check ABI commitments")
	fs.BoolVar(&jsonOut, "json", false, "print a JSON report")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: nfa verify [--abi] [--json] <0xcontract|descriptor-file>")
		return exitUsage
	}
	target := fs.Arg(0)

	cfg, err := c.load(fs)
	if err != nil {
		return exitCode(e, "verify", err)
	}
	log := logger(e, cfg)

	var (
		app    descriptor.AppInfo
		report verifyReport
	)
	if strings.HasPrefix(target, "0x") || strings.HasPrefix(target, "0X") {
		addr, err := registry.ParseAddress(target)
		if err != nil {
			return exitCode(e, "verify", err)
		}
		reg, closeStore, err := c.openRegistry(cfg, log)
		if err != nil {
			return exitCode(e, "verify", err)
		}
		defer func() { _ = closeStore() }()
		if app, err = reg.GetAppInfo(e.ctx, addr); err != nil {
			return exitCode(e, "verify", err)
		}
		report.Contract = addr.String()
	} else if app, err = readDescriptor(target, e.in); err != nil {
		return exitCode(e, "verify", err)
	}

	checker, err := newChecker(&c, cfg, log)
	if err != nil {
		return exitCode(e, "verify", err)
	}
	v := app.VersionInfo()
	report.VersionID = v.VersionID()
	res, err := checker.Check(e.ctx, v)
	if err != nil {
		return exitCode(e, "verify", err)
	}
	report.Results = append(report.Results, res)
	if withABI {
		abi, err := checker.CheckABI(e.ctx, v)
		if err != nil {
			return exitCode(e, "verify", err)
		}
		report.Results = append(report.Results, abi...)
	}

	if jsonOut {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return exitCode(e, "verify", err)
		}
	} else {
		for _, r := range report.Results {
			fmt.Fprintf(e.out, "%s\t%s\t%s\n", r.Ref, r.Verdict, r.Computed.Hex())
		}
	}

	for _, r := range report.Results {
		if r.Verdict == verify.Mismatch {
			log.Warn().Str("ref", r.Ref).Str("expected", r.Expected.Hex()).Str("computed", r.Computed.Hex()).Msg("commitment mismatch")
			return exitMismatch
		}
	}
	return exitOK
}
