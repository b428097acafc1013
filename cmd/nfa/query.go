package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"xdao.co/nfa/registry"
	"xdao.co/nfa/storage/casregistry"
)

func cmdGetApp(e env, args []string) int {
	var (
		c      common
		format string
	)
	fs := newFlagSet(e, "get-app", &c, true)
	fs.StringVar(&format, "format", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: nfa get-app [--format yaml|json] <0xcontract>")
		return exitUsage
	}
	addr, err := registry.ParseAddress(fs.Arg(0))
	if err != nil {
		return exitCode(e, "get-app", err)
	}
	cfg, err := c.load(fs)
	if err != nil {
		return exitCode(e, "get-app", err)
	}
	reg, closeStore, err := c.openRegistry(cfg, logger(e, cfg))
	if err != nil {
		return exitCode(e, "get-app", err)
	}
	defer func() { _ = closeStore() }()

	app, err := reg.GetAppInfo(e.ctx, addr)
	if err != nil {
		return exitCode(e, "get-app", err)
	}
	if err := writeDescriptor(e.out, app, format); err != nil {
		return exitCode(e, "get-app", err)
	}
	return exitOK
}

// cmdContracts lists creation events, oldest first.
func cmdContracts(e env, args []string) int {
	var (
		c       common
		jsonOut bool
	)
	fs := newFlagSet(e, "contracts", &c, true)
	fs.BoolVar(&jsonOut, "json", false, "print events as JSON lines")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	cfg, err := c.load(fs)
	if err != nil {
		return exitCode(e, "contracts", err)
	}
	reg, closeStore, err := c.openRegistry(cfg, logger(e, cfg))
	if err != nil {
		return exitCode(e, "contracts", err)
	}
	defer func() { _ = closeStore() }()

	events, err := reg.ContractsCreated(e.ctx)
	if err != nil {
		return exitCode(e, "contracts", err)
	}
	if jsonOut {
		enc := json.NewEncoder(e.out)
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return exitCode(e, "contracts", err)
			}
		}
		return exitOK
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTRACT\tNAME\tSYMBOL\tVERSION\tCODE HASH\tCREATED")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", ev.Contract, ev.Name, ev.Symbol, ev.VersionID, ev.CodeHash.Bytes32(), ev.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
	return exitOK
}

func cmdListBackends(e env, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(e.errOut, "usage: nfa list-backends")
		return exitUsage
	}
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			fmt.Fprintln(e.out, b.Name)
			continue
		}
		fmt.Fprintf(e.out, "%s\t%s\n", b.Name, b.Description)
	}
	return exitOK
}
