// Command nfa builds, publishes and verifies application descriptors.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "xdao.co/nfa/storage/grpccas"
	_ "xdao.co/nfa/storage/localfs"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}

// Exit codes shared by every subcommand.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitMismatch = 3
)

type env struct {
	ctx    context.Context
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	getenv func(string) string
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer, getenv func(string) string) int {
	if len(args) == 0 {
		printUsage(errOut)
		return exitUsage
	}
	e := env{ctx: ctx, in: in, out: out, errOut: errOut, getenv: getenv}

	switch args[0] {
	case "describe":
		return cmdDescribe(e, args[1:])
	case "publish":
		return cmdPublish(e, args[1:])
	case "verify":
		return cmdVerify(e, args[1:])
	case "get-app":
		return cmdGetApp(e, args[1:])
	case "contracts":
		return cmdContracts(e, args[1:])
	case "export":
		return cmdExport(e, args[1:])
	case "import":
		return cmdImport(e, args[1:])
	case "list-backends":
		return cmdListBackends(e, args[1:])
	case "version":
		fmt.Fprintln(out, version)
		return exitOK
	case "help", "-h", "--help":
		printUsage(out)
		return exitOK
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "nfa: build, publish and verify application descriptors")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  nfa describe --version-id <semver> --download-uri <uri> [--download-uri ...] [--abi-uri <uri> ...] [--payment free|paid] [--router-required] [--format yaml|json]")
	fmt.Fprintln(w, "  nfa publish --name <name> --symbol <symbol> --owner <0xaddress> [--check] <descriptor-file|->")
	fmt.Fprintln(w, "  nfa verify [--abi] [--json] <0xcontract|descriptor-file>")
	fmt.Fprintln(w, "  nfa get-app [--format yaml|json] <0xcontract>")
	fmt.Fprintln(w, "  nfa contracts [--json]")
	fmt.Fprintln(w, "  nfa export [-o bundle.tar]")
	fmt.Fprintln(w, "  nfa import [--ignore-unknown] <bundle.tar|->")
	fmt.Fprintln(w, "  nfa list-backends")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags: --config <file> (default $NFA_CONFIG), --log-level <level>,")
	fmt.Fprintln(w, "  --scratch-dir <dir> (default $NFA_SCRATCH_DIR), --registry-dir <dir>, --backend <name> plus backend flags.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - descriptors commit to SHA-256 digests regardless of the configured algorithm")
	fmt.Fprintln(w, "  - verify exits 3 when any recomputed digest differs from its commitment")
	fmt.Fprintln(w, "  - the local registry keeps its event log under ~/.nfa/registry unless configured")
}
