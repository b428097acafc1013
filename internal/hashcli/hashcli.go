// Package hashcli implements the hash-files and hash-repos commands, which
// differ only in the kind of artifact source their references name.
package hashcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"xdao.co/nfa/artifact"
	"xdao.co/nfa/config"
	"xdao.co/nfa/digest"
	"xdao.co/nfa/observability"
	"xdao.co/nfa/verify"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitMismatch = 3
)

type Command struct {
	Name    string
	Type    artifact.Type
	RefName string
	Version string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

type output struct {
	RunID     string                `json:"runId"`
	Algorithm digest.Algorithm      `json:"algorithm"`
	Digest    string                `json:"digest"`
	Expected  string                `json:"expected,omitempty"`
	Verdict   verify.Verdict        `json:"verdict"`
	Bytes     int64                 `json:"bytes"`
	Sources   []verify.SourceReport `json:"sources"`
}

func (c Command) usage(fs *pflag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, "usage: %s [flags] <localPath> <%s1> [%s2 ... %sN]\n\n", c.Name, c.RefName, c.RefName, c.RefName)
	fmt.Fprintf(w, "Computes one digest over the content of every %s, in order.\n", c.RefName)
	fmt.Fprintf(w, "localPath is the scratch directory; it is removed again if this run creates it.\n\nflags:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

// Run executes the command and returns the process exit code. Only the
// digest (or the JSON report) is written to stdout.
func (c Command) Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	getenv := c.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	fs := pflag.NewFlagSet(c.Name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		expect      = fs.String("expect", "", "expected digest; exit 3 when the computed digest differs")
		alg         = fs.String("alg", "", "digest algorithm (sha256, blake3)")
		concurrency = fs.Int("concurrency", 0, "prefetch up to this many sources in parallel")
		timeout     = fs.Duration("timeout", 0, "abort the whole run after this long")
		configPath  = fs.String("config", getenv(config.EnvConfig), "config file (default $"+config.EnvConfig+")")
		logLevel    = fs.String("log-level", "", "log level (debug, info, warn, error)")
		jsonOut     = fs.Bool("json", false, "print a JSON report instead of the bare digest")
		exclude     []string
		branch      string
	)
	if c.Type == artifact.TypeRepo {
		fs.StringArrayVar(&exclude, "exclude", nil, "glob of repository paths to leave out (repeatable)")
		fs.StringVar(&branch, "branch", "", "branch or tag to clone")
	}
	help := fs.BoolP("help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", c.Name, err)
		c.usage(fs, stderr)
		return ExitUsage
	}
	if *help {
		c.usage(fs, stdout)
		return ExitOK
	}
	pos := fs.Args()
	if len(pos) < 2 {
		fmt.Fprintf(stderr, "%s: need a local path and at least one %s\n", c.Name, c.RefName)
		c.usage(fs, stderr)
		return ExitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", c.Name, err)
		return ExitUsage
	}
	cfg.ScratchDir = pos[0]
	if fs.Changed("alg") {
		cfg.Algorithm = *alg
	}
	if fs.Changed("concurrency") {
		cfg.Concurrency = *concurrency
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if fs.Changed("exclude") {
		cfg.Git.Exclude = append(cfg.Git.Exclude, exclude...)
	}
	if fs.Changed("branch") {
		cfg.Git.Branch = branch
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", c.Name, err)
		return ExitUsage
	}

	log, err := newLogger(c.Name, c.Version, stderr, cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", c.Name, err)
		return ExitUsage
	}

	var opts []verify.RunOption
	if *expect != "" {
		want, err := ParseExpected(digest.Algorithm(cfg.Algorithm), *expect)
		if err != nil {
			fmt.Fprintf(stderr, "%s: --expect: %v\n", c.Name, err)
			return ExitUsage
		}
		opts = append(opts, verify.WithExpected(want))
	}

	sources, err := cfg.Sources().Sources(c.Type, pos[1:])
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", c.Name, err)
		return ExitUsage
	}
	v, err := cfg.Verifier(log, nil)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", c.Name, err)
		return ExitUsage
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}
	res, err := v.Run(ctx, sources, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", c.Name, err)
		if artifact.KindOf(err) == artifact.KindConfiguration {
			return ExitUsage
		}
		return ExitFailure
	}

	if *jsonOut {
		if err := writeJSON(stdout, res, v.Algorithm()); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", c.Name, err)
			return ExitFailure
		}
	} else {
		fmt.Fprintln(stdout, res.Digest.Hex())
	}

	if res.Verdict == verify.Mismatch {
		fmt.Fprintf(stderr, "%s: digest mismatch: expected %s, computed %s\n", c.Name, res.Expected.Hex(), res.Digest.Hex())
		return ExitMismatch
	}
	return ExitOK
}

func writeJSON(w io.Writer, res *verify.Result, alg digest.Algorithm) error {
	out := output{
		RunID:     res.RunID,
		Algorithm: alg,
		Digest:    res.Digest.Hex(),
		Verdict:   res.Verdict,
		Bytes:     res.TotalBytes(),
		Sources:   res.Sources,
	}
	if !res.Expected.IsZero() {
		out.Expected = res.Expected.Hex()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// ParseExpected reads an expected digest as bare hex, 0x-prefixed hex, or
// "<alg>:<hex>". A prefix naming another algorithm is an error.
func ParseExpected(alg digest.Algorithm, s string) (digest.Digest, error) {
	s = strings.TrimSpace(s)
	if prefix, rest, ok := strings.Cut(s, ":"); ok {
		named, err := digest.ParseAlgorithm(prefix)
		if err != nil {
			return digest.Digest{}, err
		}
		if named != alg {
			return digest.Digest{}, fmt.Errorf("digest is %s but the run uses %s", named, alg)
		}
		s = rest
	}
	return digest.ParseHex(alg, s)
}

func newLogger(name, version string, w io.Writer, cfg config.LogConfig) (zerolog.Logger, error) {
	if version == "" {
		version = "dev"
	}
	switch cfg.Format {
	case "json":
		return observability.NewLogger(name, version, w, cfg.Level)
	case "console", "":
		return observability.NewConsoleLogger(name, version, w, cfg.Level)
	default:
		return zerolog.Nop(), errors.New("unknown log format " + cfg.Format)
	}
}

// Main runs c with the process arguments and exits. SIGINT and SIGTERM
// cancel the run, which still cleans up its scratch directory.
func Main(c Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := c.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
