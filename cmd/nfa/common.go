package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"xdao.co/nfa/artifact"
	"xdao.co/nfa/config"
	"xdao.co/nfa/descriptor"
	"xdao.co/nfa/digest"
	"xdao.co/nfa/observability"
	"xdao.co/nfa/registry"
	"xdao.co/nfa/storage"
	"xdao.co/nfa/storage/casregistry"
)

// common holds the flags every subcommand accepts.
type common struct {
	configPath  string
	logLevel    string
	scratchDir  string
	registryDir string
	backend     string
	sourceType  string
}

func newFlagSet(e env, name string, c *common, withStore bool) *pflag.FlagSet {
	fs := pflag.NewFlagSet("nfa "+name, pflag.ContinueOnError)
	fs.SetOutput(e.errOut)
	fs.StringVar(&c.configPath, "config", e.getenv(config.EnvConfig), "config file (default $"+config.EnvConfig+")")
	fs.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&c.scratchDir, "scratch-dir", e.getenv(config.EnvScratchDir), "scratch root (default $"+config.EnvScratchDir+")")
	fs.StringVar(&c.sourceType, "type", string(artifact.TypeAuto), "source type for URIs: file, repo or auto")
	if withStore {
		fs.StringVar(&c.registryDir, "registry-dir", "", "local registry directory")
		fs.StringVar(&c.backend, "backend", "", "descriptor store backend (overrides the config file); see list-backends")
		casregistry.RegisterFlags(fs, casregistry.UsageCLI)
	}
	return fs
}

// load reads configuration and applies flag overrides.
func (c *common) load(fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, artifact.ConfigError("load configuration", err)
	}
	if c.scratchDir != "" {
		cfg.ScratchDir = c.scratchDir
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	if c.registryDir != "" {
		cfg.Registry.Dir = c.registryDir
	}
	if cfg.Registry.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, artifact.ConfigError("locate registry", err)
		}
		cfg.Registry.Dir = filepath.Join(home, ".nfa", "registry")
	}
	// Commitments are always SHA-256.
	cfg.Algorithm = string(digest.SHA256)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *common) typ() (artifact.Type, error) {
	t, err := artifact.ParseType(c.sourceType)
	if err != nil {
		return "", artifact.ConfigError("parse --type", err)
	}
	return t, nil
}

func logger(e env, cfg *config.Config) zerolog.Logger {
	var (
		log zerolog.Logger
		err error
	)
	if cfg.Log.Format == "json" {
		log, err = observability.NewLogger("nfa", version, e.errOut, cfg.Log.Level)
	} else {
		log, err = observability.NewConsoleLogger("nfa", version, e.errOut, cfg.Log.Level)
	}
	if err != nil {
		return zerolog.Nop()
	}
	return log
}

func newChecker(c *common, cfg *config.Config, log zerolog.Logger) (descriptor.Checker, error) {
	typ, err := c.typ()
	if err != nil {
		return descriptor.Checker{}, err
	}
	v, err := cfg.Verifier(log, nil)
	if err != nil {
		return descriptor.Checker{}, err
	}
	return descriptor.Checker{Hasher: v, Sources: cfg.Sources(), Type: typ}, nil
}

// openStore opens the descriptor store: --backend wins, then the config
// file's storage section, then a localfs store beside the registry.
func (c *common) openStore(cfg *config.Config) (storage.CAS, func() error, error) {
	switch {
	case c.backend != "":
		return casregistry.Open(c.backend, casregistry.UsageCLI)
	case cfg.Storage != nil:
		return cfg.Storage.Open(casregistry.UsageCLI, "")
	default:
		return casregistry.OpenWithConfig("localfs", casregistry.UsageCLI, map[string]string{
			"localfs-dir": filepath.Join(cfg.Registry.Dir, "cas"),
		})
	}
}

// openRegistry opens the local registry. The returned close func is never nil.
func (c *common) openRegistry(cfg *config.Config, log zerolog.Logger) (*registry.Local, func() error, error) {
	cas, closeStore, err := c.openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open descriptor store: %w", err)
	}
	if closeStore == nil {
		closeStore = func() error { return nil }
	}
	reg, err := registry.OpenLocal(registry.LocalOptions{Dir: cfg.Registry.Dir, CAS: cas, Logger: log})
	if err != nil {
		return nil, nil, errors.Join(err, closeStore())
	}
	return reg, closeStore, nil
}

// exitCode maps an error to the process exit status and reports it.
func exitCode(e env, cmd string, err error) int {
	fmt.Fprintf(e.errOut, "nfa %s: %v\n", cmd, err)
	if artifact.KindOf(err) == artifact.KindConfiguration ||
		errors.Is(err, descriptor.ErrInvalid) ||
		errors.Is(err, registry.ErrInvalidAddress) ||
		errors.Is(err, registry.ErrInvalidRequest) {
		return exitUsage
	}
	return exitFailure
}

// readDescriptor reads an AppInfo from path, or stdin for "-".
func readDescriptor(path string, stdin io.Reader) (descriptor.AppInfo, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return descriptor.AppInfo{}, err
	}
	return descriptor.ParseAppInfo(b)
}

func yamlMarshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeDescriptor(w io.Writer, app descriptor.AppInfo, format string) error {
	switch format {
	case "json":
		b, err := descriptor.Canonical(app)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	case "yaml", "":
		b, err := yamlMarshal(app)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	default:
		return artifact.ConfigError("write descriptor", fmt.Errorf("unknown format %q", format))
	}
}
