// Package config loads the settings shared by the nfa commands.
//
// Configuration comes from a single YAML file named by --config or the
// NFA_CONFIG environment variable, with command-line flags applied on top.
// Unknown keys are rejected. Nothing here reads the environment implicitly;
// commands pass values in.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"xdao.co/nfa/artifact"
	"xdao.co/nfa/digest"
	"xdao.co/nfa/observability"
	"xdao.co/nfa/storage/casconfig"
	"xdao.co/nfa/verify"
)

// Environment variables consulted by the commands.
const (
	EnvConfig     = "NFA_CONFIG"
	EnvScratchDir = "NFA_SCRATCH_DIR"
)

type Config struct {
	// ScratchDir is the root for per-run scratch directories.
	ScratchDir string `yaml:"scratch_dir"`
	// Algorithm is sha256 or blake3.
	Algorithm string `yaml:"algorithm"`
	// Concurrency above 1 enables prefetching.
	Concurrency int `yaml:"concurrency"`

	HTTP     HTTPConfig     `yaml:"http"`
	Git      GitConfig      `yaml:"git"`
	Log      LogConfig      `yaml:"log"`
	Registry RegistryConfig `yaml:"registry"`

	// Storage configures the descriptor store. Commands that do not
	// publish or read descriptors ignore it.
	Storage *casconfig.Config `yaml:"storage,omitempty"`
}

type HTTPConfig struct {
	// Timeout bounds each remote fetch; zero means no limit.
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	// Persist copies each remote file to scratch before hashing it.
	Persist bool `yaml:"persist"`
}

type GitConfig struct {
	Binary string `yaml:"binary"`
	// Depth of the clone; 0 fetches full history.
	Depth  int    `yaml:"depth"`
	Branch string `yaml:"branch"`
	// Exclude holds glob patterns (slash-separated, relative to the
	// repository root) left out of the digest.
	Exclude []string `yaml:"exclude"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "json" or "console".
	Format string `yaml:"format"`
}

type RegistryConfig struct {
	// Dir holds the local registry's event log.
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ScratchDir:  filepath.Join(os.TempDir(), "nfa-scratch"),
		Algorithm:   string(digest.SHA256),
		Concurrency: 1,
		HTTP: HTTPConfig{
			Timeout:   5 * time.Minute,
			UserAgent: "nfa-hash/1",
			Persist:   true,
		},
		Git: GitConfig{
			Binary: artifact.DefaultGit,
			Depth:  1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFile reads path over the defaults. Unknown keys are an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.expandPaths()
	return cfg, nil
}

// Load reads the file at path, or returns the defaults when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// expandPaths expands a leading ~ and ${HOME} in path settings.
func (c *Config) expandPaths() {
	c.ScratchDir = expandHome(c.ScratchDir)
	c.Registry.Dir = expandHome(c.Registry.Dir)
	if c.Storage != nil {
		for i := range c.Storage.Backends {
			if d, ok := c.Storage.Backends[i].Config["localfs-dir"]; ok {
				c.Storage.Backends[i].Config["localfs-dir"] = expandHome(d)
			}
		}
	}
}

func expandHome(p string) string {
	home, err := os.UserHomeDir()
	if err != nil || p == "" {
		return p
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		p = home + p[1:]
	}
	return os.Expand(p, func(name string) string {
		if name == "HOME" {
			return home
		}
		return "${" + name + "}"
	})
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ScratchDir) == "" {
		errs = append(errs, errors.New("scratch_dir is required"))
	}
	if _, err := digest.ParseAlgorithm(c.Algorithm); err != nil {
		errs = append(errs, fmt.Errorf("algorithm: %w", err))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.HTTP.Timeout < 0 {
		errs = append(errs, fmt.Errorf("http.timeout must not be negative"))
	}
	if c.Git.Binary == "" {
		errs = append(errs, errors.New("git.binary is required"))
	}
	if c.Git.Depth < 0 {
		errs = append(errs, fmt.Errorf("git.depth must not be negative, got %d", c.Git.Depth))
	}
	for i, p := range c.Git.Exclude {
		if _, err := glob.Compile(p, '/'); err != nil {
			errs = append(errs, fmt.Errorf("git.exclude[%d]: %w", i, err))
		}
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Storage != nil {
		if err := c.Storage.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if len(errs) > 0 {
		return artifact.ConfigError("load configuration", errors.Join(errs...))
	}
	return nil
}

// Sources returns the factory that turns references into artifact sources.
func (c *Config) Sources() artifact.Factory {
	return artifact.Factory{
		HTTPClient: &http.Client{Timeout: c.HTTP.Timeout},
		Persist:    c.HTTP.Persist,
		UserAgent:  c.HTTP.UserAgent,
		Git:        c.Git.Binary,
		Depth:      c.Git.Depth,
		Branch:     c.Git.Branch,
		Exclude:    c.Git.Exclude,
	}
}

// Verifier builds a verifier from the configuration.
func (c *Config) Verifier(log zerolog.Logger, metrics *observability.Metrics) (*verify.Verifier, error) {
	return verify.New(verify.Options{
		ScratchDir:  c.ScratchDir,
		Algorithm:   digest.Algorithm(c.Algorithm),
		Concurrency: c.Concurrency,
		Logger:      log,
		Metrics:     metrics,
	})
}

// RequireEnv returns the values of names, failing with a configuration
// error that lists every unset variable.
func RequireEnv(names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	var missing []string
	for _, n := range names {
		v, ok := os.LookupEnv(n)
		if !ok || v == "" {
			missing = append(missing, n)
			continue
		}
		out[n] = v
	}
	if len(missing) > 0 {
		return nil, artifact.ConfigError("read environment", fmt.Errorf("environment variable(s) %s required but not set", strings.Join(missing, ", ")))
	}
	return out, nil
}
