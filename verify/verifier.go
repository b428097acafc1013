// Package verify computes one digest over an ordered list of artifact sources
// and compares it with an expected commitment.
//
// Sources are folded into a single digest engine strictly in list order.
// The first resolution failure aborts the run; no partial digest is ever
// returned. Scratch storage used by the run is reclaimed on every exit path.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"xdao.co/nfa/artifact"
	"xdao.co/nfa/digest"
	"xdao.co/nfa/observability"
)

// Options configures a Verifier.
type Options struct {
	// ScratchDir is the root under which each run creates its own scratch
	// directory. It is created if missing, and removed again afterwards
	// when the run created it.
	ScratchDir string
	// Algorithm defaults to digest.SHA256.
	Algorithm digest.Algorithm
	// Concurrency > 1 prefetches up to that many sources in parallel into
	// memory; folding order is unchanged.
	Concurrency int

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Verifier runs ordered digest computations. It holds no per-run state and
// may be shared across goroutines.
type Verifier struct {
	opts Options
}

// New validates opts and returns a Verifier.
func New(opts Options) (*Verifier, error) {
	if opts.ScratchDir == "" {
		return nil, artifact.ConfigError("configure verifier", errors.New("scratch directory is required"))
	}
	alg, err := digest.ParseAlgorithm(string(opts.Algorithm))
	if err != nil {
		return nil, artifact.ConfigError("configure verifier", err)
	}
	opts.Algorithm = alg
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Verifier{opts: opts}, nil
}

func (v *Verifier) Algorithm() digest.Algorithm { return v.opts.Algorithm }

// RunOption customizes a single run.
type RunOption func(*runOptions)

type runOptions struct {
	expected digest.Digest
}

// WithExpected compares the computed digest against d.
func WithExpected(d digest.Digest) RunOption {
	return func(o *runOptions) { o.expected = d }
}

// Run resolves sources in order, folds their bytes into one digest and
// returns it. On error the returned Result is nil.
func (v *Verifier) Run(ctx context.Context, sources []artifact.Source, opts ...RunOption) (res *Result, err error) {
	var ro runOptions
	for _, o := range opts {
		o(&ro)
	}
	if len(sources) == 0 {
		return nil, artifact.ConfigError("verify", errors.New("at least one artifact source is required"))
	}
	if !ro.expected.IsZero() && ro.expected.Algorithm() != v.opts.Algorithm {
		return nil, artifact.ConfigError("verify", fmt.Errorf("expected digest uses %s, verifier uses %s", ro.expected.Algorithm(), v.opts.Algorithm))
	}

	start := time.Now()
	runID := uuid.NewString()
	log := v.opts.Logger.With().Str("run_id", runID).Int("sources", len(sources)).Logger()

	dir, cleanup, err := v.scratch(runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := cleanup(); cerr != nil {
			log.Error().Err(cerr).Msg("scratch cleanup failed")
			res = nil
			err = errors.Join(err, cerr)
		}
	}()

	engine, err := digest.New(v.opts.Algorithm)
	if err != nil {
		return nil, artifact.ConfigError("verify", err)
	}

	r := &run{
		sources: sources,
		dir:     dir,
		reports: make([]SourceReport, len(sources)),
		log:     log,
		metrics: v.opts.Metrics,
	}
	log.Debug().Str("scratch", dir).Int("concurrency", v.opts.Concurrency).Msg("verification started")

	if v.opts.Concurrency > 1 && len(sources) > 1 {
		err = r.prefetch(ctx, engine, v.opts.Concurrency)
	} else {
		err = r.sequential(ctx, engine)
	}
	if err != nil {
		log.Error().Err(err).Msg("verification aborted")
		return nil, err
	}

	sum, err := engine.Finalize()
	if err != nil {
		return nil, err
	}
	verdict := Compare(sum, ro.expected)
	v.opts.Metrics.RunCompleted(string(verdict), time.Since(start))

	var ev *zerolog.Event
	if verdict == Mismatch {
		ev = log.Warn().Str("expected", ro.expected.Hex())
	} else {
		ev = log.Info()
	}
	ev.Str("digest", sum.Hex()).Str("verdict", string(verdict)).Int64("bytes", engine.Len()).
		Dur("elapsed", time.Since(start)).Msg("verification completed")

	return &Result{
		RunID:    runID,
		Digest:   sum,
		Expected: ro.expected,
		Verdict:  verdict,
		Sources:  r.reports,
	}, nil
}

// scratch creates the run directory and returns a cleanup func that removes
// it, plus the scratch root when this run created the root.
func (v *Verifier) scratch(runID string) (string, func() error, error) {
	root := v.opts.ScratchDir
	createdRoot := false
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return "", nil, fsError("create scratch root", err)
		}
		createdRoot = true
	} else if err != nil {
		return "", nil, fsError("stat scratch root", err)
	}

	dir, err := os.MkdirTemp(root, "run-"+runID[:8]+"-")
	if err != nil {
		if createdRoot {
			_ = os.Remove(root)
		}
		return "", nil, fsError("create run directory", err)
	}

	cleanup := func() error {
		if err := os.RemoveAll(dir); err != nil {
			return fsError("remove run directory", err)
		}
		if !createdRoot {
			return nil
		}
		// Another run may share the root; only remove it when empty.
		entries, err := os.ReadDir(root)
		if err != nil {
			return fsError("read scratch root", err)
		}
		if len(entries) == 0 {
			if err := os.Remove(root); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fsError("remove scratch root", err)
			}
		}
		return nil
	}
	return dir, cleanup, nil
}

func fsError(op string, err error) error {
	return &artifact.Error{Kind: artifact.KindFilesystem, Index: -1, Op: op, Err: err}
}

// run is the state of one verification.
type run struct {
	sources []artifact.Source
	dir     string
	reports []SourceReport
	log     zerolog.Logger
	metrics *observability.Metrics
}

func (r *run) sequential(ctx context.Context, engine *digest.Engine) error {
	for i := range r.sources {
		if err := r.resolve(ctx, i, engine); err != nil {
			return err
		}
	}
	return nil
}

// resolve streams source i into w and records its report.
func (r *run) resolve(ctx context.Context, i int, w io.Writer) error {
	src := r.sources[i]
	if err := ctx.Err(); err != nil {
		return r.fail(i, &artifact.Error{Kind: artifact.KindNetwork, Index: i, Ref: src.Ref(), Op: "resolve", Err: err})
	}

	start := time.Now()
	cw := &countingWriter{w: w}
	if err := src.Resolve(ctx, artifact.Scratch{Dir: r.dir, Index: i}, cw); err != nil {
		return r.fail(i, err)
	}
	elapsed := time.Since(start)

	r.reports[i] = SourceReport{Index: i, Ref: src.Ref(), Type: src.Type(), Bytes: cw.n, Duration: elapsed}
	r.metrics.SourceResolved(string(src.Type()), cw.n, elapsed)
	r.log.Debug().Int("index", i).Str("ref", src.Ref()).Str("type", string(src.Type())).
		Int64("bytes", cw.n).Dur("elapsed", elapsed).Msg("source resolved")
	return nil
}

// fail normalizes a source failure so it always names the index and reference.
// Errors from sources that do not use the artifact taxonomy count as network
// failures.
func (r *run) fail(i int, err error) error {
	src := r.sources[i]
	if artifact.KindOf(err) == "" {
		err = &artifact.Error{Kind: artifact.KindNetwork, Index: i, Ref: src.Ref(), Op: "resolve", Err: err}
	}
	kind := artifact.KindOf(err)
	r.metrics.SourceFailed(string(kind))
	r.log.Error().Err(err).Int("index", i).Str("ref", src.Ref()).Str("kind", string(kind)).Msg("source failed")
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
