package verify

import (
	"time"

	"xdao.co/nfa/artifact"
	"xdao.co/nfa/digest"
)

// Verdict is the outcome of comparing a computed digest with a commitment.
// A mismatch is a normal negative result, not an error.
type Verdict string

const (
	// Unchecked means no expected digest was supplied.
	Unchecked Verdict = "UNCHECKED"
	Match     Verdict = "MATCH"
	Mismatch  Verdict = "MISMATCH"
)

// Compare returns Match when computed equals expected, Mismatch otherwise,
// and Unchecked when expected is the zero digest.
func Compare(computed, expected digest.Digest) Verdict {
	if expected.IsZero() {
		return Unchecked
	}
	if computed.Equal(expected) {
		return Match
	}
	return Mismatch
}

// SourceReport describes one resolved source.
type SourceReport struct {
	Index    int           `json:"index"`
	Ref      string        `json:"ref"`
	Type     artifact.Type `json:"type"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of a successful run. A failed run never produces one.
type Result struct {
	RunID    string
	Digest   digest.Digest
	Expected digest.Digest
	Verdict  Verdict
	Sources  []SourceReport
}

// TotalBytes is the length of the logical stream that was hashed.
func (r *Result) TotalBytes() int64 {
	var n int64
	for _, s := range r.Sources {
		n += s.Bytes
	}
	return n
}
