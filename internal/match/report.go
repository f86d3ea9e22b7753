package match

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// TierCount is one row of the per-tier breakdown.
type TierCount struct {
	Tier    int    `yaml:"tier" json:"tier"`
	Method  string `yaml:"method" json:"method"`
	Matched int    `yaml:"matched" json:"matched"`
}

// Summary is the run-level report: what matched where, what fell through,
// and how long it took. Exhausting all tiers is an expected terminal state,
// not an error, so unmatched entities appear here rather than in an error.
type Summary struct {
	RunID     string         `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	Scope     string         `yaml:"scope,omitempty" json:"scope,omitempty"`
	DryRun    bool           `yaml:"dry_run" json:"dry_run"`
	Sources   int            `yaml:"sources" json:"sources"`
	Matched   int            `yaml:"matched" json:"matched"`
	Unmatched int            `yaml:"unmatched" json:"unmatched"`
	Skipped   int            `yaml:"skipped,omitempty" json:"skipped,omitempty"`
	Written   int64          `yaml:"written" json:"written"`
	Conflicts int64          `yaml:"conflicts,omitempty" json:"conflicts,omitempty"`
	Tiers     []TierCount    `yaml:"tiers" json:"tiers"`
	Samples   []SourceEntity `yaml:"unmatched_sample,omitempty" json:"unmatched_sample,omitempty"`
	Elapsed   time.Duration  `yaml:"elapsed" json:"elapsed"`
}

// NewSummary assembles a Summary from a cascade outcome. sampleN caps how
// many unmatched entities are included for manual review.
func NewSummary(out *Outcome, sampleN int) *Summary {
	s := &Summary{
		Sources:   out.Total,
		Matched:   len(out.Results),
		Unmatched: len(out.Unmatched),
		Skipped:   out.Skipped,
		Elapsed:   out.Elapsed,
	}

	tiers := make([]int, 0, len(out.TierCounts))
	for t := range out.TierCounts {
		tiers = append(tiers, t)
	}
	sort.Ints(tiers)
	for _, t := range tiers {
		s.Tiers = append(s.Tiers, TierCount{Tier: t, Method: methodName[t], Matched: out.TierCounts[t]})
	}

	if sampleN > len(out.Unmatched) {
		sampleN = len(out.Unmatched)
	}
	s.Samples = append(s.Samples, out.Unmatched[:sampleN]...)

	return s
}

// Render returns a human-readable report for terminal output.
func (s *Summary) Render() string {
	var b strings.Builder

	mode := "commit"
	if s.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(&b, "Match run (%s)", mode)
	if s.Scope != "" {
		fmt.Fprintf(&b, " scope=%s", s.Scope)
	}
	fmt.Fprintf(&b, "\n  sources:   %d\n  matched:   %d\n  unmatched: %d\n", s.Sources, s.Matched, s.Unmatched)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "  skipped:   %d\n", s.Skipped)
	}
	if !s.DryRun {
		fmt.Fprintf(&b, "  written:   %d\n", s.Written)
		if s.Conflicts > 0 {
			fmt.Fprintf(&b, "  conflicts: %d (already matched, left untouched)\n", s.Conflicts)
		}
	}
	for _, tc := range s.Tiers {
		fmt.Fprintf(&b, "  tier %d %-22s %d\n", tc.Tier, tc.Method, tc.Matched)
	}
	for _, se := range s.Samples {
		fmt.Fprintf(&b, "  unmatched: %s %q %s %s\n", se.ID, se.Name, se.State, se.PostalCode)
	}
	fmt.Fprintf(&b, "  elapsed:   %s\n", s.Elapsed.Round(time.Millisecond))

	return b.String()
}

// WriteYAML writes the summary to a YAML file for downstream tooling.
func (s *Summary) WriteYAML(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return eris.Wrap(err, "match: marshal summary")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "match: write summary %s", path)
	}
	return nil
}
