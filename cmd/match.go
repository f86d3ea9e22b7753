package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/entitylink/internal/match"
	"github.com/sells-group/entitylink/internal/store"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Run the tiered matching cascade",
	Long: `Runs the six-tier matching cascade over the source and reference snapshots.

Tier 1: domain-authority bridge (attested domain -> reference id)
Tier 2: exact normalized name within same state
Tier 3: domain-keyword substring + state + ZIP5
Tier 4: trigram similarity >= 0.5 + ZIP5
Tier 5: trigram similarity >= 0.4 + state + city
Tier 6: trigram similarity >= 0.3 + ZIP5 (loosest, reported separately)

Default mode is dry-run: the full report is computed and printed but
nothing is written. Use --commit to persist.

Examples:
  # Preview everything
  entitylink match

  # Commit matches for two states only
  entitylink match --commit --scope PA,OH

  # Staged rollout: stop after the exact tiers
  entitylink match --commit --max-tier 3

  # Custom thresholds and a machine-readable report
  entitylink match --tiers tiers.yaml --out summary.yaml`,
	RunE: runMatch,
}

func init() {
	f := matchCmd.Flags()
	f.Bool("commit", false, "persist accepted matches")
	f.Bool("dry-run", false, "report without writing (the default)")
	f.String("scope", "", "comma-separated state codes to restrict the run")
	f.Int("max-tier", 0, "highest tier to run (0 = all six)")
	f.Int("limit", 0, "cap records loaded per dataset (testing)")
	f.Int("sample", 0, "unmatched sample size in the report (0 = config default)")
	f.String("tiers", "", "YAML file overriding fuzzy-tier thresholds")
	f.String("out", "", "write the run summary to a YAML file")
	matchCmd.MarkFlagsMutuallyExclusive("commit", "dry-run")

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := zap.L().With(zap.String("command", "match"))

	commit, _ := cmd.Flags().GetBool("commit")
	scope, _ := cmd.Flags().GetString("scope")
	maxTier, _ := cmd.Flags().GetInt("max-tier")
	limit, _ := cmd.Flags().GetInt("limit")
	sample, _ := cmd.Flags().GetInt("sample")
	tiersPath, _ := cmd.Flags().GetString("tiers")
	outPath, _ := cmd.Flags().GetString("out")

	if maxTier < 0 || maxTier > match.MaxTier {
		return eris.Errorf("match: --max-tier must be 0-%d (got %d)", match.MaxTier, maxTier)
	}
	if sample <= 0 {
		sample = cfg.Match.UnmatchedSample
	}

	thresholds := match.Thresholds{
		FuzzyZip:      cfg.Match.FuzzyZipThreshold,
		FuzzyCity:     cfg.Match.FuzzyCityThreshold,
		FuzzyZipLoose: cfg.Match.FuzzyZipLooseThreshold,
	}
	if tiersPath != "" {
		t, err := match.LoadThresholds(tiersPath)
		if err != nil {
			return err
		}
		thresholds = t
	}
	if err := thresholds.Validate(); err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "match: migrate")
	}

	filter := store.Filter{States: parseScope(scope), Limit: limit}

	// The three snapshots are independent; load them concurrently. The
	// cascade itself stays single-threaded.
	var (
		sources   []match.SourceEntity
		refs      []match.ReferenceEntity
		authority map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sources, err = st.SourceEntities(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		refs, err = st.ReferenceEntities(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		authority, err = st.DomainAuthority(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "match: load snapshots")
	}

	// An empty required dataset is an input error, fatal before any write.
	if len(sources) == 0 {
		return eris.New("match: source dataset is empty")
	}
	if len(refs) == 0 {
		return eris.New("match: reference dataset is empty")
	}

	log.Info("snapshots loaded",
		zap.Int("sources", len(sources)),
		zap.Int("references", len(refs)),
		zap.Int("authority_domains", len(authority)))

	var runID string
	if commit {
		runID, err = st.StartRun(ctx, scope)
		if err != nil {
			return eris.Wrap(err, "match: start run")
		}
	}

	idx := match.NewIndex(refs)
	matcher := match.NewMatcher(idx, match.Options{
		Thresholds:      thresholds,
		MaxTier:         maxTier,
		DomainAuthority: authority,
	})
	outcome := matcher.Run(sources)

	summary := match.NewSummary(outcome, sample)
	summary.RunID = runID
	summary.Scope = scope
	summary.DryRun = !commit

	applier := match.NewApplier(st, match.ApplyOptions{
		BatchSize:    cfg.Match.BatchSize,
		WritesPerSec: cfg.Match.WritesPerSec,
	})
	written, conflicts, err := applier.Apply(ctx, outcome.Results, commit)
	summary.Written = written
	summary.Conflicts = conflicts
	if err != nil {
		if commit {
			if ferr := st.FailRun(ctx, runID, err); ferr != nil {
				log.Warn("failed to record run failure", zap.Error(ferr))
			}
		}
		return eris.Wrap(err, "match: apply")
	}

	if commit {
		if err := st.CompleteRun(ctx, runID, summary); err != nil {
			return eris.Wrap(err, "match: complete run")
		}
	}

	if outPath != "" {
		if err := summary.WriteYAML(outPath); err != nil {
			return err
		}
	}

	fmt.Print(summary.Render())
	return nil
}

// parseScope splits a comma-separated state list, uppercased, empties dropped.
func parseScope(scope string) []string {
	if scope == "" {
		return nil
	}
	var states []string
	for _, s := range strings.Split(scope, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			states = append(states, s)
		}
	}
	return states
}
