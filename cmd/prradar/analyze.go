package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/prradar/prradar/pkg/analysis"
	"github.com/prradar/prradar/pkg/flags"
	"github.com/prradar/prradar/pkg/github"
)

type AnalyzeFlags struct {
	CacheFlags  *flags.CacheFlags
	ConfigFlags *flags.ConfigFlags

	IncludeClosedPRs bool
	MaxPRs           int
	ForceRefresh     bool
}

func NewAnalyzeFlags() *AnalyzeFlags {
	return &AnalyzeFlags{
		CacheFlags:  flags.NewCacheFlags(),
		ConfigFlags: flags.NewConfigFlags(),
	}
}

func (f *AnalyzeFlags) BindFlags(flagSet *pflag.FlagSet) {
	f.CacheFlags.BindFlags(flagSet)
	f.ConfigFlags.BindFlags(flagSet)

	flagSet.BoolVar(&f.IncludeClosedPRs, "include-closed", false, "Analyze closed PRs as well as open ones")
	flagSet.IntVar(&f.MaxPRs, "max-prs", 0, "Maximum number of PRs to analyze (default from config)")
	flagSet.BoolVar(&f.ForceRefresh, "force-refresh", false, "Recompute the report even if a fresh cached one exists")
}

func NewAnalyzeCommand() *cobra.Command {
	f := NewAnalyzeFlags()

	cmd := &cobra.Command{
		Use:   "analyze <owner>/<repo>",
		Short: "Analyze a repository's pull requests and print the risk report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts := strings.Split(args[0], "/")
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				return errors.Errorf("expected <owner>/<repo>, got %q", args[0])
			}
			owner, repo := parts[0], parts[1]

			config := f.ConfigFlags.LoadConfig()
			cacheClient, err := f.CacheFlags.GetCacheClient()
			if err != nil {
				return errors.WithMessage(err, "couldn't get cache client")
			}

			ctx := context.Background()
			ghClient := github.New(ctx)
			analyzer, err := analysis.NewAnalyzer(ghClient, config.Analyzer)
			if err != nil {
				return errors.WithMessage(err, "couldn't create analyzer")
			}
			aggregator := analysis.NewAggregator(ghClient, analyzer, cacheClient, config.Analyzer)

			report, err := aggregator.Report(ctx, owner, repo, analysis.Options{
				IncludeClosedPRs: f.IncludeClosedPRs,
				MaxPRs:           f.MaxPRs,
				ForceRefresh:     f.ForceRefresh,
			})
			if err != nil {
				return errors.WithMessagef(err, "analyzing %s/%s", owner, repo)
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(out))
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
