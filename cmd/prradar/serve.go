package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/prradar/prradar/pkg/analysis"
	"github.com/prradar/prradar/pkg/flags"
	"github.com/prradar/prradar/pkg/github"
	"github.com/prradar/prradar/pkg/server"
)

type ServerFlags struct {
	CacheFlags  *flags.CacheFlags
	ConfigFlags *flags.ConfigFlags

	ListenAddr string
}

func NewServerFlags() *ServerFlags {
	return &ServerFlags{
		CacheFlags:  flags.NewCacheFlags(),
		ConfigFlags: flags.NewConfigFlags(),
		ListenAddr:  ":8080",
	}
}

func (f *ServerFlags) BindFlags(flagSet *pflag.FlagSet) {
	f.CacheFlags.BindFlags(flagSet)
	f.ConfigFlags.BindFlags(flagSet)

	flagSet.StringVar(&f.ListenAddr, "listen", f.ListenAddr, "The address to serve risk reports on (default :8080)")
}

func NewServeCommand() *cobra.Command {
	f := NewServerFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the prradar server",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := f.ConfigFlags.LoadConfig()

			cacheClient, err := f.CacheFlags.GetCacheClient()
			if err != nil {
				return errors.WithMessage(err, "couldn't get cache client")
			}

			ghClient := github.New(context.Background())
			analyzer, err := analysis.NewAnalyzer(ghClient, config.Analyzer)
			if err != nil {
				return errors.WithMessage(err, "couldn't create analyzer")
			}
			aggregator := analysis.NewAggregator(ghClient, analyzer, cacheClient, config.Analyzer)

			srv := server.New(f.ListenAddr, aggregator)
			srv.Serve()
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
