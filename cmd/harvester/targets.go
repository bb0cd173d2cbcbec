package main

import (
	"github.com/spf13/cobra"

	"bbsharvest/internal/crawler"
	"bbsharvest/internal/report"
)

func newTargetsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the configured crawl targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(); err != nil {
				return err
			}

			registry, err := crawler.NewRegistry(a.cfg.ResolvedTargets(), a.cfg.Spider.DefaultTarget)
			if err != nil {
				return err
			}

			if a.debug {
				registry.LogTargets(a.log.With("component", "registry"))
			}

			return report.WriteTargets(cmd.OutOrStdout(), registry.List(), registry.Current().Key)
		},
	}
}
