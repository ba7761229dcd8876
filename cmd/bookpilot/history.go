package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bookpilot/internal/history"
	"bookpilot/internal/siteconfig"
)

func newHistoryCmd(opts *appOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent booking runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(opts.historyPath())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			for _, r := range runs {
				outcome := r.Outcome
				if outcome == "" {
					outcome = "in progress"
				}
				fmt.Printf("#%-4d %s  %s  %s\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), r.TaskID, outcome)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	return cmd
}

func newSitesCmd(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List configured booking sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := siteconfig.NewRegistry(opts.sitesPath)
			if err != nil {
				return err
			}
			for _, key := range registry.Keys() {
				site, _ := registry.Get(key)
				fmt.Printf("%-20s %s\n", key, site.URL)
			}
			return nil
		},
	}
}
