/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-reqguard/adaptivecache"
)

func newAnalyzeQueryCmd() *cobra.Command {
	var executionTime time.Duration
	var largeInListThreshold int
	var listRules bool

	cmd := &cobra.Command{
		Use:   "analyze-query [SQL]",
		Short: "Print optimization recommendations for an SQL query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analyzer := adaptivecache.NewQueryAnalyzer(adaptivecache.DefaultQueryRules(largeInListThreshold)...)
			if listRules {
				for _, name := range analyzer.Rules() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
				return fmt.Errorf("query must not be empty")
			}
			if executionTime < 0 {
				return fmt.Errorf("execution time must not be negative")
			}

			record := analyzer.Analyze(args[0], executionTime)
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(record); err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			return enc.Close()
		},
	}

	cmd.Flags().DurationVarP(&executionTime, "time", "t", 0, "observed execution time of the query")
	cmd.Flags().IntVar(&largeInListThreshold, "in-list-threshold", adaptivecache.DefaultLargeInListThreshold,
		"minimal number of IN-list items to recommend batching")
	cmd.Flags().BoolVar(&listRules, "rules", false, "list the analyzer rules and exit")
	return cmd
}
