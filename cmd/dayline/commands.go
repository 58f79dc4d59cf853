// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tejzpr/dayline/internal/ingest"
	"github.com/tejzpr/dayline/internal/search"
)

func newIngestCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest BATCH.yaml...",
		Short: "Store fetched records and rebuild the links between them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				batch, err := ingest.Load(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				res, err := a.Indexer.Ingest(cmd.Context(), batch)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				a.Log.Info().Str("file", path).Int("segments", res.Segments).Int("visits", res.VisitsTracked).Msg("batch ingested")
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		types    []string
		limit    int
		offset   int
		minScore float64
	)
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search every entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("min-score") {
				minScore = a.Config.Search.MinScore
			}
			page, err := a.Search.Search(cmd.Context(), args[0], search.Options{
				Types:    types,
				Limit:    limit,
				Offset:   offset,
				MinScore: minScore,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "Limit to types: segment, person, document, website, email")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Results to skip")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Drop results scoring below this")
	return cmd
}

func newCleanupCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete records older than the retention horizon and reindex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Maintain(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report database, store and search health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.Status(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), st); err != nil {
				return err
			}
			if !st.Healthy {
				return fmt.Errorf("unhealthy")
			}
			return nil
		},
	}
}
