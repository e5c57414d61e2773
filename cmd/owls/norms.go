package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-owls/infrastructure/norms"
	"github.com/ahrav/go-owls/internal/application"
	"github.com/ahrav/go-owls/internal/domain"
)

func newNormsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "norms",
		Short: "Inspect and verify normative tables",
	}
	cmd.AddCommand(newNormsCheckCmd(), newNormsLookupCmd())
	return cmd
}

func newNormsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Load and validate a norm table file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := norms.NewTableLoader()
			if err != nil {
				return err
			}
			tables, err := loader.LoadFromFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTablesSummary(cmd.OutOrStdout(), args[0], tables)
			return nil
		},
	}
}

func printTablesSummary(w io.Writer, path string, tables *norms.Tables) {
	fmt.Fprintf(w, "%s: OK (version %s)\n", path, tables.Version())
	for _, s := range domain.Subtests {
		if minAge, maxAge, ok := tables.AgeRange(s); ok {
			fmt.Fprintf(w, "  %-24s ages %d-%d months\n", s.Label(), minAge, maxAge)
		}
	}
}

type normsLookupFlags struct {
	source      string
	tablesFile  string
	url         string
	ageInMonths int
	subtest     string
	raw         int
	sum         int
}

func newNormsLookupCmd() *cobra.Command {
	var f normsLookupFlags
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Look up one subtest or composite score",
		Example: `  owls norms lookup --tables norms.yaml --subtest lc --age-months 75 --raw 20
  owls norms lookup --tables norms.yaml --sum 203`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNormsLookup(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.source, "source", "file", "norm source: file or http")
	cmd.Flags().StringVar(&f.tablesFile, "tables", "norms.yaml", "norm table file for the file source")
	cmd.Flags().StringVar(&f.url, "url", "", "base URL for the http source")
	cmd.Flags().IntVar(&f.ageInMonths, "age-months", 0, "student age in months")
	cmd.Flags().StringVar(&f.subtest, "subtest", "", "subtest: lc, oe, listening_comprehension or oral_expression")
	cmd.Flags().IntVar(&f.raw, "raw", 0, "raw score")
	cmd.Flags().IntVar(&f.sum, "sum", -1, "sum of subtest standard scores for a composite lookup")
	cmd.MarkFlagsMutuallyExclusive("subtest", "sum")
	return cmd
}

func runNormsLookup(cmd *cobra.Command, f normsLookupFlags) error {
	cfg := application.DefaultConfig().Norms
	cfg.Source = f.source
	cfg.TablesFile = f.tablesFile
	cfg.URL = f.url

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := norms.NewLookupFromConfig(cmd.Context(), cfg, nil, logger)
	if err != nil {
		return err
	}

	var (
		query norms.Query
		score domain.NormScore
	)
	switch {
	case f.subtest != "":
		subtest, err := domain.ParseSubtest(f.subtest)
		if err != nil {
			return err
		}
		query = norms.SubtestQuery(f.ageInMonths, subtest, f.raw)
		score, err = client.SubtestScore(cmd.Context(), f.ageInMonths, subtest, f.raw)
		if err != nil {
			return err
		}
	case f.sum >= 0:
		query = norms.CompositeQuery(f.sum)
		score, err = client.CompositeScore(cmd.Context(), f.sum)
		if err != nil {
			return err
		}
	default:
		return errors.New("either --subtest or --sum is required")
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Query  string           `json:"query"`
		Source string           `json:"source"`
		Score  domain.NormScore `json:"score"`
	}{Query: query.String(), Source: client.Source(), Score: score})
}
