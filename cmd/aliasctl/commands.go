package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/usecase"
)

var (
	addType     string
	approveType string
	resolveType string
	confidence  float64
	listTicker  string
	listLimit   int
	reviewLimit int
	mentionFrom string
	seedAliases bool
	evalJSON    bool
	evalAliases bool
	evalMinAcc  float64
)

var addCmd = &cobra.Command{
	Use:   "add <raw_name> <ticker>",
	Short: "Write a manual alias",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd.Context(), false, func(s *stack) error {
			stored, outcome, err := s.curation.Curate(cmd.Context(), models.EntityAlias{
				RawName:    args[0],
				Ticker:     models.NormalizeTicker(args[1]),
				EntityType: models.EntityType(strings.ToUpper(addType)),
				Confidence: confidence,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %q -> %s\n", outcome, stored.RawName, stored.Ticker)
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List aliases, optionally of one ticker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStack(cmd.Context(), false, func(s *stack) error {
			aliases, err := s.curation.List(cmd.Context(), models.NormalizeTicker(listTicker), listLimit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RAW NAME\tTICKER\tTYPE\tSOURCE\tCONFIDENCE")
			for _, a := range aliases {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\n", a.RawName, a.Ticker, a.EntityType, a.Source, a.Confidence)
			}
			return w.Flush()
		})
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect and decide pending review items",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending review items with their top candidates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStack(cmd.Context(), false, func(s *stack) error {
			items, err := s.curation.Pending(cmd.Context(), reviewLimit, 0)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, it := range items {
				fmt.Fprintf(out, "%s  %q  source=%s type=%s\n", it.ID, it.RawName, it.Source, it.EntityType)
				for _, c := range it.TopCandidates {
					fmt.Fprintf(out, "    %-10s %.3f  (%s)\n", c.Ticker, c.Confidence, c.RawName)
				}
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "review queue is empty")
			}
			return nil
		})
	},
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <id> <ticker>",
	Short: "Approve a review item as a manual alias of ticker",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd.Context(), false, func(s *stack) error {
			a, err := s.curation.Approve(cmd.Context(), args[0], models.NormalizeTicker(args[1]), models.EntityType(strings.ToUpper(approveType)), confidence)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "approved %q -> %s\n", a.RawName, a.Ticker)
			return nil
		})
	},
}

var reviewDiscardCmd = &cobra.Command{
	Use:   "discard <id>",
	Short: "Drop a review item without writing an alias",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd.Context(), false, func(s *stack) error {
			it, err := s.curation.Discard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "discarded %q\n", it.RawName)
			return nil
		})
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <raw_name>",
	Short: "Resolve a raw name and print the decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd.Context(), false, func(s *stack) error {
			res, err := s.resolver.Resolve(cmd.Context(), models.RawMention{
				RawName:    args[0],
				Source:     mentionFrom,
				EntityType: models.EntityType(strings.ToUpper(resolveType)),
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <entities.json>",
	Short: "Load {name, ticker, aliases[]} records as manual aliases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entities, err := readCatalog(args[0])
		if err != nil {
			return err
		}
		return withStack(cmd.Context(), false, func(s *stack) error {
			rep, err := usecase.Seed(cmd.Context(), s.curation, entities, seedAliases)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted=%d updated=%d unchanged=%d conflicts=%d\n",
				rep.Inserted, rep.Updated, rep.Unchanged, len(rep.Conflicts))
			for _, c := range rep.Conflicts {
				fmt.Fprintf(cmd.OutOrStdout(), "  conflict: %q\n", c)
			}
			return nil
		})
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval <golden.json>",
	Short: "Run a golden set through the resolver and report accuracy",
	Long: `Loads each record's canonical name into a scratch in-memory catalog, then
resolves every test query and compares the linked ticker with the expected one.
Aliases are withheld unless --with-aliases is set, so the run measures fuzzy and
semantic matching rather than exact lookups.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entities, err := readCatalog(args[0])
		if err != nil {
			return err
		}
		return withStack(cmd.Context(), true, func(s *stack) error {
			if _, err := usecase.Seed(cmd.Context(), s.curation, entities, evalAliases); err != nil {
				return err
			}
			rep, err := usecase.Evaluate(cmd.Context(), s.resolver, entities)
			if err != nil {
				return err
			}
			if evalJSON {
				if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), rep)
			}
			if rep.Accuracy < evalMinAcc {
				return fmt.Errorf("accuracy %.2f%% below required %.2f%%", rep.Accuracy*100, evalMinAcc*100)
			}
			return nil
		})
	},
}

func init() {
	addCmd.Flags().StringVar(&addType, "type", string(models.EntityTypeAlias), "entity type (SUBSIDIARY, SUPPLIER, ALIAS)")
	addCmd.Flags().Float64Var(&confidence, "confidence", 1, "confidence stored with the alias")

	listCmd.Flags().StringVar(&listTicker, "ticker", "", "only aliases of this ticker")
	listCmd.Flags().IntVar(&listLimit, "limit", 100, "maximum rows")

	reviewListCmd.Flags().IntVar(&reviewLimit, "limit", 50, "maximum items")
	reviewApproveCmd.Flags().StringVar(&approveType, "type", "", "entity type, defaults to the item's")
	reviewApproveCmd.Flags().Float64Var(&confidence, "confidence", 1, "confidence stored with the alias")
	reviewCmd.AddCommand(reviewListCmd, reviewApproveCmd, reviewDiscardCmd)

	resolveCmd.Flags().StringVar(&mentionFrom, "source", "aliasctl", "mention source")
	resolveCmd.Flags().StringVar(&resolveType, "type", "", "entity type, defaults to ALIAS")

	seedCmd.Flags().BoolVar(&seedAliases, "aliases", true, "also write each record's aliases")

	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "print the report as JSON")
	evalCmd.Flags().BoolVar(&evalAliases, "with-aliases", false, "seed aliases as well as canonical names")
	evalCmd.Flags().Float64Var(&evalMinAcc, "min-accuracy", 0, "fail when accuracy is below this fraction")
}

func readCatalog(path string) ([]usecase.CatalogEntity, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var entities []usecase.CatalogEntity
	if err := json.Unmarshal(b, &entities); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entities, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, rep usecase.EvalReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUERY\tEXPECTED\tRESULT\tSCORE\tMETHOD\tSTATUS")
	for _, c := range rep.Cases {
		got, status := c.Got, "FAIL"
		if got == "" {
			got = "N/A"
		}
		if c.Pass {
			status = "PASS"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n", c.Query, c.Expected, got, c.Confidence, c.Method, status)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\nresults: %d/%d passed, accuracy %.2f%%\n", rep.Passed, rep.Total, rep.Accuracy*100)
}
