package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"taxlab-hq/ledger/pkg/catalog"
	"taxlab-hq/ledger/pkg/cli"
	"taxlab-hq/ledger/pkg/reform"
)

var parametersFlags struct {
	country string
	date    string
	format  string
}

var parametersCmd = &cobra.Command{
	Use:   "parameters",
	Short: "List the lever catalog",
	Long: `List the levers a reform may set, with their current values.

With --date the catalog is built from the rules in force on that date, as
the parameters endpoint does for policy_date.

Examples:
  # Current catalog
  ledger parameters

  # Catalog as of a date, as CSV
  ledger parameters --country uk --date 2021-04-06 --format csv

  # Full metadata
  ledger parameters --format json`,
	Args: cobra.NoArgs,
	RunE: listParameters,
}

func init() {
	rootCmd.AddCommand(parametersCmd)

	parametersCmd.Flags().StringVar(&parametersFlags.country, "country", "", "country (required when several are configured)")
	parametersCmd.Flags().StringVar(&parametersFlags.date, "date", "", "policy date (YYYY-MM-DD)")
	parametersCmd.Flags().StringVarP(&parametersFlags.format, "format", "f", "text", "output format: text, json, csv")

	_ = parametersCmd.RegisterFlagCompletionFunc("country", completeCountries)
	_ = parametersCmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(
		[]string{"text", "json", "csv"}, cobra.ShellCompDirectiveNoFileComp))
}

func listParameters(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(parametersFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg, os.Stderr)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return cli.NewCommandError("parameters", err)
	}
	defer a.close()
	if err := a.openCountries(); err != nil {
		return cli.NewCommandError("parameters", err)
	}
	rt, err := a.runtime(parametersFlags.country)
	if err != nil {
		return err
	}

	cat := rt.Catalog().Catalog()
	if parametersFlags.date != "" {
		date, err := reform.ParseDate(parametersFlags.date)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		if cat, err = rt.Catalog().AsOf(date); err != nil {
			return cli.NewCommandError("parameters", err)
		}
	}

	formatter := cli.NewFormatter(format)
	if format == cli.FormatJSON {
		return formatter.FormatTo(cmd.OutOrStdout(), cat.Levers())
	}
	return formatter.FormatTo(cmd.OutOrStdout(), leverTable(cat))
}

func leverTable(cat *catalog.Catalog) *cli.Table {
	table := &cli.Table{Headers: []string{"name", "kind", "value", "unit", "label"}}
	for _, l := range cat.Levers() {
		table.Append(l.Name, string(l.Kind), formatValue(l.Value), l.Unit, l.Label)
	}
	return table
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
