package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"taxlab-hq/ledger/pkg/api"
	"taxlab-hq/ledger/pkg/cli"
)

var datasetFlags struct {
	country string
}

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage stored microdata",
}

var datasetWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Build and store each country's microdata",
	Long: `Load each country's dataset, generating and storing it when missing or
corrupt, and build its baseline simulation. Running this before the server
starts keeps the first population request fast.

Examples:
  ledger dataset warm
  ledger dataset warm --country uk`,
	Args: cobra.NoArgs,
	RunE: warmDatasets,
}

func init() {
	rootCmd.AddCommand(datasetCmd)
	datasetCmd.AddCommand(datasetWarmCmd)

	datasetWarmCmd.Flags().StringVar(&datasetFlags.country, "country", "", "only this country")
	_ = datasetWarmCmd.RegisterFlagCompletionFunc("country", completeCountries)
}

func warmDatasets(cmd *cobra.Command, args []string) error {
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
		return cli.NewCommandError("dataset warm", err)
	}
	defer a.close()
	if err := a.openCountries(); err != nil {
		return cli.NewCommandError("dataset warm", err)
	}

	runtimes := a.runtimes
	if datasetFlags.country != "" {
		rt, err := a.runtime(datasetFlags.country)
		if err != nil {
			return err
		}
		runtimes = []*api.Runtime{rt}
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	out := cmd.OutOrStdout()
	progress := cli.NewProgressReporter(out).(*cli.SimpleProgress)
	progress.Label = "Datasets"
	progress.Unit = "countries"
	progress.Start(int64(len(runtimes)))
	for i, rt := range runtimes {
		if err := rt.Warm(ctx); err != nil {
			progress.Error(err)
			return cli.NewCommandError("dataset warm", fmt.Errorf("%s: %w", rt.Name(), err))
		}
		progress.Update(int64(i + 1))
	}
	progress.Finish()

	fmt.Fprintf(out, "✓ %d dataset(s) ready\n", len(runtimes))
	return nil
}
