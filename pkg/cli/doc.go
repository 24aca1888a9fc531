/*
Package cli provides command-line utilities for the ledger command.

Output Formatting:

Command results can be printed as text, JSON or CSV. Tabular results use
Table, which every formatter understands:

	table := &cli.Table{Headers: []string{"name", "value"}}
	table.Append("income_tax.rate", "0.2")
	formatter := cli.NewFormatter(cli.FormatCSV)
	if err := formatter.FormatTo(os.Stdout, table); err != nil {
		return err
	}

Progress Reporting:

For long-running operations such as preparing datasets:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(len(countries)))
	for i, c := range countries {
		// Do work
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Signal Handling:

For cancellation on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
