/*
Package cli provides command-line interface utilities for Ganymede.

The cli package includes output formatters, error types, and common CLI
helpers used by the ganymede command.

Output Formatting:

Command results can be rendered as plain text or JSON:

	formatter := cli.NewFormatter(cli.FormatJSON)
	data := MyCommandResult{...}
	if err := formatter.FormatTo(os.Stdout, data); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
