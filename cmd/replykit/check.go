package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one polling cycle across all accounts and exit",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	application, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	results := application.processor.RunAll(ctx, application.registry.All())

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ACCOUNT\tATTEMPTED\tSENT\tSKIPPED\tFAILED")
	failed := 0
	for _, result := range results {
		fmt.Fprintf(writer, "%s\t%d\t%d\t%d\t%d\n",
			result.Account, result.Attempted, result.Sent, result.Skipped, result.Failed)
		failed += result.Failed + len(result.Errors)
	}
	writer.Flush()

	for _, result := range results {
		for _, message := range result.Errors {
			fmt.Fprintf(os.Stderr, "%s: %s\n", result.Account, message)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d failure(s) during the polling cycle", failed)
	}
	return nil
}
