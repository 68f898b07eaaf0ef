package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replykit-io/replykit/internal/verify"
)

var dkimSelectorFlag string

var verifyDomainCmd = &cobra.Command{
	Use:   "verify-domain <domain>",
	Short: "Check SPF, DKIM and MX records for a sending domain",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerifyDomain,
}

func init() {
	verifyDomainCmd.Flags().StringVar(&dkimSelectorFlag, "selector", "default", "DKIM selector to look up")
}

func runVerifyDomain(cmd *cobra.Command, args []string) error {
	domain := args[0]
	verifier := verify.New()
	result := verifier.Verify(context.Background(), domain, dkimSelectorFlag)

	mark := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "MISSING"
	}
	fmt.Printf("domain: %s\n", result.Domain)
	fmt.Printf("  spf:  %s\n", mark(result.SPFValid))
	fmt.Printf("  dkim: %s (selector %s)\n", mark(result.DKIMValid), dkimSelectorFlag)
	fmt.Printf("  mx:   %s\n", mark(result.MXValid))

	if !result.SPFValid || !result.DKIMValid || !result.MXValid {
		return fmt.Errorf("domain %s has missing records", domain)
	}
	return nil
}
