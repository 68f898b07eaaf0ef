package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "replykit",
	Short: "Replykit - multi-account mailbox polling and reply automation",
	Long: `Replykit polls a fleet of mail accounts over IMAP or POP3, drafts
replies to unread messages with an AI model, and sends them over SMTP.
Every reply is recorded in a durable ledger so a message is never
answered twice.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "config.yaml", "Path to the configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(verifyDomainCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
