// Command cxqa scores customer-service conversations and evaluates the
// scores against human QA labels.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "cxqa",
	Short:         "Customer-service conversation quality audit",
	Long:          "cxqa redacts and scores customer-service transcripts, stores the results and measures agreement with human QA labels.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
