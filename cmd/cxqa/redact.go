package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"cxqa-go/internal/redact"
)

var redactEntities bool

var redactCmd = &cobra.Command{
	Use:   "redact",
	Short: "Redact PII from stdin",
	Long:  "Read text from stdin and write it to stdout with emails, phone numbers, card numbers and titled names replaced by tokens.",
	Args:  cobra.NoArgs,
	RunE:  runRedact,
}

func init() {
	redactCmd.Flags().BoolVar(&redactEntities, "entities", false, "Print the detected entities as JSON instead of the redacted text")
	rootCmd.AddCommand(redactCmd)
}

func runRedact(cmd *cobra.Command, _ []string) error {
	in, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if redactEntities {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(redact.Detect(string(in)))
	}
	out, _ := redact.Redact(string(in))
	_, err = io.WriteString(cmd.OutOrStdout(), out)
	return err
}
