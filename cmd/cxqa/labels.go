package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cxqa-go/internal/dataset"
	"cxqa-go/internal/store"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Manage human QA labels",
}

var labelsImportCmd = &cobra.Command{
	Use:   "import <labels.xlsx>",
	Short: "Import human labels from a spreadsheet",
	Long: `Read the first sheet of an xlsx workbook. Columns are found by header name
(conversation id, professionalism, friendliness, resolution, labeled by, notes).
Invalid rows and labels for unknown conversations are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runLabelsImport,
}

func init() {
	labelsCmd.AddCommand(labelsImportCmd)
	rootCmd.AddCommand(labelsCmd)
}

func runLabelsImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log.WithComponent("labels").WithField("path", args[0])

	sheet, err := dataset.LoadLabels(args[0])
	if err != nil {
		return err
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	imported, unknown := 0, 0
	for _, l := range sheet.Labels {
		if err := st.SaveHumanLabel(ctx, l); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				unknown++
				log.WithField("conversation_id", l.ConversationID).Warn("label for unknown conversation skipped")
				continue
			}
			return err
		}
		imported++
	}
	for _, re := range sheet.Skipped {
		log.WithField("row", re.Row).WithField("reason", re.Reason).Warn("row skipped")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %d labels, %d invalid rows, %d unknown conversations\n",
		imported, len(sheet.Skipped), unknown)
	return nil
}
