package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"cxqa-go/internal/actionable"
	"cxqa-go/internal/aggregator"
	"cxqa-go/internal/agreement"
	"cxqa-go/internal/calibration"
	"cxqa-go/internal/dataset"
	"cxqa-go/internal/scoring"
	"cxqa-go/internal/store"
	"cxqa-go/internal/types"
)

var (
	evaluateModelVersion string
	evaluateCalibrated   bool
	evaluateReport       string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure agreement between model scores and human labels",
	Long: `Compute Cohen's kappa, Pearson r and mean absolute error per dimension over the
labeled conversations of a model version. With --calibrated the saved calibrator
is applied first. With --report an xlsx workbook with agreement, agent summaries
and coaching actions is written.`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateModelVersion, "model-version", scoring.HeuristicVersion, "Model version to evaluate")
	evaluateCmd.Flags().BoolVar(&evaluateCalibrated, "calibrated", false, "Apply the calibrator at CALIBRATOR_PATH before comparing")
	evaluateCmd.Flags().StringVar(&evaluateReport, "report", "", "Write an xlsx evaluation report to this path")
	rootCmd.AddCommand(evaluateCmd)
}

type evaluation struct {
	ModelVersion string                                  `json:"model_version"`
	Pairs        int                                     `json:"pairs"`
	Calibrated   bool                                    `json:"calibrated"`
	Agreement    map[types.Dimension]agreement.Agreement `json:"agreement"`
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	pairs, err := st.LabeledPairs(ctx, evaluateModelVersion)
	if err != nil {
		return err
	}

	human := make([]types.LabelScores, len(pairs))
	model := make([]types.Scores, len(pairs))
	for i, p := range pairs {
		human[i] = p.Human
		model[i] = p.Model
	}
	if evaluateCalibrated {
		c, err := calibration.Load(a.cfg.CalibratorPath)
		if err != nil {
			return err
		}
		if c.ModelVersion != "" && c.ModelVersion != evaluateModelVersion {
			a.log.WithComponent("evaluate").
				WithField("calibrator_version", c.ModelVersion).
				Warn("calibrator was fitted for another model version")
		}
		model = c.Apply(model)
	}

	agr, err := agreement.EvaluateAll(human, model)
	if err != nil {
		return err
	}
	res := evaluation{
		ModelVersion: evaluateModelVersion,
		Pairs:        len(pairs),
		Calibrated:   evaluateCalibrated,
		Agreement:    agr,
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}

	if evaluateReport == "" {
		return nil
	}
	rows, err := st.ScoredConversations(ctx, store.Filter{ModelVersion: evaluateModelVersion})
	if err != nil {
		return err
	}
	insight := aggregator.Aggregate(rows)
	return dataset.WriteEvaluationReport(evaluateReport, dataset.Report{
		ModelVersion: evaluateModelVersion,
		Pairs:        len(pairs),
		Agreement:    agr,
		Insight:      insight,
		Cards:        actionable.GenerateAll(insight),
	})
}
