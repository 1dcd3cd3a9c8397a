package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cxqa-go/internal/calibration"
	"cxqa-go/internal/scoring"
	"cxqa-go/internal/types"
)

var (
	calibrateModelVersion string
	calibrateOut          string
	calibrateMinPairs     int
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Fit a calibrator from labeled conversations",
	Long: `Fit one isotonic function per dimension on the stored (model score, human label)
pairs of a model version and save it as JSON.`,
	RunE: runCalibrate,
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateModelVersion, "model-version", scoring.HeuristicVersion, "Model version whose scores are calibrated")
	calibrateCmd.Flags().StringVar(&calibrateOut, "out", "", "Output path (default CALIBRATOR_PATH)")
	calibrateCmd.Flags().IntVar(&calibrateMinPairs, "min-pairs", 2, "Minimum labeled pairs required to fit")
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
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
	pairs, err := st.LabeledPairs(ctx, calibrateModelVersion)
	if err != nil {
		return err
	}
	if len(pairs) < calibrateMinPairs {
		return &types.ValidationError{
			Field:   "pairs",
			Message: fmt.Sprintf("%d labeled pairs for %s, need at least %d", len(pairs), calibrateModelVersion, calibrateMinPairs),
		}
	}

	c, err := calibration.FitPairs(pairs)
	if err != nil {
		return err
	}
	out := calibrateOut
	if out == "" {
		out = a.cfg.CalibratorPath
	}
	if err := c.Save(out); err != nil {
		return err
	}
	a.log.WithComponent("calibration").
		WithField("model_version", c.ModelVersion).
		WithField("samples", c.Samples).
		WithField("path", out).
		Info("calibrator saved")
	fmt.Fprintf(cmd.OutOrStdout(), "calibrator for %s fitted on %d pairs, saved to %s\n", c.ModelVersion, c.Samples, out)
	return nil
}
