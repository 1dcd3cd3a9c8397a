package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"cxqa-go/internal/actionable"
	"cxqa-go/internal/aggregator"
	"cxqa-go/internal/agreement"
	"cxqa-go/internal/logger"
	"cxqa-go/internal/types"
)

const (
	sheetAgreement = "Agreement"
	sheetAgents    = "Agents"
	sheetActions   = "Actions"
)

// Report is everything the evaluation workbook shows.
type Report struct {
	ModelVersion string
	Pairs        int
	Agreement    map[types.Dimension]agreement.Agreement
	Insight      aggregator.Insight
	Cards        []actionable.ActionCard
}

// WriteEvaluationReport writes the report as an xlsx workbook with one sheet
// per section.
func WriteEvaluationReport(path string, r Report) error {
	log := logger.New().WithComponent("dataset.report").WithField("path", path)

	f := excelize.NewFile()
	defer f.Close()

	// the default sheet becomes the agreement sheet
	if err := f.SetSheetName(f.GetSheetName(0), sheetAgreement); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, s := range []string{sheetAgents, sheetActions} {
		if _, err := f.NewSheet(s); err != nil {
			return fmt.Errorf("new sheet %s: %w", s, err)
		}
	}

	agreementRows := [][]any{
		{"model_version", r.ModelVersion},
		{"pairs", r.Pairs},
		{},
		{"dimension", "kappa", "pearson_r", "mae", "n", "degenerate"},
	}
	for _, d := range types.Dimensions {
		a, ok := r.Agreement[d]
		if !ok {
			continue
		}
		agreementRows = append(agreementRows, []any{string(d), a.Kappa, a.PearsonR, a.MAE, a.N, a.Degenerate})
	}
	if err := writeRows(f, sheetAgreement, agreementRows); err != nil {
		return err
	}

	agentRows := [][]any{{"agent_id", "agent_name", "conversations", "degraded",
		string(types.Professionalism), string(types.Friendliness), string(types.ResolutionEffectiveness)}}
	for _, a := range r.Insight.Agents {
		agentRows = append(agentRows, []any{a.AgentID, a.AgentName, a.Conversations, a.Degraded,
			a.Mean[types.Professionalism], a.Mean[types.Friendliness], a.Mean[types.ResolutionEffectiveness]})
	}
	if err := writeRows(f, sheetAgents, agentRows); err != nil {
		return err
	}

	cardRows := [][]any{{"agent_id", "dimension", "insight", "action", "impact"}}
	for _, c := range r.Cards {
		cardRows = append(cardRows, []any{c.AgentID, string(c.Dimension), c.Insight, c.Action, c.Impact})
	}
	if err := writeRows(f, sheetActions, cardRows); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		log.WithError(err).Error("save failed")
		return fmt.Errorf("save report: %w", err)
	}
	log.WithField("agents", len(r.Insight.Agents)).Info("evaluation report written")
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
