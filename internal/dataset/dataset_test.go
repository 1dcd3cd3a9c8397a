package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"cxqa-go/internal/actionable"
	"cxqa-go/internal/aggregator"
	"cxqa-go/internal/agreement"
	"cxqa-go/internal/types"
)

func writeSheet(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	path := filepath.Join(t.TempDir(), "labels.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadLabels(t *testing.T) {
	path := writeSheet(t, [][]any{
		{"Conversation ID", "Professionalism", "Friendliness", "Resolution Effectiveness", "Labeled By", "Notes"},
		{"c-1", 4, 5, 3, "qa-1", "good"},
		{"c-2", "2", "3.0", "1", "", ""},
		{"c-3", 6, 3, 3, "qa-1", "out of range"},
		{"c-4", "high", 3, 3, "", ""},
		{"", 3, 3, 3, "", "missing id"},
	})

	sheet, err := LoadLabels(path)
	require.NoError(t, err)
	require.Len(t, sheet.Labels, 2)

	first := sheet.Labels[0]
	assert.Equal(t, "c-1", first.ConversationID)
	assert.Equal(t, types.LabelScores{Professionalism: 4, Friendliness: 5, ResolutionEffectiveness: 3}, first.LabelScores)
	assert.Equal(t, "qa-1", first.LabeledBy)
	assert.Equal(t, "good", first.Notes)
	assert.Equal(t, 3, sheet.Labels[1].Friendliness)

	require.Len(t, sheet.Skipped, 3)
	assert.Equal(t, 4, sheet.Skipped[0].Row)
	assert.Equal(t, 5, sheet.Skipped[1].Row)
	assert.Equal(t, 6, sheet.Skipped[2].Row)
}

func TestLoadLabels_PositionalFallback(t *testing.T) {
	path := writeSheet(t, [][]any{
		{"a", "b", "c", "d"},
		{"c-9", 1, 2, 3},
	})
	sheet, err := LoadLabels(path)
	require.NoError(t, err)
	require.Len(t, sheet.Labels, 1)
	assert.Equal(t, "c-9", sheet.Labels[0].ConversationID)
	assert.Equal(t, 3, sheet.Labels[0].ResolutionEffectiveness)
}

func TestLoadLabels_Errors(t *testing.T) {
	_, err := LoadLabels(filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)

	_, err = LoadLabels(writeSheet(t, [][]any{{"Conversation ID", "Professionalism"}}))
	assert.Error(t, err)

	_, err = LoadLabels(writeSheet(t, [][]any{
		{"Conversation ID", "Professionalism", "Notes"},
		{"c-1", 3, ""},
	}))
	assert.Error(t, err)
}

func TestLoadRecords(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}
	single := write("b.json", `{"conversation_id":"c-1","agent_id":"a-1","transcript":"hello there, how can I help"}`)
	array := write("a.json", `[{"conversation_id":"c-2","agent_id":"a-1"},{"conversation_id":"c-3","agent_id":"a-2"}]`)
	lines := write("c.jsonl", "{\"conversation_id\":\"c-4\",\"agent_id\":\"a-1\"}\n{\"conversation_id\":\"c-5\",\"agent_id\":\"a-1\"}\n")
	write("notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	files, err := ListRecordFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{array, single, lines}, files)

	recs, err := LoadRecords(single)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a-1", recs[0].AgentID)

	recs, err = LoadRecords(array)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = LoadRecords(lines)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c-5", recs[1].ConversationID)

	_, err = LoadRecords(write("bad.json", `{"conversation_id":`))
	assert.Error(t, err)

	recs, err = LoadRecords(write("empty.json", "  \n"))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestWriteEvaluationReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "eval.xlsx")
	summary := aggregator.AgentSummary{
		AgentID:       "a-1",
		Conversations: 2,
		Mean:          map[types.Dimension]float64{types.Professionalism: 2.0, types.Friendliness: 4.0, types.ResolutionEffectiveness: 3.5},
	}
	err := WriteEvaluationReport(path, Report{
		ModelVersion: "heuristic-v1",
		Pairs:        5,
		Agreement: map[types.Dimension]agreement.Agreement{
			types.Professionalism: {Kappa: 1, PearsonR: 0.99, MAE: 0.14, N: 5},
		},
		Insight: aggregator.Insight{Agents: []aggregator.AgentSummary{summary}, Conversations: 2},
		Cards:   []actionable.ActionCard{actionable.Generate(summary)},
	})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{sheetAgreement, sheetAgents, sheetActions}, f.GetSheetList())

	v, err := f.GetCellValue(sheetAgreement, "B1")
	require.NoError(t, err)
	assert.Equal(t, "heuristic-v1", v)

	v, err = f.GetCellValue(sheetAgreement, "A5")
	require.NoError(t, err)
	assert.Equal(t, string(types.Professionalism), v)

	v, err = f.GetCellValue(sheetAgents, "A2")
	require.NoError(t, err)
	assert.Equal(t, "a-1", v)

	v, err = f.GetCellValue(sheetActions, "B2")
	require.NoError(t, err)
	assert.Equal(t, string(types.Professionalism), v)
}
