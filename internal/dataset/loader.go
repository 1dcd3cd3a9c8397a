// Package dataset reads ingest records and human-label spreadsheets and
// writes evaluation reports.
package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"cxqa-go/internal/types"
)

// RowError describes a spreadsheet row that was skipped.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type LabelSheet struct {
	Labels  []types.HumanLabel
	Skipped []RowError
}

type labelColumns struct {
	conversation, professionalism, friendliness, resolution int
	labeledBy, notes, labeledAt                             int
}

// detectLabelColumns finds columns by header heuristics. Missing columns are -1.
func detectLabelColumns(header []string) labelColumns {
	c := labelColumns{-1, -1, -1, -1, -1, -1, -1}
	set := func(idx *int, i int) {
		if *idx == -1 {
			*idx = i
		}
	}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "profession"):
			set(&c.professionalism, i)
		case strings.Contains(l, "friend"):
			set(&c.friendliness, i)
		case strings.Contains(l, "resolution") || strings.Contains(l, "effective"):
			set(&c.resolution, i)
		case strings.Contains(l, "conversation") || strings.Contains(l, "conv") || strings.Contains(l, "call id") || l == "id":
			set(&c.conversation, i)
		case strings.Contains(l, "labeled_by") || strings.Contains(l, "labeled by") || strings.Contains(l, "rater") || strings.Contains(l, "reviewer"):
			set(&c.labeledBy, i)
		case strings.Contains(l, "note") || strings.Contains(l, "comment"):
			set(&c.notes, i)
		case strings.Contains(l, "date") || strings.Contains(l, "labeled_at") || strings.Contains(l, "labeled at"):
			set(&c.labeledAt, i)
		}
	}
	// fallback: first four columns in id, professionalism, friendliness, resolution order
	if c.conversation == -1 && c.professionalism == -1 && c.friendliness == -1 && c.resolution == -1 && len(header) >= 4 {
		c.conversation, c.professionalism, c.friendliness, c.resolution = 0, 1, 2, 3
	}
	return c
}

// LoadLabels reads human labels from the first sheet of an xlsx workbook.
// Rows that fail validation are reported in Skipped, not returned as errors.
func LoadLabels(path string) (LabelSheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return LabelSheet{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return LabelSheet{}, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return LabelSheet{}, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return LabelSheet{}, fmt.Errorf("no data rows")
	}

	cols := detectLabelColumns(rows[0])
	if cols.conversation == -1 || cols.professionalism == -1 || cols.friendliness == -1 || cols.resolution == -1 {
		return LabelSheet{}, fmt.Errorf("missing required columns in header %v", rows[0])
	}

	var out LabelSheet
	for i, r := range rows {
		if i == 0 {
			continue
		}
		rowNum := i + 1
		cell := func(idx int) string {
			if idx >= 0 && idx < len(r) {
				return strings.TrimSpace(r[idx])
			}
			return ""
		}
		if strings.Join(r, "") == "" {
			continue
		}

		label := types.HumanLabel{
			ConversationID: cell(cols.conversation),
			LabeledBy:      cell(cols.labeledBy),
			Notes:          cell(cols.notes),
		}
		var convErr error
		if label.Professionalism, convErr = atoiCell(cell(cols.professionalism)); convErr == nil {
			if label.Friendliness, convErr = atoiCell(cell(cols.friendliness)); convErr == nil {
				label.ResolutionEffectiveness, convErr = atoiCell(cell(cols.resolution))
			}
		}
		if convErr != nil {
			out.Skipped = append(out.Skipped, RowError{Row: rowNum, Reason: convErr.Error()})
			continue
		}
		if at := cell(cols.labeledAt); at != "" {
			if t, err := parseDate(at); err == nil {
				label.LabeledAt = t
			}
		}
		if err := label.Validate(); err != nil {
			out.Skipped = append(out.Skipped, RowError{Row: rowNum, Reason: err.Error()})
			continue
		}
		out.Labels = append(out.Labels, label)
	}
	return out, nil
}

// atoiCell accepts integers and integral floats like "4.0" as spreadsheets store them.
func atoiCell(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("score %q is not an integer", s)
	}
	return int(f), nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "01-02-06"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
