package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cxqa-go/internal/types"
)

// ListRecordFiles returns the .json and .jsonl files in dir, sorted by name.
func ListRecordFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".json" || ext == ".jsonl" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadRecords decodes a file holding one record, a JSON array of records, or
// newline-delimited records. Records are not validated here.
func LoadRecords(path string) ([]types.ConversationRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var recs []types.ConversationRecord
		if err := json.Unmarshal([]byte(trimmed), &recs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return recs, nil
	}

	var recs []types.ConversationRecord
	dec := json.NewDecoder(strings.NewReader(trimmed))
	for dec.More() {
		var r types.ConversationRecord
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("decode %s record %d: %w", path, len(recs)+1, err)
		}
		recs = append(recs, r)
	}
	return recs, nil
}
