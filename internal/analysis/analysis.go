// Package analysis implements the performance analyzer: it ingests
// trialdata CSVs written by internal/trial, classifies every row,
// groups and filters the results, and computes the signal-detection
// metrics and criteria checks the experimenters depend on. Grouping is
// an explicit insertion-order-preserving map walk.
package analysis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/multiverse-labs/operant/internal/trial"
)

// Row is one ingested trialdata CSV row, widened with file, subject,
// session, and block bookkeeping.
type Row struct {
	File             string
	Subject          string
	SessionIndex     int
	Block            string
	Index            int
	Time             time.Time
	Stimulus         string
	Class            trial.StimulusClass
	Response         trial.Response
	ResponseLatency  float64
	Reward           bool
	Punish           bool
	Classification   trial.Classification
}

// legacyBlockNames rewrites the old "training N" labels to the
// descriptive names experimenters use today.
var legacyBlockNames = map[string]string{
	"training 1":  "training 125",
	"training 2":  "training 150",
	"training 3":  "training 175",
	"training 4":  "training 125/150",
	"training 4b": "training 175",
	"training 5":  "training 125/150/175",
	"training 5b": "training 125/150/175",
}

func rewriteBlockName(name string) string {
	if rewritten, ok := legacyBlockNames[name]; ok {
		return rewritten
	}
	return name
}

// Ingest walks each experimentDir's trialdata/ and settings_files/
// directories and returns every row with class/response/classification
// resolved. A row whose CSV "block" column is present uses it directly;
// otherwise the matching settings JSON's block_design.order supplies
// the name.
func Ingest(experimentDirs ...string) ([]Row, error) {
	var rows []Row
	for _, dir := range experimentDirs {
		dataDir := filepath.Join(dir, "trialdata")
		settingsDir := filepath.Join(dir, "settings_files")
		entries, err := os.ReadDir(dataDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("analysis: read trialdata dir %s: %w", dataDir, err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for sessionIndex, ent := range entries {
			if ent.IsDir() {
				continue
			}
			fileRows, err := ingestFile(filepath.Join(dataDir, ent.Name()), ent.Name(), sessionIndex+1, settingsDir)
			if err != nil {
				return nil, err
			}
			rows = append(rows, fileRows...)
		}
	}
	return rows, nil
}

func ingestFile(path, fileName string, sessionIndex int, settingsDir string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("analysis: open %s: %w", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("analysis: parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}
	subject := strings.SplitN(fileName, "_", 2)[0]
	blockName := blockNameFromSettings(fileName, sessionIndex, settingsDir)

	var rows []Row
	for _, rec := range records[1:] {
		if len(rec) < 9 {
			continue
		}
		idx, _ := strconv.Atoi(rec[1])
		latency, _ := strconv.ParseFloat(rec[5], 64)
		ts, _ := time.Parse(time.RFC3339, rec[8])
		block := blockName
		if len(rec) >= 10 && rec[9] != "" {
			block = rewriteBlockName(rec[9])
		}
		row := Row{
			File:            fileName,
			Subject:         subject,
			SessionIndex:    sessionIndex,
			Block:           block,
			Index:           idx,
			Time:            ts,
			Stimulus:        rec[2],
			Class:           trial.StimulusClass(rec[3]),
			Response:        trial.Response(rec[4]),
			ResponseLatency: latency,
			Reward:          rec[6] == "true",
			Punish:          rec[7] == "true",
		}
		row.Classification = trial.Classify(row.Class, row.Response)
		rows = append(rows, row)
	}
	return rows, nil
}

type blockDesign struct {
	BlockDesign struct {
		Order []string `json:"order"`
	} `json:"block_design"`
}

// blockNameFromSettings looks up block_design.order[session_index-1] in
// the settings JSON matching this trialdata file's timestamp suffix,
// then applies the legacy rewrite table.
func blockNameFromSettings(trialFileName string, sessionIndex int, settingsDir string) string {
	base := strings.TrimSuffix(trialFileName, filepath.Ext(trialFileName))
	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 {
		return ""
	}
	jsonPath := filepath.Join(settingsDir, parts[0]+"_"+parts[1]+".json")
	b, err := os.ReadFile(jsonPath)
	if err != nil {
		return ""
	}
	var bd blockDesign
	if err := json.Unmarshal(b, &bd); err != nil {
		return ""
	}
	order := bd.BlockDesign.Order
	if len(order) == 0 {
		return ""
	}
	var name string
	if len(order) == 1 {
		name = order[0]
	} else if sessionIndex-1 < len(order) {
		name = order[sessionIndex-1]
	} else {
		return ""
	}
	return rewriteBlockName(name)
}

// FilterOp is a comparison operator for the {column -> (operator,
// value)} filter map.
type FilterOp string

const (
	OpEq FilterOp = "="
	OpNe FilterOp = "!="
	OpGt FilterOp = ">"
	OpGe FilterOp = ">="
	OpLt FilterOp = "<"
	OpLe FilterOp = "<="
)

// Filter is one column's comparison.
type Filter struct {
	Op    FilterOp
	Value any
}

// FilterRows applies a {column -> Filter} map, preserving the original
// insertion order of surviving rows.
func FilterRows(rows []Row, filters map[string]Filter) ([]Row, error) {
	var out []Row
	for _, r := range rows {
		keep := true
		for col, f := range filters {
			ok, err := matchFilter(r, col, f)
			if err != nil {
				return nil, err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out, nil
}

func matchFilter(r Row, col string, f Filter) (bool, error) {
	var actual any
	switch col {
	case "Block":
		actual = r.Block
	case "Subject":
		actual = r.Subject
	case "Date":
		actual = r.Time.Truncate(24 * time.Hour)
	case "Time":
		actual = r.Time
	case "Stimulus":
		actual = r.Stimulus
	default:
		return false, fmt.Errorf("analysis: unknown filter column %q", col)
	}
	switch av := actual.(type) {
	case string:
		sv, _ := f.Value.(string)
		return compareString(av, f.Op, sv), nil
	case time.Time:
		tv, ok := f.Value.(time.Time)
		if !ok {
			return false, fmt.Errorf("analysis: filter on %q needs a time.Time value", col)
		}
		return compareTime(av, f.Op, tv), nil
	default:
		return false, fmt.Errorf("analysis: unsupported filter column %q", col)
	}
}

func compareString(a string, op FilterOp, b string) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	default:
		return false
	}
}

func compareTime(a time.Time, op FilterOp, b time.Time) bool {
	switch op {
	case OpEq:
		return a.Equal(b)
	case OpNe:
		return !a.Equal(b)
	case OpGt:
		return a.After(b)
	case OpGe:
		return a.After(b) || a.Equal(b)
	case OpLt:
		return a.Before(b)
	case OpLe:
		return a.Before(b) || a.Equal(b)
	default:
		return false
	}
}

// FilterByStartDate and FilterByBlock are convenience prefilters for
// the two filters experimenters use constantly. They do not go through
// FilterRows; each keeps the same rows FilterRows would keep for
// {"Time": (>, start)} and {"Block": (=, block)} respectively.
func FilterByStartDate(rows []Row, start time.Time) []Row {
	var out []Row
	for _, r := range rows {
		if r.Time.After(start) {
			out = append(out, r)
		}
	}
	return out
}

func FilterByBlock(rows []Row, block string) []Row {
	var out []Row
	for _, r := range rows {
		if r.Block == block {
			out = append(out, r)
		}
	}
	return out
}
