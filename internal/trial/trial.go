// Package trial implements the append-only per-session trial log and its
// companion summary snapshot.
//
// The summaryDAT file is rewritten atomically after every trial
// (write-temp-then-rename), so an external reader always sees a
// coherent snapshot.
package trial

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// StimulusClass is the class of a trial's stimulus presentation.
type StimulusClass string

const (
	ClassSPlus      StimulusClass = "sPlus"
	ClassSMinus     StimulusClass = "sMinus"
	ClassProbePlus  StimulusClass = "probePlus"
	ClassProbeMinus StimulusClass = "probeMinus"
)

// Response is the subject's response to a trial.
type Response string

const (
	ResponseSPlus  Response = "sPlus"
	ResponseSMinus Response = "sMinus"
	ResponseNone   Response = "none"
	ResponseErr    Response = "ERR"
)

// Trial is one row of the trialdata CSV.
type Trial struct {
	SessionIndex     int
	Index            int
	StimulusPath     string
	Class            StimulusClass
	Response         Response
	ResponseLatency  float64 // seconds; NaN if no response was timed
	RewardIssued     bool
	PunishIssued     bool
	Timestamp        time.Time
}

var csvHeader = []string{
	"session_index", "index", "stimulus_path", "class", "response",
	"response_latency_seconds", "reward_issued", "punish_issued", "timestamp",
}

func (t Trial) toRow() []string {
	latency := "NaN"
	if !math.IsNaN(t.ResponseLatency) {
		latency = strconv.FormatFloat(t.ResponseLatency, 'f', -1, 64)
	}
	return []string{
		strconv.Itoa(t.SessionIndex),
		strconv.Itoa(t.Index),
		t.StimulusPath,
		string(t.Class),
		string(t.Response),
		latency,
		strconv.FormatBool(t.RewardIssued),
		strconv.FormatBool(t.PunishIssued),
		t.Timestamp.Format(time.RFC3339),
	}
}

// Summary is the compact JSON snapshot maintained alongside the CSV.
type Summary struct {
	Phase              string  `json:"phase"`
	Block              int     `json:"block"`
	LastTrialTime      string  `json:"last_trial_time"`
	Trials             int     `json:"trials"`
	ProbeTrials        int     `json:"probe_trials"`
	Feeds              int     `json:"feeds"`
	CorrectResponses   int     `json:"correct_responses"`
	FalseAlarms        int     `json:"false_alarms"`
	Misses             int     `json:"misses"`
	SPlusNR            int     `json:"splus_nr"`
	CorrectRejections  int     `json:"correct_rejections"`
	SMinusNR           int     `json:"sminus_nr"`
	ProbeHit           int     `json:"probe_hit"`
	ProbeFA            int     `json:"probe_FA"`
	ProbeMiss          int     `json:"probe_miss"`
	ProbeMissNR        int     `json:"probe_miss_nr"`
	ProbeCR            int     `json:"probe_CR"`
	ProbeCRNR          int     `json:"probe_CR_nr"`
	Dprime             float64 `json:"dprime"`
	DprimeNR           float64 `json:"dprime_NR"`
	Bias               float64 `json:"bias"`
	BiasNR             float64 `json:"bias_NR"`
	BiasDescription    string  `json:"bias_description"`
	BiasDescriptionNR  string  `json:"bias_description_NR"`
}

// Logger owns one session's trialdata CSV, summaryDAT, and error.log.
// It is the single writer; atomic publication only needs to hold for
// the summary file, since the CSV is append-only and never read
// mid-session by anything but this Logger.
type Logger struct {
	dir         string
	subject     string
	csvPath     string
	summaryPath string
	errorPath   string

	f      *os.File
	w      *csv.Writer
	phase  string
	sum    Summary
}

// New creates trialdata/<subject>_<sessionISO>.csv with its header and
// prepares the sibling summaryDAT/error.log paths.
func New(root, subject string, sessionStart time.Time, phase string) (*Logger, error) {
	dataDir := filepath.Join(root, "trialdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("trial: mkdir trialdata: %w", err)
	}
	sessionISO := sessionStart.Format("20060102T150405")
	csvPath := filepath.Join(dataDir, fmt.Sprintf("%s_%s.csv", subject, sessionISO))
	f, err := os.Create(csvPath)
	if err != nil {
		return nil, fmt.Errorf("trial: create trialdata csv: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("trial: write csv header: %w", err)
	}
	w.Flush()
	l := &Logger{
		dir:         root,
		subject:     subject,
		csvPath:     csvPath,
		summaryPath: filepath.Join(root, subject+".summaryDAT"),
		errorPath:   filepath.Join(root, "error.log"),
		f:           f,
		w:           w,
		phase:       phase,
	}
	l.sum.Phase = phase
	return l, nil
}

// Append writes one trial row, updates the in-memory running summary,
// and rewrites summaryDAT atomically.
func (l *Logger) Append(t Trial) error {
	if err := l.w.Write(t.toRow()); err != nil {
		return fmt.Errorf("trial: write row: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("trial: flush: %w", err)
	}
	l.updateSummary(t)
	return l.writeSummary()
}

func (l *Logger) updateSummary(t Trial) {
	l.sum.LastTrialTime = t.Timestamp.Format(time.RFC3339)
	class := Classify(t.Class, t.Response)
	switch class {
	case ResponseHit:
		l.sum.Trials++
		l.sum.CorrectResponses++
	case ResponseMiss:
		l.sum.Trials++
		l.sum.Misses++
	case ResponseMissNR:
		l.sum.Trials++
		l.sum.SPlusNR++
	case ResponseFA:
		l.sum.Trials++
		l.sum.FalseAlarms++
	case ResponseCR:
		l.sum.Trials++
		l.sum.CorrectRejections++
	case ResponseCRNR:
		l.sum.Trials++
		l.sum.SMinusNR++
	case ProbeHit:
		l.sum.ProbeTrials++
		l.sum.ProbeHit++
	case ProbeMiss:
		l.sum.ProbeTrials++
		l.sum.ProbeMiss++
	case ProbeMissNR:
		l.sum.ProbeTrials++
		l.sum.ProbeMissNR++
	case ProbeFA:
		l.sum.ProbeTrials++
		l.sum.ProbeFA++
	case ProbeCR:
		l.sum.ProbeTrials++
		l.sum.ProbeCR++
	case ProbeCRNR:
		l.sum.ProbeTrials++
		l.sum.ProbeCRNR++
	}
	if t.RewardIssued {
		l.sum.Feeds++
	}
	dp, dpNR, b, bNR, bDesc, bDescNR := runningMetrics(l.sum)
	l.sum.Dprime = dp
	l.sum.DprimeNR = dpNR
	l.sum.Bias = b
	l.sum.BiasNR = bNR
	l.sum.BiasDescription = bDesc
	l.sum.BiasDescriptionNR = bDescNR
}

func (l *Logger) writeSummary() error {
	b, err := json.MarshalIndent(l.sum, "", "  ")
	if err != nil {
		return fmt.Errorf("trial: marshal summary: %w", err)
	}
	dir := filepath.Dir(l.summaryPath)
	tmp, err := os.CreateTemp(dir, ".summary-*.tmp")
	if err != nil {
		return fmt.Errorf("trial: create temp summary: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("trial: write temp summary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("trial: close temp summary: %w", err)
	}
	if err := os.Rename(tmpPath, l.summaryPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("trial: rename temp summary: %w", err)
	}
	return nil
}

// SetBlock records the block the session is currently in and
// republishes the summary, so the supervisor can resume the worker at
// the same block after a sleep/wake or crash cycle.
func (l *Logger) SetBlock(index int) error {
	l.sum.Block = index
	return l.writeSummary()
}

// ReadSummary reads the currently-published summary for subject under
// root, for use by the supervisor's per-tick publication.
func ReadSummary(root, subject string) (*Summary, error) {
	b, err := os.ReadFile(filepath.Join(root, subject+".summaryDAT"))
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("trial: parse summary: %w", err)
	}
	return &s, nil
}

// LogError appends one line to error.log.
func (l *Logger) LogError(err error) error {
	f, e := os.OpenFile(l.errorPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if e != nil {
		return fmt.Errorf("trial: open error.log: %w", e)
	}
	defer f.Close()
	line := fmt.Sprintf("%s\t%v\n", time.Now().Format(time.RFC3339), err)
	if _, e := f.WriteString(line); e != nil {
		return fmt.Errorf("trial: write error.log: %w", e)
	}
	return nil
}

// Close flushes and closes the trialdata CSV.
func (l *Logger) Close() error {
	l.w.Flush()
	return l.f.Close()
}

// CSVPath returns the path of the trialdata CSV this Logger writes,
// primarily for tests.
func (l *Logger) CSVPath() string { return l.csvPath }
