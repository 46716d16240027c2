// Package shaping implements the shaping engine: a Shaper variant
// walks a subject through graded training blocks built from the fsm
// package's primitive state factories, reverting or advancing based on
// response statistics and yielding to a sleep block whenever the
// chamber falls outside its configured light schedule.
package shaping

import (
	"math"
	"path/filepath"
	"time"

	"github.com/multiverse-labs/operant/internal/config"
	"github.com/multiverse-labs/operant/internal/panel"
	"github.com/multiverse-labs/operant/internal/trial"
)

// Session is the per-(chamber,subject,config) shaping run.
type Session struct {
	Subject       string
	SessionIndex  int
	BlockIndex    int
	BlockStart    time.Time
	Responded     bool
	ResponseCount int
	SubState      string
	LightSchedule config.LightSchedule
	Config        config.ShapingConfig

	LastResponder string // which component produced the most recent edge, for logging

	// OnBlockEnter, when set, is invoked with the 1-based block index
	// each time a block is entered, so the worker can publish the index
	// for resume-after-restart.
	OnBlockEnter func(index int)

	// TrialIndex, CurrentClass, CurrentStimulusPath, and TrialStart track
	// the trial a block is currently in the middle of, staged by
	// BeginTrial and consumed by EmitTrial.
	TrialIndex          int
	CurrentClass        trial.StimulusClass
	CurrentStimulusPath string
	TrialStart          time.Time

	exitReason blockExit
}

// BeginTrial stages the stimulus a trial is about to present, starting
// the latency clock EmitTrial later measures against.
func (s *Session) BeginTrial(class trial.StimulusClass, stimulusPath string, now time.Time) {
	s.TrialIndex++
	s.CurrentClass = class
	s.CurrentStimulusPath = stimulusPath
	s.TrialStart = now
}

// EmitTrial appends the in-progress trial to logger. A nil logger is a no-op,
// keeping the block-graph unit tests free of logger plumbing.
func (s *Session) EmitTrial(logger *trial.Logger, response trial.Response, rewardIssued, punishIssued bool, now time.Time) error {
	if logger == nil {
		return nil
	}
	latency := math.NaN()
	if !s.TrialStart.IsZero() {
		latency = now.Sub(s.TrialStart).Seconds()
	}
	return logger.Append(trial.Trial{
		SessionIndex:    s.SessionIndex,
		Index:           s.TrialIndex,
		StimulusPath:    s.CurrentStimulusPath,
		Class:           s.CurrentClass,
		Response:        response,
		ResponseLatency: latency,
		RewardIssued:    rewardIssued,
		PunishIssued:    punishIssued,
		Timestamp:       now,
	})
}

// NextSessionIndex scans trialdata/<subject>_*.csv under root to find
// the next 1-based session index for subject: one more than the
// number of that subject's session files already present.
func NextSessionIndex(root, subject string) int {
	matches, err := filepath.Glob(filepath.Join(root, "trialdata", subject+"_*.csv"))
	if err != nil {
		return 1
	}
	return len(matches) + 1
}

// blockExit records why a block's internal state machine terminated, so
// the enclosing Shaper loop can decide whether to advance, revert, or
// yield to sleep.
type blockExit int

const (
	exitNone blockExit = iota
	exitAdvance
	exitRevert
	exitSleep
)

// EnterBlock resets per-block bookkeeping.
func (s *Session) EnterBlock(index int, now time.Time) {
	s.BlockIndex = index
	s.BlockStart = now
	s.Responded = false
	s.ResponseCount = 0
	s.exitReason = exitNone
	if s.OnBlockEnter != nil {
		s.OnBlockEnter(index)
	}
}

// MarkResponse records a pre-reward response.
func (s *Session) MarkResponse(component string) {
	s.Responded = true
	s.ResponseCount++
	s.LastResponder = component
}

// Components bundles the named Panel components a block graph needs,
// separated from the raw *panel.Panel so block factories can be written
// against the narrow capability interfaces.
type Components struct {
	HouseLight     panel.DigitalOutput
	Solenoid       panel.DigitalOutput
	TrialSensor    panel.DigitalInput
	ResponseSensor panel.DigitalInput
	Speaker        panel.AudioSink
}

// FromPanel extracts the Components a shaping block graph needs from a
// live Panel.
func FromPanel(p *panel.Panel) Components {
	return Components{
		HouseLight:     p.HouseLight,
		Solenoid:       p.Solenoid,
		TrialSensor:    p.TrialSensor,
		ResponseSensor: p.ResponseSensor,
		Speaker:        p.Speaker,
	}
}
