// Package config loads the host-level experiment roster and persists the
// per-run SettingsSnapshot used for crash recovery.
//
// Host-level settings load through viper; the frequently rewritten
// SettingsSnapshot is plain encoding/json with write-temp-then-rename
// atomicity, since viper has no notion of "rewrite this exact file
// after every event".
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// LightEpoch is one [start,end) window, in "HH:MM" local-time form, during
// which a chamber should be awake.
type LightEpoch struct {
	Start string `mapstructure:"start" json:"start"`
	End   string `mapstructure:"end" json:"end"`
}

// Contains reports whether t's local HH:MM falls within this epoch.
// The start bound is inclusive to the second: 08:29:59 is outside
// ["08:30","22:30"), 08:30:00 is inside.
func (e LightEpoch) Contains(t time.Time) (bool, error) {
	start, err := parseClock(e.Start)
	if err != nil {
		return false, fmt.Errorf("config: light epoch start %q: %w", e.Start, err)
	}
	end, err := parseClock(e.End)
	if err != nil {
		return false, fmt.Errorf("config: light epoch end %q: %w", e.End, err)
	}
	now := clockOfDay(t)
	if start <= end {
		return now >= start && now < end, nil
	}
	// overnight epoch, e.g. 22:00-06:00
	return now >= start || now < end, nil
}

func clockOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
}

func parseClock(hhmm string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range")
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// LightSchedule is the full set of epochs a chamber should be awake
// for.
type LightSchedule []LightEpoch

// InSchedule reports whether t falls in any epoch.
func (s LightSchedule) InSchedule(t time.Time) (bool, error) {
	for _, e := range s {
		ok, err := e.Contains(t)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ChamberRoster is one chamber's entry in settings.json.
type ChamberRoster struct {
	Index                 int    `mapstructure:"index" json:"index"`
	DevicePath            string `mapstructure:"device_path" json:"device_path"`
	ParamFile             string `mapstructure:"param_file" json:"param_file"`
	Subject               string `mapstructure:"subject" json:"subject"`
	Active                bool   `mapstructure:"active" json:"active"`
	TrialSensorChannel    byte   `mapstructure:"trial_sensor_channel" json:"trial_sensor_channel"`
	ResponseSensorChannel byte   `mapstructure:"response_sensor_channel" json:"response_sensor_channel"`
}

// HostSettings is the process-wide configuration: chamber roster,
// datapath, and the RPC surface's listen port.
type HostSettings struct {
	Datapath      string          `mapstructure:"datapath"`
	Paradigm      string          `mapstructure:"paradigm"`
	ExperimentBin string          `mapstructure:"experiment_bin"`
	StimuliDir    string          `mapstructure:"stimuli_dir"`
	PlayerCmd     string          `mapstructure:"player_cmd"`
	RPCPort       int             `mapstructure:"rpc_port"`
	SamplePeriod  time.Duration   `mapstructure:"sample_period"`
	IdlePoll      time.Duration   `mapstructure:"idle_poll_interval"`
	Chambers      []ChamberRoster `mapstructure:"chambers"`
}

// Load reads settings.json (or the configured equivalent) via viper.
func Load(v *viper.Viper) (*HostSettings, error) {
	var hs HostSettings
	if err := v.Unmarshal(&hs); err != nil {
		return nil, fmt.Errorf("config: unmarshal host settings: %w", err)
	}
	if hs.SamplePeriod == 0 {
		hs.SamplePeriod = 15 * time.Millisecond
	}
	if hs.IdlePoll == 0 {
		hs.IdlePoll = 5 * time.Minute
	}
	if hs.StimuliDir == "" {
		hs.StimuliDir = "stimuli"
	}
	if hs.PlayerCmd == "" {
		hs.PlayerCmd = "aplay"
	}
	return &hs, nil
}

// ChamberEntry is one chamber's row inside a SettingsSnapshot: which subject, which config file, and whether the
// chamber should be auto-started.
type ChamberEntry struct {
	Subject    string `json:"subject"`
	ConfigPath string `json:"config_path"`
	Active     bool   `json:"active"`
	LastBlock  int    `json:"last_block,omitempty"` // 1-based block to resume at
}

// SettingsSnapshot is the crash-recovery record persisted at every event
// and at shutdown.
type SettingsSnapshot struct {
	Chambers      map[int]ChamberEntry `json:"chambers"`
	ShutdownClean bool                 `json:"shutdown_clean"`
}

// SnapshotStore persists a SettingsSnapshot to one on-disk path with
// write-temp-then-rename atomicity.
type SnapshotStore struct {
	path string
}

// NewSnapshotStore binds a SnapshotStore to path (operantd uses
// "settings_snapshot.json" beside the host settings file).
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Load reads the current snapshot. A missing file is not an error: it
// yields a fresh snapshot with ShutdownClean true (nothing to recover),
// matching first-run behavior.
func (s *SnapshotStore) Load() (*SettingsSnapshot, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &SettingsSnapshot{Chambers: map[int]ChamberEntry{}, ShutdownClean: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read snapshot: %w", err)
	}
	var snap SettingsSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("config: parse snapshot: %w", err)
	}
	if snap.Chambers == nil {
		snap.Chambers = map[int]ChamberEntry{}
	}
	return &snap, nil
}

// Save writes snap atomically: write to a temp file in the same
// directory, fsync, then rename over the target.
func (s *SnapshotStore) Save(snap *SettingsSnapshot) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("config: sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: rename temp snapshot: %w", err)
	}
	return nil
}

// MarkDirty writes shutdown_clean=false. It must run before anything
// else may change and before user input is accepted, so a crash at any
// later point is distinguishable from an orderly exit.
func (s *SnapshotStore) MarkDirty(snap *SettingsSnapshot) error {
	snap.ShutdownClean = false
	return s.Save(snap)
}

// MarkClean records an orderly shutdown.
func (s *SnapshotStore) MarkClean(snap *SettingsSnapshot) error {
	snap.ShutdownClean = true
	return s.Save(snap)
}

// ShapingConfig is the per-subject JSON experiment config snapshot.
type ShapingConfig struct {
	Paradigm      string        `json:"paradigm"`
	LightSchedule LightSchedule `json:"light_schedule"`
	IdlePoll      time.Duration `json:"idle_poll_interval"`
	Blocks        []BlockConfig `json:"blocks"`
	BlockDesign   BlockDesign   `json:"block_design"`
	PunishSeconds float64       `json:"punish_seconds,omitempty"`
}

// BlockConfig carries the per-block tunables.
type BlockConfig struct {
	Reps           int           `json:"reps"`
	RevertTimeout  time.Duration `json:"revert_timeout"`
	RewardDuration time.Duration `json:"reward_duration"`
}

// BlockDesign gives the analyzer's block-name fallback lookup.
type BlockDesign struct {
	Order []string `json:"order"`
}

// BlockName resolves the block name for a 1-based sessionIndex. An
// order of length 1 applies to all sessions.
func (bd BlockDesign) BlockName(sessionIndex int) (string, bool) {
	if len(bd.Order) == 0 {
		return "", false
	}
	if len(bd.Order) == 1 {
		return bd.Order[0], true
	}
	idx := sessionIndex - 1
	if idx < 0 || idx >= len(bd.Order) {
		return "", false
	}
	return bd.Order[idx], true
}

// LoadShapingConfig reads and parses a per-subject config file.
func LoadShapingConfig(path string) (*ShapingConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w: %v", ErrConfig, err)
	}
	var cfg ShapingConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w: %v", ErrConfig, err)
	}
	return &cfg, nil
}

// ErrConfig is the sentinel all configuration errors wrap.
var ErrConfig = fmt.Errorf("config error")
