// Command operant-worker runs one chamber's shaping session: it opens
// the chamber's hardware link, builds its Panel, selects the configured
// Shaper variant, and drives the block sequence to completion. The
// Chamber Supervisor spawns one of these per Start.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/multiverse-labs/operant/internal/config"
	"github.com/multiverse-labs/operant/internal/fsm"
	"github.com/multiverse-labs/operant/internal/link"
	"github.com/multiverse-labs/operant/internal/logging"
	"github.com/multiverse-labs/operant/internal/panel"
	"github.com/multiverse-labs/operant/internal/shaping"
	"github.com/multiverse-labs/operant/internal/trial"
)

func main() {
	index := pflag.IntP("chamber", "P", 0, "zero-based chamber index")
	subject := pflag.StringP("subject", "S", "", "subject name")
	configPath := pflag.StringP("config", "c", "", "path to the subject's shaping config JSON")
	settingsPath := pflag.StringP("settings", "s", "settings.json", "path to host settings.json")
	stimuliDir := pflag.StringP("stimuli", "t", "stimuli", "directory of stimulus audio files")
	playerCmd := pflag.String("player", "aplay", "external audio player command")
	startBlock := pflag.IntP("block", "b", 1, "1-based block index to resume at")
	debug := pflag.BoolP("debug", "d", false, "enable verbose logging")
	pflag.Parse()

	log := logging.New(*debug, os.Stderr)

	if *subject == "" || *configPath == "" {
		log.Fatal().Msg("missing -S/--subject or -c/--config")
	}

	// The worker's positional argument is the paradigm name; it falls back to the
	// subject's own ShapingConfig.Paradigm if omitted.
	var paradigm string
	if args := pflag.Args(); len(args) > 0 {
		paradigm = args[0]
	}

	v := viper.New()
	v.SetConfigFile(*settingsPath)
	if err := v.ReadInConfig(); err != nil {
		log.Fatal().Err(err).Str("settings", *settingsPath).Msg("read host settings")
	}
	settings, err := config.Load(v)
	if err != nil {
		log.Fatal().Err(err).Msg("load host settings")
	}

	var roster *config.ChamberRoster
	for i := range settings.Chambers {
		if settings.Chambers[i].Index == *index {
			roster = &settings.Chambers[i]
			break
		}
	}
	if roster == nil {
		log.Fatal().Int("chamber", *index).Msg("chamber not present in host settings roster")
	}

	cfg, err := config.LoadShapingConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load shaping config")
	}
	if paradigm == "" {
		paradigm = cfg.Paradigm
	}

	chamberLog := logging.ForChamber(log, *index)

	port, err := link.OpenDevice(roster.DevicePath)
	if err != nil {
		chamberLog.Fatal().Err(err).Str("device", roster.DevicePath).Msg("open device")
	}
	hl, err := link.Open(port, chamberLog)
	if err != nil {
		chamberLog.Fatal().Err(err).Msg("open hardware link")
	}
	defer hl.Close()

	cm := panel.ChannelMap{
		TrialSensor:    roster.TrialSensorChannel,
		ResponseSensor: roster.ResponseSensorChannel,
	}
	pnl, err := panel.New(hl, cm, panel.NewExecPlayer(*playerCmd), chamberLog)
	if err != nil {
		chamberLog.Fatal().Err(err).Msg("configure panel")
	}
	defer pnl.Close()

	sessionStart := time.Now()
	subjectRoot := filepath.Join(settings.Datapath, *subject)
	logger, err := trial.New(subjectRoot, *subject, sessionStart, paradigm)
	if err != nil {
		chamberLog.Fatal().Err(err).Msg("open trial logger")
	}
	defer logger.Close()

	if err := writeConfigSnapshot(subjectRoot, *subject, sessionStart, cfg); err != nil {
		chamberLog.Warn().Err(err).Msg("write settings_files snapshot")
	}

	sessionIndex := shaping.NextSessionIndex(subjectRoot, *subject)

	deps := shaping.Deps{
		Clock:      fsm.RealClock(),
		Rnd:        rand.New(rand.NewSource(sessionStart.UnixNano())),
		Components: shaping.FromPanel(pnl),
		Provider:   shaping.NewDirProvider(*stimuliDir),
		RewardFn:   pnl.Reward,
		Logger:     logger,
		OnError: func(from fsm.Label, err error) {
			chamberLog.Error().Err(err).Str("state", string(from)).Msg("shaping state error")
			if logErr := logger.LogError(fmt.Errorf("%s: %w", from, err)); logErr != nil {
				chamberLog.Warn().Err(logErr).Msg("append error.log failed")
			}
		},
	}

	blocks, err := shaping.BuildBlocks(paradigm, *cfg, deps)
	if err != nil {
		chamberLog.Fatal().Err(err).Str("paradigm", paradigm).Msg("build shaper blocks")
	}

	sess := &shaping.Session{
		Subject:       *subject,
		SessionIndex:  sessionIndex,
		LightSchedule: cfg.LightSchedule,
		Config:        *cfg,
	}
	sess.OnBlockEnter = func(index int) {
		if err := logger.SetBlock(index); err != nil {
			chamberLog.Warn().Err(err).Int("block", index).Msg("publish block index failed")
		}
	}

	idlePoll := cfg.IdlePoll
	if idlePoll <= 0 {
		idlePoll = settings.IdlePoll
	}
	sleepFn := func(s *shaping.Session) error {
		return shaping.RunSleepBlock(deps.Clock, deps.Components.HouseLight, s.LightSchedule, idlePoll)
	}

	first := *startBlock
	if first < 1 || first > len(blocks) {
		first = 1
	}
	if err := shaping.Run(sess, blocks, first, sleepFn, deps.OnError); err != nil {
		chamberLog.Error().Err(err).Msg("shaping session ended with error")
		os.Exit(1)
	}
}

// writeConfigSnapshot records the config this session ran under as
// settings_files/<subject>_<sessionISO>.json, the file the analyzer
// consults when a trial row carries no block name.
func writeConfigSnapshot(root, subject string, sessionStart time.Time, cfg *config.ShapingConfig) error {
	dir := filepath.Join(root, "settings_files")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s_%s.json", subject, sessionStart.Format("20060102T150405"))
	return os.WriteFile(filepath.Join(dir, name), b, 0o644)
}
