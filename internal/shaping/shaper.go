package shaping

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/multiverse-labs/operant/internal/config"
	"github.com/multiverse-labs/operant/internal/fsm"
	"github.com/multiverse-labs/operant/internal/trial"
)

// Deps bundles everything a Shaper variant's block graphs close over:
// the clock/rng the fsm primitives need, the chamber's components, a
// stimulus provider, the reward function, the trial logger, and the
// error callback.
type Deps struct {
	Clock      fsm.Clock
	Rnd        *rand.Rand
	Components Components
	Provider   fsm.StimulusProvider
	RewardFn   func(time.Duration) error
	Logger     *trial.Logger
	OnError    func(fsm.Label, error)
}

// BuildBlocks selects the Shaper variant named by paradigm and builds
// its block sequence.
func BuildBlocks(paradigm string, cfg config.ShapingConfig, d Deps) ([]Block, error) {
	switch paradigm {
	case "2ac":
		return Shaper2AC(cfg, d), nil
	case "gonogo_interrupt":
		return ShaperGoNogoInterrupt(cfg, d, false, false), nil
	case "gonogo_interrupt_punish":
		return ShaperGoNogoInterrupt(cfg, d, true, false), nil
	case "gonogo_interrupt_passive_reward":
		return ShaperGoNogoInterrupt(cfg, d, false, true), nil
	case "gonogo_interrupt_one_step":
		return ShaperGoInterruptOneStep(cfg, d), nil
	case "3ac":
		return Shaper3AC(cfg, d), nil
	case "3ac_matching":
		return ShaperThreeACMatching(cfg, d), nil
	case "female_pref":
		return ShaperFemalePref(), nil
	default:
		return nil, fmt.Errorf("shaping: %w: unknown paradigm %q", config.ErrConfig, paradigm)
	}
}

func reps(cfg config.ShapingConfig, i int) (reps int, revert time.Duration, rewardDur time.Duration) {
	if i-1 < 0 || i-1 >= len(cfg.Blocks) {
		return 0, InfiniteRevertTimeout, 0
	}
	b := cfg.Blocks[i-1]
	rt := b.RevertTimeout
	if rt <= 0 {
		rt = InfiniteRevertTimeout
	}
	return b.Reps, rt, b.RewardDuration
}

// playAudioOrErrTrial resolves class through d.Provider and plays it,
// exactly like fsm.PlayAudio, except a stimulus-lookup failure is not
// treated as fatal: it logs one ERR trial and the block continues at errNext rather
// than terminating the session. Failures from the speaker itself (a
// hardware/link problem rather than a missing file) still propagate as
// a fatal state error.
func playAudioOrErrTrial(sess *Session, d Deps, class trial.StimulusClass, next, errNext fsm.Label) fsm.State {
	return func() (fsm.Label, error) {
		now := d.Clock.Now()
		path, err := d.Provider.Stimulus(string(class))
		if err != nil {
			sess.BeginTrial(class, "", now)
			if logErr := sess.EmitTrial(d.Logger, trial.ResponseErr, false, false, now); logErr != nil {
				return fsm.Terminate, fmt.Errorf("shaping: log err trial: %w", logErr)
			}
			if d.OnError != nil {
				d.OnError("play_audio", err)
			}
			return errNext, nil
		}
		sess.BeginTrial(class, path, now)
		if err := d.Components.Speaker.Queue(path); err != nil {
			return fsm.Terminate, fmt.Errorf("shaping: play_audio queue: %w", err)
		}
		if err := d.Components.Speaker.Play(); err != nil {
			return fsm.Terminate, fmt.Errorf("shaping: play_audio play: %w", err)
		}
		return next, nil
	}
}

// finishTrial emits the in-progress trial with response/rewardIssued/
// punishIssued and falls through to next.
func finishTrial(sess *Session, d Deps, response trial.Response, rewardIssued, punishIssued bool, next fsm.Label) fsm.State {
	return func() (fsm.Label, error) {
		if err := sess.EmitTrial(d.Logger, response, rewardIssued, punishIssued, d.Clock.Now()); err != nil {
			return fsm.Terminate, fmt.Errorf("shaping: log trial: %w", err)
		}
		return next, nil
	}
}

// markResponseAndLog is the pre_reward mark used by the non-discriminative
// shaping blocks (hopper_vi, center_peck, chained_2ac, silent reward
// trainer): they have no sMinus arm to discriminate against, so every
// completed response is logged as an sPlus/Hit trial. These blocks
// predate any real two-alternative signal-detection structure; see
// DESIGN.md.
func markResponseAndLog(sess *Session, d Deps, component string) func() error {
	return func() error {
		sess.MarkResponse(component)
		now := d.Clock.Now()
		sess.BeginTrial(trial.ClassSPlus, "", now)
		return sess.EmitTrial(d.Logger, trial.ResponseSPlus, true, false, now)
	}
}

// Shaper2AC builds the four-block two-alternative-choice graph.
func Shaper2AC(cfg config.ShapingConfig, d Deps) []Block {
	return []Block{
		hopperViBlock("hopper_vi", cfg, d),
		centerPeckBlock("center_peck", cfg, d, 2, 10*time.Second),
		chainedChoiceBlock("chained_2ac", cfg, d, 3, false),
		chainedChoiceBlock("chained_2ac_no_flash", cfg, d, 4, true),
	}
}

// hopperViBlock is block 1 shared across 2AC/matching variants: a
// random 10-40s wait, then a 5s flash-poll of the center response
// sensor. A peck is marked and rewarded 5s; a timed-out flash still
// feeds the same 5s unconditioned reward (the VI schedule), just
// without marking a response.
func hopperViBlock(name string, cfg config.ShapingConfig, d Deps) Block {
	return Block{
		Name: name,
		Build: func(sess *Session) (map[fsm.Label]fsm.State, fsm.Label, fsm.Label) {
			r, revert, _ := reps(cfg, 1)
			states := map[fsm.Label]fsm.State{
				"wait":       fsm.Wait(d.Clock, d.Rnd, 10*time.Second, 40*time.Second, "flash"),
				"flash":      fsm.FlashPoll(d.Clock, d.Components.HouseLight, d.Components.ResponseSensor, 5*time.Second, "reward", "pre_reward"),
				"pre_reward": fsm.PreReward(markResponseAndLog(sess, d, "response_sensor"), "reward"),
				"reward":     fsm.Reward(d.RewardFn, 5*time.Second, "check"),
				"check":      CheckState(sess, d.Clock, r, revert, "wait"),
			}
			return states, "wait", fsm.Terminate
		},
	}
}

// centerPeckBlock loops a flash-poll of the center/response sensor on a
// fixed-duration cycle until reps successful pecks accumulate.
func centerPeckBlock(name string, cfg config.ShapingConfig, d Deps, idx int, cycle time.Duration) Block {
	return Block{
		Name: name,
		Build: func(sess *Session) (map[fsm.Label]fsm.State, fsm.Label, fsm.Label) {
			r, revert, rewardDur := reps(cfg, idx)
			states := map[fsm.Label]fsm.State{
				"flash":      fsm.FlashPoll(d.Clock, d.Components.HouseLight, d.Components.ResponseSensor, cycle, "check", "pre_reward"),
				"pre_reward": fsm.PreReward(markResponseAndLog(sess, d, "response_sensor"), "reward"),
				"reward":     fsm.Reward(d.RewardFn, rewardDur, "check"),
				"check":      CheckState(sess, d.Clock, r, revert, "flash"),
			}
			return states, "flash", fsm.Terminate
		},
	}
}

// chainedChoiceBlock is blocks 3/4 of Shaper2AC: a center peck (flashing
// or plain), then a fair coin between left/right response, flash-polled,
// rewarded on the peck.
func chainedChoiceBlock(name string, cfg config.ShapingConfig, d Deps, idx int, noFlash bool) Block {
	return Block{
		Name: name,
		Build: func(sess *Session) (map[fsm.Label]fsm.State, fsm.Label, fsm.Label) {
			r, revert, rewardDur := reps(cfg, idx)
			centerNext := fsm.Label("choice")
			var centerState fsm.State
			if noFlash {
				centerState = fsm.LightPoll(d.Clock, d.Components.HouseLight, d.Components.TrialSensor, 10*time.Second, "center", centerNext)
			} else {
				centerState = fsm.FlashPoll(d.Clock, d.Components.HouseLight, d.Components.TrialSensor, 10*time.Second, "center", centerNext)
			}
			states := map[fsm.Label]fsm.State{
				"center":     centerState,
				"choice":     fsm.RandomChoice(d.Rnd, []fsm.Label{"left", "right"}),
				"left":       fsm.FlashPoll(d.Clock, d.Components.HouseLight, d.Components.ResponseSensor, 10*time.Second, "check", "pre_reward"),
				"right":      fsm.FlashPoll(d.Clock, d.Components.HouseLight, d.Components.ResponseSensor, 10*time.Second, "check", "pre_reward"),
				"pre_reward": fsm.PreReward(markResponseAndLog(sess, d, "response_sensor"), "reward"),
				"reward":     fsm.Reward(d.RewardFn, rewardDur, "check"),
				"check":      CheckState(sess, d.Clock, r, revert, "center"),
			}
			return states, "center", fsm.Terminate
		},
	}
}

// ShaperGoNogoInterrupt builds the go/no-go interrupt graph. When punish is true, a false-alarm routes
// through a punish state that turns the house light off for
// cfg.PunishSeconds (2s when unset).
func ShaperGoNogoInterrupt(cfg config.ShapingConfig, d Deps, punish bool, passiveReward bool) []Block {
	return []Block{
		silentRewardTrainerBlock(cfg, d),
		trialGatedStimulusBlock(cfg, d, punish, passiveReward),
	}
}

// ShaperGoInterruptOneStep is block 2 of ShaperGoNogoInterrupt without
// the passive-reward timeout branch.
func ShaperGoInterruptOneStep(cfg config.ShapingConfig, d Deps) []Block {
	return []Block{
		trialGatedStimulusBlock(cfg, d, false, false),
	}
}

// silentRewardTrainerBlock polls the response sensor across the whole
// randomized 10-40s window: a sensor edge is marked as a response and
// rewarded; a pure timeout feeds the same 1s pulse unmarked, so
// response_count only ever counts real edges.
func silentRewardTrainerBlock(cfg config.ShapingConfig, d Deps) Block {
	return Block{
		Name: "silent_reward_trainer",
		Build: func(sess *Session) (map[fsm.Label]fsm.State, fsm.Label, fsm.Label) {
			r, revert, _ := reps(cfg, 1)
			states := map[fsm.Label]fsm.State{
				"poll":       fsm.RandomPoll(d.Clock, d.Rnd, d.Components.ResponseSensor, 10*time.Second, 40*time.Second, "pulse", "pre_reward"),
				"pre_reward": fsm.PreReward(markResponseAndLog(sess, d, "response_sensor"), "pulse"),
				"pulse":      fsm.Reward(d.RewardFn, time.Second, "check"),
				"check":      CheckState(sess, d.Clock, r, revert, "poll"),
			}
			return states, "poll", fsm.Terminate
		},
	}
}

// trialGatedStimulusBlock is the genuine discriminative go/no-go block:
// a coin flip presents sPlus or sMinus, and the response (or its
// absence) within the response window is classified and logged:
// Hit/Miss/Miss_NR for sPlus, FA/CR/CR_NR for sMinus. A missing
// stimulus file logs an ERR trial and loops back to
// cue_on instead of aborting the block.
func trialGatedStimulusBlock(cfg config.ShapingConfig, d Deps, punish, passiveReward bool) Block {
	const lockout = 200 * time.Millisecond
	return Block{
		Name: "trial_gated_stimulus",
		Build: func(sess *Session) (map[fsm.Label]fsm.State, fsm.Label, fsm.Label) {
			r, revert, _ := reps(cfg, 2)

			splusTimeoutNext := fsm.Label("splus_close")
			if passiveReward {
				splusTimeoutNext = "splus_passive_reward"
			}
			sminusFANext := fsm.Label("sminus_close")
			if punish {
				sminusFANext = "punish"
			}

			states := map[fsm.Label]fsm.State{
				// cue_on has no dedicated trial-cue output in the current
				// Panel model; the trial sensor poll below is the gate.
				"cue_on":     func() (fsm.Label, error) { return "wait_trial", nil },
				"wait_trial": fsm.Poll(d.Clock, d.Components.TrialSensor, time.Hour, "wait_trial", "coin"),
				"coin":       fsm.RandomChoice(d.Rnd, []fsm.Label{"splus_audio", "sminus_audio"}),

				"splus_audio":          playAudioOrErrTrial(sess, d, trial.ClassSPlus, "splus_lockout", "cue_on"),
				"splus_lockout":        fsm.Wait(d.Clock, d.Rnd, lockout, lockout, "splus_race"),
				"splus_race":           fsm.DualPoll(d.Clock, d.Components.TrialSensor, d.Components.ResponseSensor, 5*time.Second, "splus_timeout", "splus_miss", "splus_pre_reward"),
				"splus_timeout":        finishTrial(sess, d, trial.ResponseNone, passiveReward, false, splusTimeoutNext),
				"splus_passive_reward": fsm.Reward(d.RewardFn, 500*time.Millisecond, "splus_close"),
				"splus_miss":           finishTrial(sess, d, trial.ResponseSMinus, false, false, "splus_close"),
				"splus_pre_reward":     fsm.PreReward(func() error { sess.MarkResponse("response_sensor"); return nil }, "splus_hit"),
				"splus_hit":            finishTrial(sess, d, trial.ResponseSPlus, true, false, "splus_reward"),
				"splus_reward":         fsm.Reward(d.RewardFn, 500*time.Millisecond, "splus_close"),
				"splus_close":          fsm.CloseAudio(d.Components.Speaker, "check"),

				"sminus_audio":   playAudioOrErrTrial(sess, d, trial.ClassSMinus, "sminus_lockout", "cue_on"),
				"sminus_lockout": fsm.Wait(d.Clock, d.Rnd, lockout, lockout, "sminus_race"),
				"sminus_race":    fsm.DualPoll(d.Clock, d.Components.TrialSensor, d.Components.ResponseSensor, 5*time.Second, "sminus_timeout", "sminus_cr", "sminus_fa"),
				"sminus_timeout": finishTrial(sess, d, trial.ResponseNone, false, false, "sminus_close"),
				"sminus_cr":      finishTrial(sess, d, trial.ResponseSMinus, false, false, "sminus_close"),
				"sminus_fa":      finishTrial(sess, d, trial.ResponseSPlus, false, punish, sminusFANext),
				"punish":         punishState(d, cfg),
				"sminus_close":   fsm.CloseAudio(d.Components.Speaker, "check"),

				"check": CheckState(sess, d.Clock, r, revert, "cue_on"),
			}
			return states, "cue_on", fsm.Terminate
		},
	}
}

func punishState(d Deps, cfg config.ShapingConfig) fsm.State {
	dur := time.Duration(cfg.PunishSeconds * float64(time.Second))
	if dur <= 0 {
		dur = 2 * time.Second
	}
	return func() (fsm.Label, error) {
		if err := d.Components.HouseLight.Off(); err != nil {
			return fsm.Terminate, err
		}
		d.Clock.Sleep(dur)
		if err := d.Components.HouseLight.On(); err != nil {
			return fsm.Terminate, err
		}
		return "sminus_close", nil
	}
}

// Shaper3AC and ShaperThreeACMatching share a three-way coin-flip choice
// block. Both resolve each branch's audio through d.Provider, keyed by a
// fixed class name per branch; they differ only in those names
// (classA/B/C versus matchA/B/C).
func Shaper3AC(cfg config.ShapingConfig, d Deps) []Block {
	return []Block{
		hopperViBlock("hopper_vi", cfg, d),
		threeWayChoiceBlock("three_ac_choice", cfg, d, 2, []string{"classA", "classB", "classC"}),
	}
}

func ShaperThreeACMatching(cfg config.ShapingConfig, d Deps) []Block {
	return []Block{
		hopperViBlock("hopper_vi", cfg, d),
		threeWayChoiceBlock("three_ac_matching", cfg, d, 2, []string{"matchA", "matchB", "matchC"}),
	}
}

// threeWayChoiceBlock has no two-alternative signal-detection
// structure, so completed trials are logged with the caller's class
// verbatim (for traceability in the trialdata CSV) and a fixed sPlus
// response; they fall outside the two-class Hit/Miss/FA/CR buckets.
func threeWayChoiceBlock(name string, cfg config.ShapingConfig, d Deps, idx int, classes []string) Block {
	return Block{
		Name: name,
		Build: func(sess *Session) (map[fsm.Label]fsm.State, fsm.Label, fsm.Label) {
			r, revert, rewardDur := reps(cfg, idx)
			labels := make([]fsm.Label, len(classes))
			states := map[fsm.Label]fsm.State{}
			for i, c := range classes {
				class := trial.StimulusClass(c)
				audioLabel := fsm.Label("audio_" + c)
				pollLabel := fsm.Label("poll_" + c)
				timeoutLabel := fsm.Label("timeout_" + c)
				preRewardLabel := fsm.Label("pre_reward_" + c)
				hitLabel := fsm.Label("hit_" + c)
				rewardLabel := fsm.Label("reward_" + c)
				closeLabel := fsm.Label("close_" + c)
				labels[i] = audioLabel

				states[audioLabel] = playAudioOrErrTrial(sess, d, class, pollLabel, "coin")
				states[pollLabel] = fsm.FlashPoll(d.Clock, d.Components.HouseLight, d.Components.ResponseSensor, 5*time.Second, timeoutLabel, preRewardLabel)
				states[timeoutLabel] = finishTrial(sess, d, trial.ResponseNone, false, false, closeLabel)
				states[preRewardLabel] = fsm.PreReward(func() error { sess.MarkResponse("response_sensor"); return nil }, hitLabel)
				states[hitLabel] = finishTrial(sess, d, trial.ResponseSPlus, true, false, rewardLabel)
				states[rewardLabel] = fsm.Reward(d.RewardFn, rewardDur, closeLabel)
				states[closeLabel] = fsm.CloseAudio(d.Components.Speaker, "check")
			}
			states["coin"] = fsm.RandomChoice(d.Rnd, labels)
			states["check"] = CheckState(sess, d.Clock, r, revert, "coin")
			return states, "coin", fsm.Terminate
		},
	}
}

// ShaperFemalePref declares its two blocks unimplemented: invoking
// either is a fatal configuration error.
func ShaperFemalePref() []Block {
	return []Block{
		UnimplementedBlock("female_pref_block1"),
		UnimplementedBlock("female_pref_block2"),
	}
}

// CenterPeckNoFlashBlock is ShaperGoNogo's declared-but-unimplemented
// block.
func CenterPeckNoFlashBlock() Block {
	return UnimplementedBlock("center_peck_no_flash")
}
