package fsm

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/multiverse-labs/operant/internal/panel"
)

// Clock abstracts wall-clock sleeping and the current time so tests can
// exercise Wait/Poll/FlashPoll/LightPoll/DualPoll without real delays.
type Clock struct {
	Sleep func(time.Duration)
	Now   func() time.Time
}

// RealClock is the production Clock.
func RealClock() Clock {
	return Clock{Sleep: time.Sleep, Now: time.Now}
}

// PollPeriod is the sample period primitives use while racing a timer
// against a component's edge events. It defaults to panel.SamplePeriod;
// the edge detector samples only when polled, so this is its sample rate.
var PollPeriod = panel.SamplePeriod

// randDuration draws a duration in [tMin, tMax]: a uniformly random
// integer second count for unequal bounds, exactly the shared value for
// equal ones.
func randDuration(rnd *rand.Rand, tMin, tMax time.Duration) time.Duration {
	if tMax <= tMin {
		return tMin
	}
	lo, hi := int64((tMin+time.Second-1)/time.Second), int64(tMax/time.Second)
	if hi > lo {
		return time.Duration(lo+rnd.Int63n(hi-lo+1)) * time.Second
	}
	// sub-second bounds, fall back to a uniform draw
	return tMin + time.Duration(rnd.Int63n(int64(tMax-tMin)))
}

// Wait blocks for a uniformly random duration in [tMin, tMax], then
// falls through to next. Unequal bounds draw a uniformly random integer
// second count; equal bounds sleep exactly the shared value.
func Wait(clock Clock, rnd *rand.Rand, tMin, tMax time.Duration, next Label) State {
	return func() (Label, error) {
		clock.Sleep(randDuration(rnd, tMin, tMax))
		return next, nil
	}
}

// Poll samples component every PollPeriod; the first rising edge
// returns hitNext, and timeoutNext fires once duration elapses with no
// edge.
func Poll(clock Clock, component panel.DigitalInput, duration time.Duration, timeoutNext, hitNext Label) State {
	return func() (Label, error) {
		deadline := clock.Now().Add(duration)
		for clock.Now().Before(deadline) {
			if component.ConsumeEvent() {
				return hitNext, nil
			}
			clock.Sleep(PollPeriod)
		}
		return timeoutNext, nil
	}
}

// RandomPoll is Poll with a fresh uniformly random duration in
// [tMin, tMax] drawn on each entry, so the sensor is sampled across the
// whole randomized window rather than after a blind wait.
func RandomPoll(clock Clock, rnd *rand.Rand, component panel.DigitalInput, tMin, tMax time.Duration, timeoutNext, hitNext Label) State {
	return func() (Label, error) {
		return Poll(clock, component, randDuration(rnd, tMin, tMax), timeoutNext, hitNext)()
	}
}

// FlashPoll is Poll with the cue driven on a 1s square wave for the
// duration of the wait: high during the first half of each window, low
// during the second. The cue is guaranteed off on any exit path.
func FlashPoll(clock Clock, output panel.DigitalOutput, input panel.DigitalInput, duration time.Duration, timeoutNext, hitNext Label) State {
	const halfPeriod = 500 * time.Millisecond
	return func() (Label, error) {
		defer output.Off()
		if err := output.On(); err != nil {
			return Terminate, fmt.Errorf("fsm: flash_poll on: %w", err)
		}
		on := true
		deadline := clock.Now().Add(duration)
		lastToggle := clock.Now()
		for clock.Now().Before(deadline) {
			if input.ConsumeEvent() {
				return hitNext, nil
			}
			if clock.Now().Sub(lastToggle) >= halfPeriod {
				on = !on
				if on {
					if err := output.On(); err != nil {
						return Terminate, fmt.Errorf("fsm: flash_poll on: %w", err)
					}
				} else {
					if err := output.Off(); err != nil {
						return Terminate, fmt.Errorf("fsm: flash_poll off: %w", err)
					}
				}
				lastToggle = clock.Now()
			}
			clock.Sleep(PollPeriod)
		}
		return timeoutNext, nil
	}
}

// LightPoll is Poll with output held on for the full duration and
// explicitly turned off at exit.
func LightPoll(clock Clock, output panel.DigitalOutput, input panel.DigitalInput, duration time.Duration, timeoutNext, hitNext Label) State {
	return func() (Label, error) {
		if err := output.On(); err != nil {
			return Terminate, fmt.Errorf("fsm: light_poll on: %w", err)
		}
		defer output.Off()
		deadline := clock.Now().Add(duration)
		for clock.Now().Before(deadline) {
			if input.ConsumeEvent() {
				return hitNext, nil
			}
			clock.Sleep(PollPeriod)
		}
		return timeoutNext, nil
	}
}

// DualPoll races two input components; the first rising edge wins,
// ties resolved in favor of a.
func DualPoll(clock Clock, a, b panel.DigitalInput, duration time.Duration, timeoutNext, aNext, bNext Label) State {
	return func() (Label, error) {
		deadline := clock.Now().Add(duration)
		for clock.Now().Before(deadline) {
			aHit := a.ConsumeEvent()
			bHit := b.ConsumeEvent()
			if aHit {
				return aNext, nil
			}
			if bHit {
				return bNext, nil
			}
			clock.Sleep(PollPeriod)
		}
		return timeoutNext, nil
	}
}

// StimulusProvider resolves a stimulus class (sPlus/sMinus/probePlus/
// probeMinus, or a caller-defined class) to a playable file path.
type StimulusProvider interface {
	Stimulus(class string) (path string, err error)
}

// PlayAudio asks the provider for a file matching class, queues it on
// the speaker, starts playback, and returns immediately.
func PlayAudio(speaker panel.AudioSink, provider StimulusProvider, class string, next Label) State {
	return func() (Label, error) {
		path, err := provider.Stimulus(class)
		if err != nil {
			return Terminate, fmt.Errorf("fsm: play_audio stimulus(%s): %w", class, err)
		}
		if err := speaker.Queue(path); err != nil {
			return Terminate, fmt.Errorf("fsm: play_audio queue: %w", err)
		}
		if err := speaker.Play(); err != nil {
			return Terminate, fmt.Errorf("fsm: play_audio play: %w", err)
		}
		return next, nil
	}
}

// CloseAudio stops playback and falls through to next.
func CloseAudio(speaker panel.AudioSink, next Label) State {
	return func() (Label, error) {
		if err := speaker.Stop(); err != nil {
			return Terminate, fmt.Errorf("fsm: close_audio stop: %w", err)
		}
		return next, nil
	}
}

// RandomChoice uniformly picks one successor from labels.
func RandomChoice(rnd *rand.Rand, labels []Label) State {
	return func() (Label, error) {
		if len(labels) == 0 {
			return Terminate, fmt.Errorf("fsm: random_choice with no labels")
		}
		return labels[rnd.Intn(len(labels))], nil
	}
}

// PreReward invokes mark (which records responded=true, increments
// response_count, and emits a trial log entry) and falls through to
// next. A failure from mark (e.g. the trial logger failing to write)
// propagates as a state error, routed by the owning Machine exactly
// like a Reward failure.
func PreReward(mark func() error, next Label) State {
	return func() (Label, error) {
		if err := mark(); err != nil {
			return Terminate, fmt.Errorf("fsm: pre_reward: %w", err)
		}
		return next, nil
	}
}

// Reward emits a solenoid pulse of duration; a failure propagates as a
// state error, which the owning Machine routes to its declared error
// state.
func Reward(rewardFn func(time.Duration) error, duration time.Duration, next Label) State {
	return func() (Label, error) {
		if err := rewardFn(duration); err != nil {
			return Terminate, fmt.Errorf("fsm: reward: %w", err)
		}
		return next, nil
	}
}
