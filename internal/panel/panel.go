// Package panel gives each named chamber component (house light, trial
// sensor, response sensor, solenoid, speaker) a uniform get/set/poll
// façade over the raw channels of a link.HardwareLink.
//
// Each component is one small owned piece of mutable state, driven by a
// single owning goroutine, with no locking inside the component itself.
package panel

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/multiverse-labs/operant/internal/link"
)

// SamplePeriod is the edge-detector sampling period the polling
// primitives sleep between sensor reads.
const SamplePeriod = 15 * time.Millisecond

// DigitalOutput is the on/off/pulse capability set of an output
// component.
type DigitalOutput interface {
	On() error
	Off() error
	Pulse(d time.Duration) error
}

// DigitalInput is the status/consume_event capability set of an input
// component. Status reports the last sampled raw level; ConsumeEvent
// atomically reads-and-clears the edge flag.
type DigitalInput interface {
	Status() bool
	ConsumeEvent() bool
}

// AudioSink is the speaker-only capability set.
type AudioSink interface {
	Queue(path string) error
	Play() error
	Stop() error
}

// output is a DigitalOutput bound to one link channel.
type output struct {
	hl      *link.HardwareLink
	channel byte
}

func (o *output) On() error  { return o.hl.Write(o.channel, true) }
func (o *output) Off() error { return o.hl.Write(o.channel, false) }

func (o *output) Pulse(d time.Duration) error {
	if err := o.On(); err != nil {
		return err
	}
	time.Sleep(d)
	return o.Off()
}

// input is a DigitalInput bound to one link channel. Sampling happens
// inside the caller's polling loop: each Status or ConsumeEvent call
// reads the raw level and latches a low-to-high transition into the
// pending flag. There is no background goroutine and no interrupt
// path, so the link stays single-owner.
type input struct {
	hl      *link.HardwareLink
	channel byte
	log     zerolog.Logger

	lastLevel bool
	pending   bool
}

func newInput(hl *link.HardwareLink, channel byte, log zerolog.Logger) *input {
	return &input{hl: hl, channel: channel, log: log}
}

func (in *input) sample() {
	level, err := in.hl.ReadLevel(in.channel)
	if err != nil {
		in.log.Warn().Err(err).Uint8("channel", in.channel).Msg("sensor poll failed")
		return
	}
	if level && !in.lastLevel {
		in.pending = true
	}
	in.lastLevel = level
}

func (in *input) Status() bool {
	in.sample()
	return in.lastLevel
}

func (in *input) ConsumeEvent() bool {
	in.sample()
	ev := in.pending
	in.pending = false
	return ev
}

// speaker is a file-path-driven, non-blocking audio sink. The contract
// is "start playback of the queued file now, non-blocking" and "stop
// immediately". The backing player process is swappable via Player so
// tests can substitute a no-op implementation.
type speaker struct {
	player Player
	queued string
}

// Player abstracts the actual audio playback mechanism. Production code
// wires this to an external player process; tests use a FakePlayer.
type Player interface {
	Start(path string) error
	Stop() error
}

func newSpeaker(p Player) *speaker { return &speaker{player: p} }

func (s *speaker) Queue(path string) error {
	s.queued = path
	return nil
}

func (s *speaker) Play() error {
	if s.queued == "" {
		return fmt.Errorf("panel: speaker.play with nothing queued")
	}
	return s.player.Start(s.queued)
}

func (s *speaker) Stop() error { return s.player.Stop() }

// Panel maps component names to their capability sets for one chamber.
// Every component belongs to exactly one Panel, and this Panel
// exclusively owns the one link.HardwareLink beneath it.
type Panel struct {
	hl  *link.HardwareLink
	log zerolog.Logger

	HouseLight     DigitalOutput
	Solenoid       DigitalOutput
	TrialSensor    DigitalInput
	ResponseSensor DigitalInput
	Speaker        AudioSink
}

// ChannelMap gives the per-chamber sensor channel assignment. House light and
// solenoid channels are fixed by the wire protocol.
type ChannelMap struct {
	TrialSensor    byte
	ResponseSensor byte
}

// New configures the link's channels and wires the named components.
func New(hl *link.HardwareLink, cm ChannelMap, player Player, log zerolog.Logger) (*Panel, error) {
	if err := hl.Configure(link.HouseLightChannel, link.DirectionOutput); err != nil {
		return nil, fmt.Errorf("panel: configure house_light: %w", err)
	}
	if err := hl.Configure(link.SolenoidChannel, link.DirectionOutput); err != nil {
		return nil, fmt.Errorf("panel: configure solenoid: %w", err)
	}
	if err := hl.Configure(cm.TrialSensor, link.DirectionInput); err != nil {
		return nil, fmt.Errorf("panel: configure trial_sensor: %w", err)
	}
	if err := hl.Configure(cm.ResponseSensor, link.DirectionInput); err != nil {
		return nil, fmt.Errorf("panel: configure response_sensor: %w", err)
	}

	return &Panel{
		hl:             hl,
		log:            log,
		HouseLight:     &output{hl: hl, channel: link.HouseLightChannel},
		Solenoid:       &output{hl: hl, channel: link.SolenoidChannel},
		TrialSensor:    newInput(hl, cm.TrialSensor, log),
		ResponseSensor: newInput(hl, cm.ResponseSensor, log),
		Speaker:        newSpeaker(player),
	}, nil
}

// Reward opens the solenoid, waits duration, then closes it.
func (p *Panel) Reward(duration time.Duration) error {
	return p.Solenoid.Pulse(duration)
}

// Close releases the underlying HardwareLink.
func (p *Panel) Close() error {
	return p.hl.Close()
}
