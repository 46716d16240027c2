package fsm

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances Now() by the requested duration on every Sleep,
// so Poll/Wait/etc. run instantly in tests while exercising real
// deadline-comparison logic.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (c *fakeClock) clock() Clock {
	return Clock{
		Sleep: func(d time.Duration) { c.now = c.now.Add(d) },
		Now:   func() time.Time { return c.now },
	}
}

// fakeInput is a DigitalInput test double whose ConsumeEvent fires
// after firesAfter calls.
type fakeInput struct {
	calls      int
	firesAfter int
}

func (f *fakeInput) Status() bool { return false }
func (f *fakeInput) ConsumeEvent() bool {
	f.calls++
	return f.calls == f.firesAfter
}

type fakeOutput struct {
	onCount, offCount int
}

func (o *fakeOutput) On() error                     { o.onCount++; return nil }
func (o *fakeOutput) Off() error                    { o.offCount++; return nil }
func (o *fakeOutput) Pulse(d time.Duration) error   { o.onCount++; o.offCount++; return nil }

func TestWaitFallsThroughAfterDuration(t *testing.T) {
	fc := newFakeClock()
	rnd := rand.New(rand.NewSource(1))
	start := fc.now
	s := Wait(fc.clock(), rnd, time.Second, 2*time.Second, "next")
	label, err := s()
	require.NoError(t, err)
	assert.Equal(t, Label("next"), label)
	assert.True(t, fc.now.Sub(start) >= time.Second)
}

func TestPollHitsBeforeTimeout(t *testing.T) {
	fc := newFakeClock()
	in := &fakeInput{firesAfter: 3}
	s := Poll(fc.clock(), in, 10*time.Second, "timeout", "hit")
	label, err := s()
	require.NoError(t, err)
	assert.Equal(t, Label("hit"), label)
}

func TestPollTimesOutWithNoEdge(t *testing.T) {
	fc := newFakeClock()
	in := &fakeInput{firesAfter: -1}
	s := Poll(fc.clock(), in, 100*time.Millisecond, "timeout", "hit")
	label, err := s()
	require.NoError(t, err)
	assert.Equal(t, Label("timeout"), label)
}

func TestPollZeroDurationTimesOutWithoutSampling(t *testing.T) {
	fc := newFakeClock()
	in := &fakeInput{firesAfter: 1}
	s := Poll(fc.clock(), in, 0, "timeout", "hit")
	label, err := s()
	require.NoError(t, err)
	assert.Equal(t, Label("timeout"), label)
	assert.Equal(t, 0, in.calls)
}

func TestWaitEqualBoundsExact(t *testing.T) {
	fc := newFakeClock()
	rnd := rand.New(rand.NewSource(1))
	start := fc.now
	s := Wait(fc.clock(), rnd, 3*time.Second, 3*time.Second, "next")
	_, err := s()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, fc.now.Sub(start))
}

func TestRandomPollHitAndTimeout(t *testing.T) {
	fc := newFakeClock()
	rnd := rand.New(rand.NewSource(7))

	in := &fakeInput{firesAfter: 2}
	s := RandomPoll(fc.clock(), rnd, in, 10*time.Second, 40*time.Second, "timeout", "hit")
	label, err := s()
	require.NoError(t, err)
	assert.Equal(t, Label("hit"), label)

	in2 := &fakeInput{firesAfter: -1}
	start := fc.now
	s2 := RandomPoll(fc.clock(), rnd, in2, 10*time.Second, 40*time.Second, "timeout", "hit")
	label, err = s2()
	require.NoError(t, err)
	assert.Equal(t, Label("timeout"), label)
	elapsed := fc.now.Sub(start)
	assert.True(t, elapsed >= 10*time.Second && elapsed <= 40*time.Second+PollPeriod)
	assert.Greater(t, in2.calls, 0)
}

func TestFlashPollStartsHighAndEndsOff(t *testing.T) {
	fc := newFakeClock()
	in := &fakeInput{firesAfter: -1}
	out := &fakeOutput{}
	s := FlashPoll(fc.clock(), out, in, 2*time.Second, "timeout", "hit")
	label, err := s()
	require.NoError(t, err)
	assert.Equal(t, Label("timeout"), label)
	// driven high at entry and again for each later high half-window
	assert.GreaterOrEqual(t, out.onCount, 2)
	// the deferred off means off calls at least match the toggled lows
	assert.GreaterOrEqual(t, out.offCount, 1)
}

func TestLightPollHoldsOnAndTurnsOffAtExit(t *testing.T) {
	fc := newFakeClock()
	in := &fakeInput{firesAfter: -1}
	out := &fakeOutput{}
	s := LightPoll(fc.clock(), out, in, 50*time.Millisecond, "timeout", "hit")
	label, err := s()
	require.NoError(t, err)
	assert.Equal(t, Label("timeout"), label)
	assert.Equal(t, 1, out.onCount)
	assert.Equal(t, 1, out.offCount)
}

func TestDualPollTieGoesToA(t *testing.T) {
	fc := newFakeClock()
	a := &fakeInput{firesAfter: 1}
	b := &fakeInput{firesAfter: 1}
	s := DualPoll(fc.clock(), a, b, time.Second, "timeout", "aWon", "bWon")
	label, err := s()
	require.NoError(t, err)
	assert.Equal(t, Label("aWon"), label)
}

func TestDualPollBWins(t *testing.T) {
	fc := newFakeClock()
	a := &fakeInput{firesAfter: -1}
	b := &fakeInput{firesAfter: 1}
	s := DualPoll(fc.clock(), a, b, time.Second, "timeout", "aWon", "bWon")
	label, err := s()
	require.NoError(t, err)
	assert.Equal(t, Label("bWon"), label)
}

func TestRandomChoicePicksAmongLabels(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	s := RandomChoice(rnd, []Label{"x", "y", "z"})
	label, err := s()
	require.NoError(t, err)
	assert.Contains(t, []Label{"x", "y", "z"}, label)
}

func TestRandomChoiceNoLabelsErrors(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	s := RandomChoice(rnd, nil)
	_, err := s()
	assert.Error(t, err)
}

func TestPreRewardInvokesMark(t *testing.T) {
	marked := false
	s := PreReward(func() error { marked = true; return nil }, "next")
	label, err := s()
	require.NoError(t, err)
	assert.True(t, marked)
	assert.Equal(t, Label("next"), label)
}

func TestPreRewardPropagatesMarkError(t *testing.T) {
	boom := errors.New("logger write failed")
	s := PreReward(func() error { return boom }, "next")
	_, err := s()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRewardPropagatesFailure(t *testing.T) {
	s := Reward(func(time.Duration) error { return assert.AnError }, time.Millisecond, "next")
	_, err := s()
	assert.Error(t, err)
}

func TestRewardSucceeds(t *testing.T) {
	var got time.Duration
	s := Reward(func(d time.Duration) error { got = d; return nil }, 250*time.Millisecond, "next")
	label, err := s()
	require.NoError(t, err)
	assert.Equal(t, Label("next"), label)
	assert.Equal(t, 250*time.Millisecond, got)
}
