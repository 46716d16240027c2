package shaping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiverse-labs/operant/internal/config"
	"github.com/multiverse-labs/operant/internal/fsm"
)

func fakeClock(start time.Time) (fsm.Clock, *time.Time) {
	now := start
	return fsm.Clock{
		Sleep: func(d time.Duration) { now = now.Add(d) },
		Now:   func() time.Time { return now },
	}, &now
}

func alwaysInSchedule() config.LightSchedule {
	return config.LightSchedule{{Start: "00:00", End: "23:59"}}
}

func neverInSchedule() config.LightSchedule {
	return config.LightSchedule{{Start: "00:00", End: "00:00"}}
}

func TestCheckStateAdvancesOnReps(t *testing.T) {
	clock, _ := fakeClock(time.Now())
	sess := &Session{LightSchedule: alwaysInSchedule()}
	sess.EnterBlock(1, clock.Now())
	sess.MarkResponse("response_sensor")

	next, err := CheckState(sess, clock, 1, InfiniteRevertTimeout, "loop")()
	require.NoError(t, err)
	assert.Equal(t, fsm.Terminate, next)
	assert.Equal(t, exitAdvance, sess.exitReason)
}

func TestCheckStateRevertsOnTimeout(t *testing.T) {
	start := time.Now()
	clock, now := fakeClock(start)
	sess := &Session{LightSchedule: alwaysInSchedule()}
	sess.EnterBlock(1, clock.Now())
	*now = start.Add(2 * time.Second)

	next, err := CheckState(sess, clock, 5, time.Second, "loop")()
	require.NoError(t, err)
	assert.Equal(t, fsm.Terminate, next)
	assert.Equal(t, exitRevert, sess.exitReason)
}

func TestCheckStateYieldsToSleep(t *testing.T) {
	clock, _ := fakeClock(time.Now())
	sess := &Session{LightSchedule: neverInSchedule()}
	sess.EnterBlock(1, clock.Now())

	next, err := CheckState(sess, clock, 5, InfiniteRevertTimeout, "loop")()
	require.NoError(t, err)
	assert.Equal(t, fsm.Terminate, next)
	assert.Equal(t, exitSleep, sess.exitReason)
}

func TestCheckStateLoopsWhenNotDone(t *testing.T) {
	clock, _ := fakeClock(time.Now())
	sess := &Session{LightSchedule: alwaysInSchedule()}
	sess.EnterBlock(1, clock.Now())

	next, err := CheckState(sess, clock, 5, time.Minute, "loop")()
	require.NoError(t, err)
	assert.Equal(t, fsm.Label("loop"), next)
	assert.Equal(t, exitNone, sess.exitReason)
}

func TestEnterBlockInvokesOnBlockEnter(t *testing.T) {
	var published []int
	sess := &Session{OnBlockEnter: func(i int) { published = append(published, i) }}
	sess.EnterBlock(2, time.Now())
	sess.EnterBlock(3, time.Now())
	assert.Equal(t, []int{2, 3}, published)
}

func TestRunSequencesAdvanceAndSleep(t *testing.T) {
	var entered []int
	sleepCalls := 0

	makeBlock := func(idx int, exit blockExit) Block {
		return Block{
			Name: "b",
			Build: func(sess *Session) (map[fsm.Label]fsm.State, fsm.Label, fsm.Label) {
				states := map[fsm.Label]fsm.State{
					"init": func() (fsm.Label, error) {
						entered = append(entered, idx)
						sess.exitReason = exit
						return fsm.Terminate, nil
					},
				}
				return states, "init", fsm.Terminate
			},
		}
	}

	two := []Block{
		makeBlock(1, exitAdvance),
		{
			Name: "b2",
			Build: func(sess *Session) (map[fsm.Label]fsm.State, fsm.Label, fsm.Label) {
				states := map[fsm.Label]fsm.State{
					"init": func() (fsm.Label, error) {
						entered = append(entered, 2)
						if sleepCalls == 0 {
							sess.exitReason = exitSleep
						} else {
							sess.exitReason = exitAdvance
						}
						return fsm.Terminate, nil
					},
				}
				return states, "init", fsm.Terminate
			},
		},
	}

	sess := &Session{LightSchedule: alwaysInSchedule()}
	err := Run(sess, two, 1, func(*Session) error {
		sleepCalls++
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, entered)
	assert.Equal(t, 1, sleepCalls)
}
