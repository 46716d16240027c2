package shaping

import (
	"fmt"
	"math"
	"time"

	"github.com/multiverse-labs/operant/internal/config"
	"github.com/multiverse-labs/operant/internal/fsm"
)

// InfiniteRevertTimeout disables reversion.
const InfiniteRevertTimeout = time.Duration(math.MaxInt64)

// Block is one numbered training stage: a success target (Reps), a
// revert timeout, and a graph builder closing over a *Session.
type Block struct {
	Name          string
	Reps          int
	RevertTimeout time.Duration
	Build         func(sess *Session) (states map[fsm.Label]fsm.State, initial, errorState fsm.Label)
}

// CheckState is the shared _check_block primitive every block graph
// uses to decide whether to keep polling or terminate the block. It sets sess.exitReason so the enclosing
// Shaper loop knows why the block ended.
func CheckState(sess *Session, clock fsm.Clock, reps int, revertTimeout time.Duration, next fsm.Label) fsm.State {
	return func() (fsm.Label, error) {
		if !sess.Responded {
			if revertTimeout != InfiniteRevertTimeout {
				elapsed := clock.Now().Sub(sess.BlockStart)
				if elapsed > revertTimeout {
					sess.exitReason = exitRevert
					return fsm.Terminate, nil
				}
			}
		} else if sess.ResponseCount >= reps {
			sess.exitReason = exitAdvance
			return fsm.Terminate, nil
		}
		inSchedule, err := sess.LightSchedule.InSchedule(clock.Now())
		if err != nil {
			return fsm.Terminate, err
		}
		if !inSchedule {
			sess.exitReason = exitSleep
			return fsm.Terminate, nil
		}
		return next, nil
	}
}

// RunBlock executes one block's graph to termination and reports why it
// ended.
func RunBlock(sess *Session, b Block, onError func(fsm.Label, error)) (blockExit, error) {
	sess.SubState = b.Name
	states, initial, errorState := b.Build(sess)
	m, err := fsm.New(states, initial, errorState, onError)
	if err != nil {
		return exitNone, err
	}
	if _, err := m.Run(); err != nil {
		return exitNone, err
	}
	if sess.exitReason == exitNone {
		// A block whose graph reaches Terminate without the check state
		// recording a reason is an advance by default.
		return exitAdvance, nil
	}
	return sess.exitReason, nil
}

// ErrUnimplementedBlock is returned by declared-but-unimplemented
// block factories (ShaperFemalePref's blocks, ShaperGoNogo's
// non-flashing center peck): invocation is a fatal configuration
// error (it wraps config.ErrConfig), not silent behavior.
var ErrUnimplementedBlock = fmt.Errorf("shaping: %w: block not implemented", config.ErrConfig)

// UnimplementedBlock builds a one-state graph that immediately fails
// with ErrUnimplementedBlock the first time the block is entered.
func UnimplementedBlock(name string) Block {
	return Block{
		Name: name,
		Build: func(sess *Session) (map[fsm.Label]fsm.State, fsm.Label, fsm.Label) {
			states := map[fsm.Label]fsm.State{
				"init": func() (fsm.Label, error) { return fsm.Terminate, ErrUnimplementedBlock },
			}
			return states, "init", fsm.Terminate
		},
	}
}

// Run drives a Shaper's block sequence to completion.
// Reaching index 0 or past len(blocks) ends the shaping session.
func Run(sess *Session, blocks []Block, startBlock int, sleep func(*Session) error, onError func(fsm.Label, error)) error {
	idx := startBlock
	for idx >= 1 && idx <= len(blocks) {
		b := blocks[idx-1]
		sess.EnterBlock(idx, time.Now())
		exit, err := RunBlock(sess, b, onError)
		if err != nil {
			return err
		}
		switch exit {
		case exitAdvance:
			idx++
		case exitRevert:
			idx--
		case exitSleep:
			if err := sleep(sess); err != nil {
				return err
			}
			// resume the same block once the sleep block returns
		default:
			idx++
		}
	}
	return nil
}
