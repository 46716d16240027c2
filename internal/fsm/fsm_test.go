package fsm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSimplePath(t *testing.T) {
	var visited []string
	states := map[Label]State{
		"a": func() (Label, error) { visited = append(visited, "a"); return "b", nil },
		"b": func() (Label, error) { visited = append(visited, "b"); return "c", nil },
		"c": func() (Label, error) { visited = append(visited, "c"); return Terminate, nil },
	}
	m, err := New(states, "a", Terminate, nil)
	require.NoError(t, err)

	path, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, []Label{"a", "b", "c"}, path)
	assert.Equal(t, []string{"a", "b", "c"}, visited)
}

func TestRunRoutesToErrorState(t *testing.T) {
	var recovered bool
	states := map[Label]State{
		"start": func() (Label, error) { return Terminate, errors.New("boom") },
		"err":   func() (Label, error) { recovered = true; return Terminate, nil },
	}
	m, err := New(states, "start", "err", nil)
	require.NoError(t, err)

	path, err := m.Run()
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, []Label{"start", "err"}, path)
}

func TestRunTerminatesOnErrorInErrorState(t *testing.T) {
	var errsSeen []error
	states := map[Label]State{
		"start": func() (Label, error) { return Terminate, errors.New("boom1") },
		"err":   func() (Label, error) { return Terminate, errors.New("boom2") },
	}
	m, err := New(states, "start", "err", func(from Label, e error) { errsSeen = append(errsSeen, e) })
	require.NoError(t, err)

	_, err = m.Run()
	require.Error(t, err)
	assert.Equal(t, "boom2", err.Error())
	assert.Len(t, errsSeen, 2)
}

func TestNewRejectsUndeclaredInitial(t *testing.T) {
	_, err := New(map[Label]State{}, "missing", Terminate, nil)
	assert.Error(t, err)
}

func TestNewRejectsUndeclaredErrorState(t *testing.T) {
	states := map[Label]State{"a": func() (Label, error) { return Terminate, nil }}
	_, err := New(states, "a", "missing", nil)
	assert.Error(t, err)
}
