package panel

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiverse-labs/operant/internal/link"
)

func openTestPanel(t *testing.T) (*Panel, *link.FakePort, *FakePlayer) {
	t.Helper()
	fp := link.NewFakePort("READY")
	hl, err := link.Open(fp, zerolog.Nop())
	require.NoError(t, err)

	player := &FakePlayer{}
	p, err := New(hl, ChannelMap{TrialSensor: 5, ResponseSensor: 6}, player, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, fp, player
}

func TestNewConfiguresAllChannels(t *testing.T) {
	_, fp, _ := openTestPanel(t)
	w := fp.Written()
	require.Len(t, w, 4)
	assert.Equal(t, []byte{link.HouseLightChannel, byte(link.OpSetOutput)}, w[0])
	assert.Equal(t, []byte{link.SolenoidChannel, byte(link.OpSetOutput)}, w[1])
	assert.Equal(t, []byte{5, byte(link.OpSetInput)}, w[2])
	assert.Equal(t, []byte{6, byte(link.OpSetInput)}, w[3])
}

func TestHouseLightOnOff(t *testing.T) {
	p, fp, _ := openTestPanel(t)
	require.NoError(t, p.HouseLight.On())
	require.NoError(t, p.HouseLight.Off())

	w := fp.Written()
	last := w[len(w)-2:]
	assert.Equal(t, []byte{link.HouseLightChannel, byte(link.OpWriteHigh)}, last[0])
	assert.Equal(t, []byte{link.HouseLightChannel, byte(link.OpWriteLow)}, last[1])
}

func TestReward(t *testing.T) {
	p, fp, _ := openTestPanel(t)
	require.NoError(t, p.Reward(5*time.Millisecond))

	w := fp.Written()
	last := w[len(w)-2:]
	assert.Equal(t, []byte{link.SolenoidChannel, byte(link.OpWriteHigh)}, last[0])
	assert.Equal(t, []byte{link.SolenoidChannel, byte(link.OpWriteLow)}, last[1])
}

func TestSensorRisingEdgeConsumedOnce(t *testing.T) {
	p, fp, _ := openTestPanel(t)

	fp.QueueByte(1)
	assert.True(t, p.TrialSensor.ConsumeEvent())

	// level held high: no new edge
	fp.QueueByte(1)
	assert.False(t, p.TrialSensor.ConsumeEvent())

	// drop low, then a fresh rising edge
	fp.QueueByte(0)
	assert.False(t, p.TrialSensor.Status())
	fp.QueueByte(1)
	assert.True(t, p.TrialSensor.ConsumeEvent())
}

func TestSensorStatusTracksLevel(t *testing.T) {
	p, fp, _ := openTestPanel(t)

	fp.QueueByte(1)
	assert.True(t, p.TrialSensor.Status())
	fp.QueueByte(0)
	assert.False(t, p.TrialSensor.Status())
}

func TestSpeakerQueuePlayStop(t *testing.T) {
	p, _, player := openTestPanel(t)

	require.NoError(t, p.Speaker.Queue("/stim/a.wav"))
	require.NoError(t, p.Speaker.Play())
	require.NoError(t, p.Speaker.Stop())

	assert.Equal(t, []string{"/stim/a.wav"}, player.Started())
	assert.Equal(t, 1, player.Stops())
}

func TestSpeakerPlayWithoutQueueErrors(t *testing.T) {
	p, _, _ := openTestPanel(t)
	err := p.Speaker.Play()
	assert.Error(t, err)
}
