package link

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestOpenDrainsBanner(t *testing.T) {
	fp := NewFakePort("OPERANT READY")
	hl, err := Open(fp, testLogger())
	require.NoError(t, err)
	assert.True(t, hl.open)
}

func TestEncodeCommand(t *testing.T) {
	assert.Equal(t, []byte{16, 1}, encodeCommand(16, OpWriteHigh))
	assert.Equal(t, []byte{3, 2}, encodeCommand(3, OpWriteLow))
	assert.Equal(t, []byte{0, 6}, encodeCommand(0, OpIdentify))
}

func TestWriteSendsTwoBytes(t *testing.T) {
	fp := NewFakePort("READY")
	hl, err := Open(fp, testLogger())
	require.NoError(t, err)

	require.NoError(t, hl.Write(SolenoidChannel, true))
	require.NoError(t, hl.Write(HouseLightChannel, false))

	w := fp.Written()
	require.Len(t, w, 2)
	assert.Equal(t, []byte{SolenoidChannel, byte(OpWriteHigh)}, w[0])
	assert.Equal(t, []byte{HouseLightChannel, byte(OpWriteLow)}, w[1])
}

func TestConfigure(t *testing.T) {
	fp := NewFakePort("READY")
	hl, err := Open(fp, testLogger())
	require.NoError(t, err)

	require.NoError(t, hl.Configure(5, DirectionInput))
	require.NoError(t, hl.Configure(6, DirectionOutput))

	w := fp.Written()
	require.Len(t, w, 2)
	assert.Equal(t, byte(OpSetInput), w[0][1])
	assert.Equal(t, byte(OpSetOutput), w[1][1])
}

func TestReadLevel(t *testing.T) {
	fp := NewFakePort("READY")
	hl, err := Open(fp, testLogger())
	require.NoError(t, err)

	fp.QueueByte(1)
	lvl, err := hl.ReadLevel(5)
	require.NoError(t, err)
	assert.True(t, lvl)

	fp.QueueByte(0)
	lvl, err = hl.ReadLevel(5)
	require.NoError(t, err)
	assert.False(t, lvl)
}

func TestReadLevelTimeout(t *testing.T) {
	fp := NewFakePort("READY")
	hl, err := Open(fp, testLogger())
	require.NoError(t, err)

	_, err = hl.ReadLevel(5)
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, Timeout, lerr.Kind)
}

func TestOperationOnClosedLink(t *testing.T) {
	fp := NewFakePort("READY")
	hl, err := Open(fp, testLogger())
	require.NoError(t, err)
	require.NoError(t, hl.Close())

	err = hl.Write(5, true)
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, NotOpen, lerr.Kind)
}

func TestIdentify(t *testing.T) {
	fp := NewFakePort("READY")
	hl, err := Open(fp, testLogger())
	require.NoError(t, err)

	fp.QueueLine("OPERANT-BOARD-3")
	id, err := hl.Identify()
	require.NoError(t, err)
	assert.Equal(t, "OPERANT-BOARD-3\n", string(id))
}

func TestClosedPortRejectsWrites(t *testing.T) {
	fp := NewFakePort("READY")
	hl, err := Open(fp, testLogger())
	require.NoError(t, err)
	require.NoError(t, fp.Close())

	err = hl.Write(5, true)
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, IO, lerr.Kind)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
