// Package link speaks the chamber controller's two-byte wire protocol
// over a serial connection.
package link

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Op is the single-byte operation code of a wire command.
type Op byte

// Wire operation codes, fixed by the microcontroller protocol.
const (
	OpRead       Op = 0
	OpWriteHigh  Op = 1
	OpWriteLow   Op = 2
	OpSetOutput  Op = 3
	OpSetInput   Op = 4
	OpIdentify   Op = 6
)

// Direction selects configure(channel, direction).
type Direction int

const (
	DirectionOutput Direction = iota
	DirectionInput
)

const (
	// ReadTimeout is the fixed read timeout on every wire read.
	ReadTimeout = 5 * time.Second

	// HouseLightChannel and SolenoidChannel are the two channels with a
	// fixed meaning across every chamber.
	HouseLightChannel byte = 3
	SolenoidChannel   byte = 16
)

// HardwareLink is the single connection to one chamber's microcontroller.
// It is exclusively owned by its Panel: concurrent use from more than
// one goroutine is a caller bug, not something this type guards
// against.
type HardwareLink struct {
	port Port
	log  zerolog.Logger
	open bool
}

// Open establishes a HardwareLink over an already-constructed Port,
// draining and discarding one line of banner text before the link may
// be used. Bytes that arrived in the same read as the banner are
// discarded with it; no other flush of the port's input is done.
func Open(port Port, log zerolog.Logger) (*HardwareLink, error) {
	hl := &HardwareLink{port: port, log: log}
	if err := port.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return nil, newErr(IO, err)
	}
	br := bufio.NewReader(port)
	if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
		return nil, newErr(IO, fmt.Errorf("reading banner: %w", err))
	}
	hl.open = true
	hl.log.Debug().Msg("hardware link open, banner drained")
	return hl, nil
}

func (hl *HardwareLink) ensureOpen() error {
	if !hl.open {
		return newErr(NotOpen, nil)
	}
	return nil
}

func (hl *HardwareLink) send(channel byte, op Op) error {
	if err := hl.ensureOpen(); err != nil {
		return err
	}
	buf := make([]byte, 0, 2)
	buf = append(buf, channel, byte(op))
	if err := hl.port.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return newErr(IO, err)
	}
	if _, err := hl.port.Write(buf); err != nil {
		return newErr(IO, err)
	}
	return nil
}

// Configure issues (ch, 3) for output or (ch, 4) for input.
func (hl *HardwareLink) Configure(channel byte, dir Direction) error {
	op := OpSetOutput
	if dir == DirectionInput {
		op = OpSetInput
	}
	return hl.send(channel, op)
}

// Write issues (ch, 1) for high or (ch, 2) for low.
func (hl *HardwareLink) Write(channel byte, level bool) error {
	op := OpWriteLow
	if level {
		op = OpWriteHigh
	}
	return hl.send(channel, op)
}

// ReadLevel issues (ch, 0) then reads one byte, returning the sampled
// digital level.
func (hl *HardwareLink) ReadLevel(channel byte) (bool, error) {
	if err := hl.send(channel, OpRead); err != nil {
		return false, err
	}
	var b [1]byte
	if err := hl.readFull(b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// Identify issues (0, 6) and returns the device's identification bytes.
func (hl *HardwareLink) Identify() ([]byte, error) {
	if err := hl.send(0, OpIdentify); err != nil {
		return nil, err
	}
	br := bufio.NewReader(hl.port)
	line, err := br.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, newErr(IO, err)
	}
	return line, nil
}

func (hl *HardwareLink) readFull(b []byte) error {
	if err := hl.port.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return newErr(IO, err)
	}
	if _, err := io.ReadFull(hl.port, b); err != nil {
		if isTimeout(err) {
			return newErr(Timeout, err)
		}
		return newErr(IO, err)
	}
	return nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return false
}

// Close releases the underlying port.
func (hl *HardwareLink) Close() error {
	if !hl.open {
		return nil
	}
	hl.open = false
	return hl.port.Close()
}

// encodeCommand builds the exact two-byte framing used on the wire,
// kept as a standalone helper so tests can assert on raw bytes without
// going through a Port.
func encodeCommand(channel byte, op Op) []byte {
	var b [2]byte
	b[0] = channel
	b[1] = byte(op)
	return b[:]
}
