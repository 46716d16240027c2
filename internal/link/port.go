package link

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Port is the minimal surface HardwareLink needs from a serial
// connection: byte-oriented read/write with a read deadline, and close.
// It lets the rest of the codebase ignore whether the concrete port is
// a real tty device or an in-memory fake.
type Port interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// filePort adapts an *os.File (or anything with the same shape) to Port.
// Used for the production code path once termios configuration of the
// underlying file has been applied by the platform-specific opener.
type filePort struct {
	f  *os.File
	br *bufio.Reader
}

func newFilePort(f *os.File) *filePort {
	return &filePort{f: f, br: bufio.NewReader(f)}
}

func (p *filePort) Read(b []byte) (int, error)  { return p.br.Read(b) }
func (p *filePort) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *filePort) Close() error                { return p.f.Close() }
func (p *filePort) SetReadDeadline(t time.Time) error {
	return p.f.SetReadDeadline(t)
}

// OpenDevice opens path (a chamber's device node) read-write,
// configures the line for 19200 baud 8N1 raw mode, and wraps it as a
// Port.
func OpenDevice(path string) (Port, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, err
	}
	if err := configureSerial(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("link: configure %s: %w", path, err)
	}
	return newFilePort(f), nil
}

// configureSerial sets the tty to 19200 baud, 8 data bits, no parity,
// one stop bit, raw mode. Read timeouts are enforced by the Port's
// deadline, not by VTIME.
func configureSerial(f *os.File) error {
	fd := int(f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Cflag = unix.CS8 | unix.CREAD | unix.CLOCAL | unix.B19200
	t.Iflag = 0
	t.Oflag = 0
	t.Lflag = 0
	t.Ispeed = unix.B19200
	t.Ospeed = unix.B19200
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}
