package link

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// FakePort is an in-memory Port used by tests and by callers that want
// to exercise the wire protocol without real hardware: a deterministic
// stand-in behind the same interface.
type FakePort struct {
	mu       sync.Mutex
	banner   []byte
	toRead   bytes.Buffer
	written  [][]byte
	closed   bool
	deadline time.Time
}

// NewFakePort creates a FakePort that will emit banner as its first
// readline, as real chamber firmware does at connect time.
func NewFakePort(banner string) *FakePort {
	return &FakePort{banner: []byte(banner + "\n")}
}

// QueueByte arranges for the next Read to return this one byte, simulating
// a sensor level response to a read-op command.
func (p *FakePort) QueueByte(b byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toRead.WriteByte(b)
}

// QueueLine arranges for the next Read to return this line, simulating an
// identify() response.
func (p *FakePort) QueueLine(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toRead.WriteString(s)
	p.toRead.WriteByte('\n')
}

func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p.banner) > 0 {
		n := copy(b, p.banner)
		p.banner = p.banner[n:]
		return n, nil
	}
	if p.toRead.Len() == 0 {
		return 0, &fakeTimeoutError{}
	}
	return p.toRead.Read(b)
}

func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	p.written = append(p.written, cp)
	return len(b), nil
}

// Written returns every command written so far, for assertions.
func (p *FakePort) Written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.written...)
}

func (p *FakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *FakePort) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadline = t
	return nil
}

type fakeTimeoutError struct{}

func (*fakeTimeoutError) Error() string { return "fake port: no data queued" }
func (*fakeTimeoutError) Timeout() bool { return true }
