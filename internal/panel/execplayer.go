package panel

import (
	"os/exec"
	"sync"
)

// ExecPlayer shells out to an external audio player command for each
// queued file. It is the production Player; FakePlayer is its test
// double. A second Start while one is already running kills the prior
// process first, matching close_audio's "stop immediately" contract
// when a new trial's audio preempts an old one.
type ExecPlayer struct {
	Cmd string

	mu      sync.Mutex
	running *exec.Cmd
}

// NewExecPlayer builds an ExecPlayer that invokes cmd with the stimulus
// path as its sole argument (e.g. "aplay").
func NewExecPlayer(cmd string) *ExecPlayer {
	return &ExecPlayer{Cmd: cmd}
}

func (p *ExecPlayer) Start(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running != nil {
		_ = p.running.Process.Kill()
		p.running = nil
	}
	c := exec.Command(p.Cmd, path)
	if err := c.Start(); err != nil {
		return err
	}
	// reap the child whenever it exits, killed or not
	go func() { _ = c.Wait() }()
	p.running = c
	return nil
}

func (p *ExecPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running == nil {
		return nil
	}
	err := p.running.Process.Kill()
	p.running = nil
	return err
}
