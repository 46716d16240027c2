package shaping

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirProvider resolves a stimulus class to "<dir>/<class>.wav", the
// flat-file stimulus layout the chambers use. Stat failures (most
// commonly a missing file) are returned as plain errors for the caller
// to classify; playAudioOrErrTrial treats them as non-fatal stimulus
// errors rather than hardware faults.
type DirProvider struct {
	Dir string
}

// NewDirProvider builds a DirProvider rooted at dir.
func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{Dir: dir}
}

// Stimulus implements fsm.StimulusProvider.
func (p *DirProvider) Stimulus(class string) (string, error) {
	path := filepath.Join(p.Dir, class+".wav")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("shaping: stimulus %q: %w", class, err)
	}
	return path, nil
}
