package gpio

import (
	"errors"
	"sync"
)

// FakeTrigger records trigger line writes.
type FakeTrigger struct {
	// Writes contains every value written, in order.
	Writes []bool

	// WriteError, if set, will be returned by Write().
	WriteError error
}

// Write records the value.
func (f *FakeTrigger) Write(high bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, high)
	return nil
}

// FakeEcho is a test double that returns scripted echo levels.
type FakeEcho struct {
	// Levels contains scripted line levels to return.
	// Each call to Read() consumes the next level.
	Levels []bool

	// index tracks current position in Levels
	index int

	// Reads counts calls to Read().
	Reads int

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeEcho creates a FakeEcho with the given levels.
func NewFakeEcho(levels []bool) *FakeEcho {
	return &FakeEcho{Levels: levels}
}

// Pulse builds an echo script: low for before reads, high for width reads,
// then low.
func Pulse(before, width int) []bool {
	levels := make([]bool, before+width+1)
	for i := before; i < before+width; i++ {
		levels[i] = true
	}
	return levels
}

// Read returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
func (f *FakeEcho) Read() (bool, error) {
	f.Reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Levels) == 0 {
		return false, errors.New("no levels configured")
	}

	v := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return v, nil
}

// Reset rewinds the script.
func (f *FakeEcho) Reset() {
	f.index = 0
	f.Reads = 0
}

// FakePWM records levels. Safe for concurrent use.
type FakePWM struct {
	mu       sync.Mutex
	levels   []int
	setError error
}

// NewFakePWM creates a FakePWM.
func NewFakePWM() *FakePWM {
	return &FakePWM{}
}

// SetLevel records the level, or returns the configured error.
func (f *FakePWM) SetLevel(level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setError != nil {
		return f.setError
	}
	f.levels = append(f.levels, level)
	return nil
}

// SetError makes subsequent SetLevel calls fail with err (nil clears it).
func (f *FakePWM) SetError(err error) {
	f.mu.Lock()
	f.setError = err
	f.mu.Unlock()
}

// Levels returns a copy of all recorded levels.
func (f *FakePWM) Levels() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.levels...)
}

// Last returns the most recent level, or -1 if none was set.
func (f *FakePWM) Last() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.levels) == 0 {
		return -1
	}
	return f.levels[len(f.levels)-1]
}
