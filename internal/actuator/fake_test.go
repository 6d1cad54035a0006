package actuator

import (
	"sync"

	"github.com/sweeney/kiosk-agent/internal/logic"
)

// recordingStore captures SetActuator calls.
type recordingStore struct {
	mu     sync.Mutex
	states []logic.ActuatorState
}

func (s *recordingStore) SetActuator(st logic.ActuatorState) {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
}

func (s *recordingStore) last() logic.ActuatorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[len(s.states)-1]
}
