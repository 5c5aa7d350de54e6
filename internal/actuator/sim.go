package actuator

import "sync"

// SimPort is an in-memory simulated actuator array: a small stand-in for
// the haptic driver that the full stack can drive end to end without
// touching silicon. It logs nothing on its own -- callers wrap it with a
// devlog-backed decorator if they want frame events -- but it does track
// the current on/off + amplitude state of every finger so tests and the
// CLI can assert on what was actually driven.
type SimPort struct {
	mu     sync.Mutex
	count  int
	active map[int]int // fingerIdx -> amplitudePct, present iff on

	// FailFinger, if set to a finger index, causes the first Activate or
	// Deactivate call for that finger to return an error; later calls for
	// it succeed -- used to
	// exercise the "individual actuator faults are logged, not fatal" path.
	FailFinger int
	failOnce   bool
}

// NewSimPort creates a simulated actuator array with count fingers.
func NewSimPort(count int) *SimPort {
	return &SimPort{
		count:      count,
		active:     make(map[int]int),
		FailFinger: -1,
	}
}

// Activate implements Port.
func (s *SimPort) Activate(fingerIdx int, amplitudePct int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fingerIdx < 0 || fingerIdx >= s.count {
		return &ErrInvalidFinger{Index: fingerIdx, Count: s.count}
	}
	if s.shouldFail(fingerIdx) {
		return &ErrInvalidFinger{Index: fingerIdx, Count: s.count}
	}
	s.active[fingerIdx] = amplitudePct
	return nil
}

// Deactivate implements Port.
func (s *SimPort) Deactivate(fingerIdx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fingerIdx < 0 || fingerIdx >= s.count {
		return &ErrInvalidFinger{Index: fingerIdx, Count: s.count}
	}
	if s.shouldFail(fingerIdx) {
		return &ErrInvalidFinger{Index: fingerIdx, Count: s.count}
	}
	delete(s.active, fingerIdx)
	return nil
}

// StopAll implements Port.
func (s *SimPort) StopAll(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = make(map[int]int)
	return nil
}

// EmergencyStop implements Port.
func (s *SimPort) EmergencyStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = make(map[int]int)
}

// IsActive reports whether fingerIdx is currently on, and at what amplitude.
func (s *SimPort) IsActive(fingerIdx int) (amplitudePct int, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.active[fingerIdx]
	return a, ok
}

// ActiveCount returns the number of currently-on fingers.
func (s *SimPort) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *SimPort) shouldFail(fingerIdx int) bool {
	if s.FailFinger == fingerIdx && !s.failOnce {
		s.failOnce = true
		return true
	}
	return false
}

var _ Port = (*SimPort)(nil)
