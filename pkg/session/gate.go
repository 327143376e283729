package session

// gate is a tiny 1-token semaphore with TryLock semantics (non-blocking
// fast-fail). One gate exists per camera ID to serialize mutating
// operations on the same camera without blocking other cameras.
type gate struct{ ch chan struct{} }

func newGate() *gate {
	g := &gate{ch: make(chan struct{}, 1)}
	g.ch <- struct{}{} // token present => unlocked
	return g
}

func (g *gate) Lock() { <-g.ch }

func (g *gate) TryLock() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

func (g *gate) Unlock() {
	select {
	case g.ch <- struct{}{}:
	default:
		panic("unlock of unlocked gate")
	}
}
