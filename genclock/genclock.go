package genclock

// Clock abstracts the generation counter shared by every namespace.
// Any goroutine may read it; only the sweeper advances it.
type Clock interface {
	// Current returns the generation stamped on entries touched right now.
	Current() uint64
	// Advance moves the clock forward by one and returns the new generation.
	Advance() uint64
}
