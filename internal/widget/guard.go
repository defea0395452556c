package widget

import "sync/atomic"

// Guard is a per-widget fetch epoch. Every issued fetch takes a fresh epoch from Begin and a
// response may only be applied while Current still reports true for it.
type Guard struct {
	epoch atomic.Uint64
}

// Begin starts a new epoch and returns it. Epochs start at 1 and strictly increase.
func (g *Guard) Begin() uint64 {
	return g.epoch.Add(1)
}

// Epoch returns the latest issued epoch, or zero before the first fetch.
func (g *Guard) Epoch() uint64 {
	return g.epoch.Load()
}

// Current reports whether epoch is still the latest issued one.
func (g *Guard) Current(epoch uint64) bool {
	return epoch != 0 && g.epoch.Load() == epoch
}
