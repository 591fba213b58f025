package presence

import (
	"time"

	"go.uber.org/atomic"
)

// Snapshot is a read-only copy of the presence state for rendering.
type Snapshot struct {
	Connected  bool      `json:"connected"`
	LastUpdate time.Time `json:"last_update"`
	Callsign   string    `json:"callsign,omitempty"`
	Headline   string    `json:"headline"`
	Detail     string    `json:"detail,omitempty"`
}

// Board holds the latest Snapshot. It is written only by the Machine and
// may be read from any goroutine.
type Board struct {
	v       atomic.Value
	changed chan struct{}
}

func newBoard(s Snapshot) *Board {
	b := &Board{changed: make(chan struct{}, 1)}
	b.v.Store(s)
	return b
}

func (b *Board) Load() Snapshot {
	return b.v.Load().(Snapshot)
}

// Changed receives a value after the snapshot changes. Notifications
// coalesce, so a slow reader only sees the latest state.
func (b *Board) Changed() <-chan struct{} {
	return b.changed
}

func (b *Board) store(s Snapshot) {
	b.v.Store(s)
	select {
	case b.changed <- struct{}{}:
	default:
	}
}
