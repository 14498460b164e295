// Package tiles binds remote video tiles to a fixed set of rendering slots.
package tiles

import (
	"errors"

	"github.com/dkeye/classroom/internal/domain"
)

const (
	MaxRemoteVideos = 16
	// NotFound is returned by Release for a tile that holds no slot.
	NotFound = -1
)

var ErrNoTilesAvailable = errors.New("no tiles are available")

// Allocator is a fixed slot table. It is not safe for concurrent use;
// VideoGroup serializes access.
type Allocator struct {
	slots [MaxRemoteVideos]domain.TileID
	used  [MaxRemoteVideos]bool
}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// Acquire returns the slot already held by tileID, or binds it to the lowest
// free slot. A full table is left untouched and ErrNoTilesAvailable returned.
func (a *Allocator) Acquire(tileID domain.TileID) (int, error) {
	if slot := a.indexOf(tileID); slot != NotFound {
		return slot, nil
	}
	for i := range a.slots {
		if !a.used[i] {
			a.slots[i] = tileID
			a.used[i] = true
			return i, nil
		}
	}
	return NotFound, ErrNoTilesAvailable
}

// Release frees the slot held by tileID and returns it, or NotFound.
func (a *Allocator) Release(tileID domain.TileID) int {
	slot := a.indexOf(tileID)
	if slot != NotFound {
		a.used[slot] = false
		a.slots[slot] = 0
	}
	return slot
}

// Slot reports the tile bound to slot, if any.
func (a *Allocator) Slot(slot int) (domain.TileID, bool) {
	if slot < 0 || slot >= MaxRemoteVideos || !a.used[slot] {
		return 0, false
	}
	return a.slots[slot], true
}

func (a *Allocator) Occupied() int {
	n := 0
	for _, u := range a.used {
		if u {
			n++
		}
	}
	return n
}

func (a *Allocator) indexOf(tileID domain.TileID) int {
	for i := range a.slots {
		if a.used[i] && a.slots[i] == tileID {
			return i
		}
	}
	return NotFound
}
