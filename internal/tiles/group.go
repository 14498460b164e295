package tiles

import (
	"sync"

	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Visible is what a slot renders.
type Visible struct {
	BoundAttendeeID domain.AttendeeID `json:"boundAttendeeId"`
	TileID          domain.TileID     `json:"tileId"`
}

// Layout is the full rendering snapshot handed to subscribers.
type Layout struct {
	Visible [MaxRemoteVideos]*Visible `json:"visible"`
	Count   int                       `json:"count"`
	Size    Size                      `json:"size"`
}

// VideoGroup keeps remote tiles in slots and publishes the layout on change.
// It implements core.VideoTileObserver.
type VideoGroup struct {
	mu      sync.Mutex
	alloc   *Allocator
	visible [MaxRemoteVideos]*Visible
	binder  core.TileBinder

	listeners core.Listeners[Layout]
	logger    zerolog.Logger
}

var _ core.VideoTileObserver = (*VideoGroup)(nil)

// NewVideoGroup returns an empty group. binder may be nil.
func NewVideoGroup(binder core.TileBinder) *VideoGroup {
	return &VideoGroup{
		alloc:  NewAllocator(),
		binder: binder,
		logger: log.With().Str("module", "tiles.group").Logger(),
	}
}

func (g *VideoGroup) Subscribe(fn func(Layout)) core.ListenerID { return g.listeners.Add(fn) }

func (g *VideoGroup) Unsubscribe(id core.ListenerID) { g.listeners.Remove(id) }

func (g *VideoGroup) VideoTileDidUpdate(state domain.TileState) {
	if state.BoundAttendeeID == "" || state.LocalTile || state.IsContent {
		return
	}

	g.mu.Lock()
	slot, err := g.alloc.Acquire(state.TileID)
	if err != nil {
		g.mu.Unlock()
		g.logger.Warn().
			Err(core.Recoverable("acquire tile", err)).
			Int("tile", int(state.TileID)).
			Str("attendee", string(state.BoundAttendeeID)).
			Msg("tile not displayed")
		return
	}
	g.visible[slot] = &Visible{BoundAttendeeID: state.BoundAttendeeID, TileID: state.TileID}
	layout := g.layoutLocked()
	g.mu.Unlock()

	if g.binder != nil {
		g.binder.BindVideoTile(state.TileID, slot)
	}
	g.logger.Debug().Int("tile", int(state.TileID)).Int("slot", slot).Msg("tile bound")
	g.listeners.Notify(layout)
}

func (g *VideoGroup) VideoTileWasRemoved(tileID domain.TileID) {
	g.mu.Lock()
	slot := g.alloc.Release(tileID)
	if slot == NotFound {
		g.mu.Unlock()
		return
	}
	g.visible[slot] = nil
	layout := g.layoutLocked()
	g.mu.Unlock()

	g.logger.Debug().Int("tile", int(tileID)).Int("slot", slot).Msg("tile released")
	g.listeners.Notify(layout)
}

func (g *VideoGroup) Layout() Layout {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.layoutLocked()
}

// Reset releases every slot without notifying.
func (g *VideoGroup) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.alloc = NewAllocator()
	g.visible = [MaxRemoteVideos]*Visible{}
}

func (g *VideoGroup) layoutLocked() Layout {
	var l Layout
	for i, v := range g.visible {
		if v == nil {
			continue
		}
		c := *v
		l.Visible[i] = &c
		l.Count++
	}
	l.Size = SizeFor(l.Count)
	return l
}
