package domain

// EventType names a frame on the realtime events socket.
type EventType string

const (
	EventPresence    EventType = "presence"
	EventVolume      EventType = "volume"
	EventTile        EventType = "tile"
	EventTileRemoved EventType = "tile_removed"

	// client -> server
	EventMute  EventType = "mute"
	EventVideo EventType = "video"
)

// Event is the flat wire shape of every events-socket frame.
// Only the fields relevant to Type are set.
type Event struct {
	Type       EventType  `json:"type"`
	AttendeeID AttendeeID `json:"attendeeId,omitempty"`

	Present *bool `json:"present,omitempty"`

	Volume         *float64 `json:"volume,omitempty"`
	Muted          *bool    `json:"muted,omitempty"`
	SignalStrength *float64 `json:"signalStrength,omitempty"`

	TileID    TileID `json:"tileId,omitempty"`
	LocalTile bool   `json:"localTile,omitempty"`
	IsContent bool   `json:"isContent,omitempty"`
	Active    bool   `json:"active,omitempty"`

	On *bool `json:"on,omitempty"`
}

func PresenceEvent(id AttendeeID, present bool) Event {
	return Event{Type: EventPresence, AttendeeID: id, Present: &present}
}

func TileEvent(s TileState) Event {
	return Event{
		Type:       EventTile,
		AttendeeID: s.BoundAttendeeID,
		TileID:     s.TileID,
		LocalTile:  s.LocalTile,
		IsContent:  s.IsContent,
		Active:     s.Active,
	}
}

func (e Event) TileState() TileState {
	return TileState{
		TileID:          e.TileID,
		BoundAttendeeID: e.AttendeeID,
		LocalTile:       e.LocalTile,
		IsContent:       e.IsContent,
		Active:          e.Active,
	}
}

func (e Event) VolumeIndicator() VolumeIndicator {
	return VolumeIndicator{
		AttendeeID:     e.AttendeeID,
		Volume:         e.Volume,
		Muted:          e.Muted,
		SignalStrength: e.SignalStrength,
	}
}
