package domain

import "math"

// RosterEntry is presence/audio meta for one attendee.
// Nil fields mean no indicator value has been seen yet.
type RosterEntry struct {
	Name           string `json:"name"`
	Volume         *int   `json:"volume,omitempty"`
	Muted          *bool  `json:"muted,omitempty"`
	SignalStrength *int   `json:"signalStrength,omitempty"`
}

// Roster is keyed by base attendee id.
type Roster map[AttendeeID]RosterEntry

// Clone copies the map and the entries' pointed-to values so subscribers
// can hold a snapshot.
func (r Roster) Clone() Roster {
	out := make(Roster, len(r))
	for id, e := range r {
		out[id] = e.clone()
	}
	return out
}

func (e RosterEntry) clone() RosterEntry {
	c := RosterEntry{Name: e.Name}
	if e.Volume != nil {
		v := *e.Volume
		c.Volume = &v
	}
	if e.Muted != nil {
		m := *e.Muted
		c.Muted = &m
	}
	if e.SignalStrength != nil {
		s := *e.SignalStrength
		c.SignalStrength = &s
	}
	return c
}

// VolumeIndicator is one SDK indicator event. Volume and signal strength are
// fractions in [0, 1]; nil means "no change".
type VolumeIndicator struct {
	AttendeeID     AttendeeID
	Volume         *float64
	Muted          *bool
	SignalStrength *float64
}

// Merge applies only the non-nil fields of ind.
func (e RosterEntry) Merge(ind VolumeIndicator) RosterEntry {
	out := e.clone()
	if ind.Volume != nil {
		v := percent(*ind.Volume)
		out.Volume = &v
	}
	if ind.Muted != nil {
		m := *ind.Muted
		out.Muted = &m
	}
	if ind.SignalStrength != nil {
		s := percent(*ind.SignalStrength)
		out.SignalStrength = &s
	}
	return out
}

func percent(f float64) int {
	return int(math.Round(f * 100))
}
