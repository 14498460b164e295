package backend

import "github.com/dkeye/classroom/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

type Policy interface {
	OnBackPressure(ch Channel, attendee domain.AttendeeID) BackpressureAction
}

// SimplePolicy drops chat frames for slow sockets and kicks slow event
// sockets, whose presence and tile state would otherwise go stale.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(ch Channel, _ domain.AttendeeID) BackpressureAction {
	if ch == ChannelEvents {
		return KickMember
	}
	return DropFrame
}

// StrictPolicy kicks every socket that falls behind.
type StrictPolicy struct{}

func (StrictPolicy) OnBackPressure(Channel, domain.AttendeeID) BackpressureAction {
	return KickMember
}
