package core

import "github.com/dkeye/classroom/internal/domain"

// PublishResult reports delivery stats/backpressure to the hub.
type PublishResult struct {
	SendTo  int
	Dropped []domain.AttendeeID
}

// ChannelService is the set of sockets one meeting has open on one channel
// (messaging or events). It owns membership but never closes transports,
// except in CloseAll.
type ChannelService interface {
	Meeting() domain.MeetingID
	MemberCount() int
	Members() []domain.AttendeeID

	// AddMember returns the connection it replaced, if any.
	AddMember(id domain.AttendeeID, conn SignalConnection) SignalConnection
	// RemoveMember removes id only if it is still bound to conn.
	RemoveMember(id domain.AttendeeID, conn SignalConnection) bool
	// Kick removes id and closes its connection.
	Kick(id domain.AttendeeID) bool
	Send(to domain.AttendeeID, data Frame) error
	Broadcast(from domain.AttendeeID, data Frame, includeSelf bool) PublishResult
	CloseAll()
}
