package core

import (
	"errors"
	"sync"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNotMember = errors.New("not a member")

// channelImpl is a threadsafe in-memory socket set.
type channelImpl struct {
	meeting domain.MeetingID
	name    string
	mu      sync.RWMutex
	conns   map[domain.AttendeeID]SignalConnection
	order   []domain.AttendeeID
}

func NewChannelService(meeting domain.MeetingID, name string) ChannelService {
	return &channelImpl{
		meeting: meeting,
		name:    name,
		conns:   make(map[domain.AttendeeID]SignalConnection),
	}
}

func (c *channelImpl) Meeting() domain.MeetingID { return c.meeting }

func (c *channelImpl) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}

func (c *channelImpl) Members() []domain.AttendeeID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.AttendeeID, len(c.order))
	copy(out, c.order)
	return out
}

func (c *channelImpl) AddMember(id domain.AttendeeID, conn SignalConnection) SignalConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.conns[id]
	c.conns[id] = conn
	if !ok {
		c.order = append(c.order, id)
	}
	log.Info().Str("module", "core.channel").Str("channel", c.name).Str("meeting", string(c.meeting)).Str("attendee", string(id)).Msg("member added")
	return old
}

func (c *channelImpl) RemoveMember(id domain.AttendeeID, conn SignalConnection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.conns[id]; !ok || cur != conn {
		return false
	}
	delete(c.conns, id)
	for i, a := range c.order {
		if a == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "core.channel").Str("channel", c.name).Str("meeting", string(c.meeting)).Str("attendee", string(id)).Msg("member removed")
	return true
}

func (c *channelImpl) Kick(id domain.AttendeeID) bool {
	c.mu.Lock()
	conn, ok := c.conns[id]
	if ok {
		delete(c.conns, id)
		for i, a := range c.order {
			if a == id {
				c.order = append(c.order[:i:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	conn.Close()
	log.Info().Str("module", "core.channel").Str("channel", c.name).Str("meeting", string(c.meeting)).Str("attendee", string(id)).Msg("member kicked")
	return true
}

func (c *channelImpl) Send(to domain.AttendeeID, data Frame) error {
	c.mu.RLock()
	conn, ok := c.conns[to]
	c.mu.RUnlock()
	if !ok {
		return ErrNotMember
	}
	return conn.TrySend(data)
}

func (c *channelImpl) Broadcast(from domain.AttendeeID, data Frame, includeSelf bool) PublishResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := PublishResult{}
	for _, id := range c.order {
		if id == from && !includeSelf {
			continue
		}
		if err := c.conns[id].TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.channel").Str("channel", c.name).Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (c *channelImpl) CloseAll() {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[domain.AttendeeID]SignalConnection)
	c.order = nil
	c.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}
