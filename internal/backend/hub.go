package backend

import (
	"sync"

	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
)

// Channel names one of the two per-meeting socket sets.
type Channel string

const (
	ChannelMessaging Channel = "messaging"
	ChannelEvents    Channel = "events"
)

type hubKey struct {
	meeting domain.MeetingID
	channel Channel
}

// Hub owns the socket sets of every open meeting.
type Hub struct {
	mu       sync.RWMutex
	channels map[hubKey]core.ChannelService
}

func NewHub() *Hub {
	return &Hub{channels: make(map[hubKey]core.ChannelService)}
}

func (h *Hub) GetOrCreate(meeting domain.MeetingID, ch Channel) core.ChannelService {
	k := hubKey{meeting, ch}
	h.mu.RLock()
	svc, ok := h.channels[k]
	h.mu.RUnlock()
	if ok {
		return svc
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if svc, ok = h.channels[k]; ok {
		return svc
	}
	svc = core.NewChannelService(meeting, string(ch))
	h.channels[k] = svc
	return svc
}

func (h *Hub) Get(meeting domain.MeetingID, ch Channel) (core.ChannelService, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	svc, ok := h.channels[hubKey{meeting, ch}]
	return svc, ok
}

// CloseMeeting closes every socket of the meeting and forgets its channels.
func (h *Hub) CloseMeeting(meeting domain.MeetingID) {
	h.mu.Lock()
	var closing []core.ChannelService
	for k, svc := range h.channels {
		if k.meeting == meeting {
			closing = append(closing, svc)
			delete(h.channels, k)
		}
	}
	h.mu.Unlock()
	for _, svc := range closing {
		svc.CloseAll()
	}
}
