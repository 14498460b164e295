package backend

import (
	"encoding/json"

	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/dkeye/classroom/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Orchestrator ties the registry to the socket hub.
type Orchestrator struct {
	Registry *Registry
	Hub      *Hub
	Policy   Policy
	// Limiter bounds chat frames per attendee; nil means unlimited.
	Limiter *RateLimiter
}

func NewOrchestrator(policy Policy, limiter *RateLimiter) *Orchestrator {
	return &Orchestrator{
		Registry: NewRegistry(),
		Hub:      NewHub(),
		Policy:   policy,
		Limiter:  limiter,
	}
}

// Join opens (or reuses) the meeting for title and adds a new attendee.
func (o *Orchestrator) Join(title domain.MeetingTitle, name, region string) (domain.JoinInfo, error) {
	meeting, err := o.Registry.GetOrCreate(title, region)
	if err != nil {
		return domain.JoinInfo{}, err
	}
	attendee, err := o.Registry.AddAttendee(title, name)
	if err != nil {
		return domain.JoinInfo{}, err
	}
	return domain.NewJoinInfo(meeting, attendee), nil
}

// Rejoin returns the join info of an attendee that already joined title.
func (o *Orchestrator) Rejoin(title domain.MeetingTitle, id domain.AttendeeID) (domain.JoinInfo, bool) {
	meeting, ok := o.Registry.Get(title)
	if !ok {
		return domain.JoinInfo{}, false
	}
	attendee, err := o.Registry.Attendee(title, id)
	if err != nil {
		return domain.JoinInfo{}, false
	}
	return domain.NewJoinInfo(meeting, attendee), true
}

// End removes the meeting and closes every socket bound to it.
func (o *Orchestrator) End(title domain.MeetingTitle) bool {
	meeting, ok := o.Registry.End(title)
	if !ok {
		return false
	}
	o.Hub.CloseMeeting(meeting.ID)
	return true
}

// Connect binds conn as the attendee's socket on ch, closing any socket
// it replaces. Event sockets get the meeting state and announce presence.
func (o *Orchestrator) Connect(ch Channel, meetingID domain.MeetingID, id domain.AttendeeID, conn core.SignalConnection) {
	svc := o.Hub.GetOrCreate(meetingID, ch)
	if old := svc.AddMember(id, conn); old != nil && old != conn {
		old.Close()
	}
	if ch == ChannelEvents {
		o.announce(svc, meetingID, id, conn)
	}
}

// Disconnect unbinds conn. A replaced socket leaves no trace.
func (o *Orchestrator) Disconnect(ch Channel, meetingID domain.MeetingID, id domain.AttendeeID, conn core.SignalConnection) {
	svc, ok := o.Hub.Get(meetingID, ch)
	if !ok || !svc.RemoveMember(id, conn) {
		return
	}
	switch ch {
	case ChannelEvents:
		o.depart(meetingID, id)
	case ChannelMessaging:
		if o.Limiter != nil {
			o.Limiter.Forget(id)
		}
	}
}

// OnMessaging relays a sendmessage action's data to the whole meeting,
// sender included.
func (o *Orchestrator) OnMessaging(meetingID domain.MeetingID, from domain.AttendeeID, data []byte) {
	var action domain.SendMessageAction
	if err := json.Unmarshal(data, &action); err != nil {
		log.Warn().Err(err).Str("module", "backend.orchestrator").Str("attendee", string(from)).Msg("bad messaging frame")
		return
	}
	if action.Message != domain.ActionSendMessage {
		log.Debug().Str("module", "backend.orchestrator").Str("action", action.Message).Msg("ignored messaging action")
		return
	}
	if o.Limiter != nil && !o.Limiter.Allow(from) {
		log.Warn().Str("module", "backend.orchestrator").Str("attendee", string(from)).Msg("rate limited")
		metrics.FramesDroppedTotal.WithLabelValues(string(ChannelMessaging)).Inc()
		return
	}
	o.broadcast(ChannelMessaging, meetingID, from, core.Frame(action.Data), true)
}

// OnEvent handles mute and video frames from an events socket.
func (o *Orchestrator) OnEvent(meetingID domain.MeetingID, from domain.AttendeeID, data []byte) {
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Warn().Err(err).Str("module", "backend.orchestrator").Str("attendee", string(from)).Msg("bad event frame")
		return
	}

	switch ev.Type {
	case domain.EventMute:
		if ev.Muted == nil {
			return
		}
		o.Registry.SetMuted(meetingID, from, *ev.Muted)
		o.broadcastEvent(meetingID, from, volumeEvent(from, *ev.Muted))
	case domain.EventVideo:
		if ev.On != nil && *ev.On {
			tile, err := o.Registry.StartVideo(meetingID, from)
			if err != nil {
				return
			}
			o.broadcastEvent(meetingID, from, domain.TileEvent(tile))
			return
		}
		if tileID, ok := o.Registry.StopVideo(meetingID, from); ok {
			o.broadcastEvent(meetingID, from, domain.Event{Type: domain.EventTileRemoved, TileID: tileID})
		}
	default:
		log.Debug().Str("module", "backend.orchestrator").Str("type", string(ev.Type)).Msg("unknown event")
	}
}

func (o *Orchestrator) announce(svc core.ChannelService, meetingID domain.MeetingID, id domain.AttendeeID, conn core.SignalConnection) {
	for _, other := range svc.Members() {
		if other == id {
			continue
		}
		sendEvent(conn, domain.PresenceEvent(other, true))
		sendEvent(conn, o.baselineVolume(meetingID, other))
	}
	for _, tile := range o.Registry.ActiveTiles(meetingID) {
		sendEvent(conn, domain.TileEvent(tile))
	}
	o.broadcastEvent(meetingID, id, domain.PresenceEvent(id, true))
	o.broadcastEvent(meetingID, id, o.baselineVolume(meetingID, id))
}

// baselineVolume is the indicator a client needs to list an attendee right
// after presence; unrecorded mute state reads as unmuted.
func (o *Orchestrator) baselineVolume(meetingID domain.MeetingID, id domain.AttendeeID) domain.Event {
	muted, _ := o.Registry.Muted(meetingID, id)
	return volumeEvent(id, muted)
}

func (o *Orchestrator) depart(meetingID domain.MeetingID, id domain.AttendeeID) {
	if tileID, ok := o.Registry.StopVideo(meetingID, id); ok {
		o.broadcastEvent(meetingID, id, domain.Event{Type: domain.EventTileRemoved, TileID: tileID})
	}
	o.broadcastEvent(meetingID, id, domain.PresenceEvent(id, false))
}

func (o *Orchestrator) broadcastEvent(meetingID domain.MeetingID, from domain.AttendeeID, ev domain.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "backend.orchestrator").Msg("marshal event")
		return
	}
	o.broadcast(ChannelEvents, meetingID, from, b, true)
}

func (o *Orchestrator) broadcast(ch Channel, meetingID domain.MeetingID, from domain.AttendeeID, data core.Frame, includeSelf bool) {
	svc, ok := o.Hub.Get(meetingID, ch)
	if !ok {
		return
	}
	res := svc.Broadcast(from, data, includeSelf)
	metrics.FramesRelayedTotal.WithLabelValues(string(ch)).Add(float64(res.SendTo))
	if len(res.Dropped) == 0 {
		return
	}
	metrics.FramesDroppedTotal.WithLabelValues(string(ch)).Add(float64(len(res.Dropped)))
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(ch, slow) {
		case KickMember:
			log.Warn().Str("module", "backend.orchestrator").Str("channel", string(ch)).Str("attendee", string(slow)).Msg("kicking slow socket")
			if svc.Kick(slow) && ch == ChannelEvents {
				o.depart(meetingID, slow)
			}
		case DropFrame, NoAction:
		}
	}
}

func volumeEvent(id domain.AttendeeID, muted bool) domain.Event {
	signal := 1.0
	return domain.Event{Type: domain.EventVolume, AttendeeID: id, Muted: &muted, SignalStrength: &signal}
}

func sendEvent(conn core.SignalConnection, ev domain.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = conn.TrySend(b)
}
