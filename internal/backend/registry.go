// Package backend is the meeting service: meetings, attendees and the
// per-meeting socket channels behind /join, /messaging and /events.
package backend

import (
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/dkeye/classroom/internal/metrics"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

var (
	ErrMeetingNotFound  = errors.New("meeting not found")
	ErrAttendeeNotFound = errors.New("attendee not found")
	ErrUnauthorized     = errors.New("unauthorized")
)

const DefaultRegion = "us-east-1"

type AttendeeInfo struct {
	ID   domain.AttendeeID `json:"AttendeeId"`
	Name string            `json:"Name"`
}

type MeetingInfo struct {
	Meeting   domain.Meeting
	Attendees int
}

type attendeeEntry struct {
	attendee domain.Attendee
	name     string
}

type meetingEntry struct {
	meeting   domain.Meeting
	attendees map[domain.AttendeeID]*attendeeEntry
	tiles     map[domain.AttendeeID]domain.TileID
	muted     map[domain.AttendeeID]bool
	nextTile  domain.TileID
}

type Registry struct {
	mu      sync.RWMutex
	byTitle map[domain.MeetingTitle]*meetingEntry
	byID    map[domain.MeetingID]*meetingEntry
}

func NewRegistry() *Registry {
	return &Registry{
		byTitle: make(map[domain.MeetingTitle]*meetingEntry),
		byID:    make(map[domain.MeetingID]*meetingEntry),
	}
}

// GetOrCreate returns the open meeting for title, creating it in region
// (DefaultRegion when empty) if needed.
func (r *Registry) GetOrCreate(title domain.MeetingTitle, region string) (domain.Meeting, error) {
	if err := domain.ValidateTitle(title); err != nil {
		return domain.Meeting{}, err
	}
	r.mu.RLock()
	m, ok := r.byTitle[title]
	r.mu.RUnlock()
	if ok {
		return m.meeting, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok = r.byTitle[title]; ok {
		return m.meeting, nil
	}
	if region == "" {
		region = DefaultRegion
	}
	m = &meetingEntry{
		meeting:   domain.Meeting{ID: domain.NewMeetingID(), External: title, MediaRegion: region},
		attendees: make(map[domain.AttendeeID]*attendeeEntry),
		tiles:     make(map[domain.AttendeeID]domain.TileID),
		muted:     make(map[domain.AttendeeID]bool),
	}
	r.byTitle[title] = m
	r.byID[m.meeting.ID] = m
	metrics.ActiveMeetings.Inc()
	log.Info().Str("module", "backend.registry").Str("title", string(title)).Str("meeting", string(m.meeting.ID)).Msg("created meeting")
	return m.meeting, nil
}

func (r *Registry) Get(title domain.MeetingTitle) (domain.Meeting, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byTitle[title]
	if !ok {
		return domain.Meeting{}, false
	}
	return m.meeting, true
}

// End removes the meeting and all of its attendees.
func (r *Registry) End(title domain.MeetingTitle) (domain.Meeting, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byTitle[title]
	if !ok {
		return domain.Meeting{}, false
	}
	delete(r.byTitle, title)
	delete(r.byID, m.meeting.ID)
	metrics.ActiveMeetings.Dec()
	log.Info().Str("module", "backend.registry").Str("title", string(title)).Str("meeting", string(m.meeting.ID)).Msg("ended meeting")
	return m.meeting, true
}

// AddAttendee creates an attendee with a fresh join token.
func (r *Registry) AddAttendee(title domain.MeetingTitle, name string) (domain.Attendee, error) {
	if err := domain.ValidateName(name); err != nil {
		return domain.Attendee{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byTitle[title]
	if !ok {
		return domain.Attendee{}, ErrMeetingNotFound
	}
	a := domain.Attendee{
		ID:             domain.NewAttendeeID(),
		ExternalUserID: name,
		JoinToken:      ulid.Make().String(),
	}
	m.attendees[a.ID] = &attendeeEntry{attendee: a, name: name}
	metrics.AttendeesJoinedTotal.Inc()
	log.Info().Str("module", "backend.registry").Str("meeting", string(m.meeting.ID)).Str("attendee", string(a.ID)).Str("name", name).Msg("added attendee")
	return a, nil
}

// Attendee returns the attendee of an open meeting.
func (r *Registry) Attendee(title domain.MeetingTitle, id domain.AttendeeID) (domain.Attendee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byTitle[title]
	if !ok {
		return domain.Attendee{}, ErrMeetingNotFound
	}
	a, ok := m.attendees[id.Base()]
	if !ok {
		return domain.Attendee{}, ErrAttendeeNotFound
	}
	return a.attendee, nil
}

func (r *Registry) AttendeeInfo(title domain.MeetingTitle, id domain.AttendeeID) (AttendeeInfo, error) {
	a, err := r.Attendee(title, id)
	if err != nil {
		return AttendeeInfo{}, err
	}
	return AttendeeInfo{ID: id, Name: a.ExternalUserID}, nil
}

// Authorize checks socket credentials against the registry.
func (r *Registry) Authorize(meetingID domain.MeetingID, attendeeID domain.AttendeeID, token string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[meetingID]
	if !ok {
		return ErrMeetingNotFound
	}
	a, ok := m.attendees[attendeeID]
	if !ok || token == "" || a.attendee.JoinToken != token {
		return ErrUnauthorized
	}
	return nil
}

// StartVideo assigns the attendee a tile id, reusing an active one.
func (r *Registry) StartVideo(meetingID domain.MeetingID, attendeeID domain.AttendeeID) (domain.TileState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[meetingID]
	if !ok {
		return domain.TileState{}, ErrMeetingNotFound
	}
	id, ok := m.tiles[attendeeID]
	if !ok {
		m.nextTile++
		id = m.nextTile
		m.tiles[attendeeID] = id
	}
	return domain.TileState{TileID: id, BoundAttendeeID: attendeeID, Active: true}, nil
}

// StopVideo frees the attendee's tile; ok is false if it had none.
func (r *Registry) StopVideo(meetingID domain.MeetingID, attendeeID domain.AttendeeID) (domain.TileID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[meetingID]
	if !ok {
		return 0, false
	}
	id, ok := m.tiles[attendeeID]
	if ok {
		delete(m.tiles, attendeeID)
	}
	return id, ok
}

// ActiveTiles lists the meeting's tiles ordered by tile id.
func (r *Registry) ActiveTiles(meetingID domain.MeetingID) []domain.TileState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[meetingID]
	if !ok {
		return nil
	}
	out := make([]domain.TileState, 0, len(m.tiles))
	for attendee, id := range m.tiles {
		out = append(out, domain.TileState{TileID: id, BoundAttendeeID: attendee, Active: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TileID < out[j].TileID })
	return out
}

func (r *Registry) SetMuted(meetingID domain.MeetingID, attendeeID domain.AttendeeID, muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[meetingID]; ok {
		m.muted[attendeeID] = muted
	}
}

// Muted reports the last mute state an attendee published, if any.
func (r *Registry) Muted(meetingID domain.MeetingID, attendeeID domain.AttendeeID) (bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[meetingID]
	if !ok {
		return false, false
	}
	muted, ok := m.muted[attendeeID]
	return muted, ok
}

func (r *Registry) List() []MeetingInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MeetingInfo, 0, len(r.byTitle))
	for _, m := range r.byTitle {
		out = append(out, MeetingInfo{Meeting: m.meeting, Attendees: len(m.attendees)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meeting.External < out[j].Meeting.External })
	return out
}
