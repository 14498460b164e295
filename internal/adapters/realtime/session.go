// Package realtime implements the realtime session collaborator over the
// backend's events socket. It carries presence, volume indicators and tile
// lifecycle only; media never flows through it.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/classroom/internal/adapters/messaging"
	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotStarted    = errors.New("session not started")
	ErrStopped       = errors.New("session stopped")
	ErrUnknownDevice = errors.New("unknown device")
)

// Factory builds sessions bound to one events endpoint.
type Factory struct {
	EventsURL   string
	Devices     core.DeviceLister
	OpenTimeout time.Duration
	Socket      []messaging.Option
}

func (f *Factory) NewSession(cfg domain.SessionConfiguration) (core.AudioVideo, error) {
	u, err := url.Parse(f.EventsURL)
	if err != nil {
		return nil, fmt.Errorf("events url: %w", err)
	}
	q := u.Query()
	q.Set("MeetingId", string(cfg.MeetingID))
	q.Set("AttendeeId", string(cfg.Credentials.AttendeeID))
	q.Set("JoinToken", cfg.Credentials.JoinToken)
	u.RawQuery = q.Encode()

	opts := append([]messaging.Option{messaging.WithName("events")}, f.Socket...)
	timeout := f.OpenTimeout
	if timeout <= 0 {
		timeout = messaging.DefaultOpenTimeout
	}
	return NewSession(cfg, messaging.New(u.String(), opts...), f.Devices, timeout), nil
}

// Session implements core.AudioVideo.
type Session struct {
	cfg         domain.SessionConfiguration
	socket      *messaging.Socket
	devices     core.DeviceLister
	openTimeout time.Duration
	logger      zerolog.Logger

	mu        sync.Mutex
	started   bool
	stopped   bool
	presence  []core.PresenceHandler
	volume    map[domain.AttendeeID]core.VolumeIndicatorHandler
	tiles     []core.VideoTileObserver
	shown     map[domain.TileID]bool
	observers []core.DeviceChangeObserver
	chosen    map[domain.DeviceKind]string
	known     map[domain.DeviceKind][]domain.DeviceInfo
}

func NewSession(cfg domain.SessionConfiguration, socket *messaging.Socket, devices core.DeviceLister, openTimeout time.Duration) *Session {
	s := &Session{
		cfg:         cfg,
		socket:      socket,
		devices:     devices,
		openTimeout: openTimeout,
		volume:      make(map[domain.AttendeeID]core.VolumeIndicatorHandler),
		shown:       make(map[domain.TileID]bool),
		chosen:      make(map[domain.DeviceKind]string),
		known:       make(map[domain.DeviceKind][]domain.DeviceInfo),
		logger: log.With().
			Str("module", "adapters.realtime").
			Str("meeting", string(cfg.MeetingID)).
			Str("attendee", string(cfg.Credentials.AttendeeID)).
			Logger(),
	}
	socket.OnMessage(s.handle)
	socket.OnReconnect(s.onReconnect)
	return s
}

func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.socket.Open(ctx, s.openTimeout); err != nil {
		return err
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.logger.Info().Msg("realtime session started")
	return nil
}

func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.presence = nil
	s.volume = make(map[domain.AttendeeID]core.VolumeIndicatorHandler)
	s.tiles = nil
	s.observers = nil
	s.mu.Unlock()

	_ = s.socket.Close()
	s.logger.Info().Msg("realtime session stopped")
}

func (s *Session) AddObserver(o core.VideoTileObserver) {
	s.mu.Lock()
	s.tiles = append(s.tiles, o)
	s.mu.Unlock()
}

func (s *Session) AddDeviceChangeObserver(o core.DeviceChangeObserver) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

func (s *Session) SubscribeToAttendeeIDPresence(fn core.PresenceHandler) {
	s.mu.Lock()
	s.presence = append(s.presence, fn)
	s.mu.Unlock()
}

// SubscribeToVolumeIndicator replaces any earlier handler for id.
func (s *Session) SubscribeToVolumeIndicator(id domain.AttendeeID, fn core.VolumeIndicatorHandler) {
	s.mu.Lock()
	s.volume[id] = fn
	s.mu.Unlock()
}

func (s *Session) UnsubscribeFromVolumeIndicator(id domain.AttendeeID) {
	s.mu.Lock()
	delete(s.volume, id)
	s.mu.Unlock()
}

func (s *Session) MuteLocalAudio(muted bool) error {
	return s.send(domain.Event{Type: domain.EventMute, Muted: &muted})
}

func (s *Session) StartLocalVideoTile() error {
	on := true
	return s.send(domain.Event{Type: domain.EventVideo, On: &on})
}

func (s *Session) StopLocalVideoTile() error {
	off := false
	return s.send(domain.Event{Type: domain.EventVideo, On: &off})
}

func (s *Session) send(ev domain.Event) error {
	s.mu.Lock()
	started, stopped := s.started, s.stopped
	s.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if !started {
		return ErrNotStarted
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.socket.Send(data)
}

func (s *Session) ListAudioInputDevices(ctx context.Context) ([]domain.DeviceInfo, error) {
	return s.list(ctx, domain.AudioInput)
}

func (s *Session) ListAudioOutputDevices(ctx context.Context) ([]domain.DeviceInfo, error) {
	return s.list(ctx, domain.AudioOutput)
}

func (s *Session) ListVideoInputDevices(ctx context.Context) ([]domain.DeviceInfo, error) {
	return s.list(ctx, domain.VideoInput)
}

func (s *Session) ChooseAudioInputDevice(ctx context.Context, id string) error {
	return s.choose(ctx, domain.AudioInput, id)
}

func (s *Session) ChooseAudioOutputDevice(ctx context.Context, id string) error {
	return s.choose(ctx, domain.AudioOutput, id)
}

func (s *Session) ChooseVideoInputDevice(ctx context.Context, id string) error {
	return s.choose(ctx, domain.VideoInput, id)
}

func (s *Session) list(ctx context.Context, kind domain.DeviceKind) ([]domain.DeviceInfo, error) {
	if s.devices == nil {
		return nil, nil
	}
	found, err := s.devices.ListDevices(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	s.mu.Lock()
	s.known[kind] = found
	s.mu.Unlock()
	return found, nil
}

func (s *Session) choose(ctx context.Context, kind domain.DeviceKind, id string) error {
	found, err := s.list(ctx, kind)
	if err != nil {
		return err
	}
	for _, d := range found {
		if d.DeviceID == id {
			s.mu.Lock()
			s.chosen[kind] = id
			s.mu.Unlock()
			s.logger.Debug().Str("kind", kind.String()).Str("device", id).Msg("device chosen")
			return nil
		}
	}
	return fmt.Errorf("%s %q: %w", kind, id, ErrUnknownDevice)
}

// Chosen returns the selected device id of kind, or "".
func (s *Session) Chosen(kind domain.DeviceKind) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chosen[kind]
}

// RefreshDevices re-lists every kind and tells device-change observers
// about the kinds whose lists differ from the last listing.
func (s *Session) RefreshDevices(ctx context.Context) error {
	for _, kind := range []domain.DeviceKind{domain.AudioInput, domain.AudioOutput, domain.VideoInput} {
		s.mu.Lock()
		before := s.known[kind]
		s.mu.Unlock()

		fresh, err := s.list(ctx, kind)
		if err != nil {
			return err
		}
		if sameDevices(before, fresh) {
			continue
		}
		for _, o := range s.deviceObservers() {
			switch kind {
			case domain.AudioInput:
				o.AudioInputsChanged(fresh)
			case domain.AudioOutput:
				o.AudioOutputsChanged(fresh)
			case domain.VideoInput:
				o.VideoInputsChanged(fresh)
			}
		}
	}
	return nil
}

func sameDevices(a, b []domain.DeviceInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *Session) deviceObservers() []core.DeviceChangeObserver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.DeviceChangeObserver(nil), s.observers...)
}

func (s *Session) handle(data []byte) {
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Debug().Err(core.Ignorable("decode event", err)).Msg("event dropped")
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	presence := append([]core.PresenceHandler(nil), s.presence...)
	tiles := append([]core.VideoTileObserver(nil), s.tiles...)
	volume := s.volume[ev.AttendeeID]
	switch ev.Type {
	case domain.EventTile:
		s.shown[ev.TileID] = true
	case domain.EventTileRemoved:
		delete(s.shown, ev.TileID)
	}
	s.mu.Unlock()

	switch ev.Type {
	case domain.EventPresence:
		present := ev.Present != nil && *ev.Present
		for _, fn := range presence {
			fn(ev.AttendeeID, present)
		}
	case domain.EventVolume:
		if volume != nil {
			volume(ev.VolumeIndicator())
		}
	case domain.EventTile:
		state := ev.TileState()
		if state.BoundAttendeeID == s.cfg.Credentials.AttendeeID {
			state.LocalTile = true
		}
		for _, o := range tiles {
			o.VideoTileDidUpdate(state)
		}
	case domain.EventTileRemoved:
		for _, o := range tiles {
			o.VideoTileWasRemoved(ev.TileID)
		}
	default:
		s.logger.Debug().Str("type", string(ev.Type)).Msg("unknown event")
	}
}

// onReconnect removes every known tile. The server resends the active ones
// on connect; tiles removed while disconnected never get a tile_removed.
func (s *Session) onReconnect(attempt int) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	ids := make([]domain.TileID, 0, len(s.shown))
	for id := range s.shown {
		ids = append(ids, id)
	}
	s.shown = make(map[domain.TileID]bool)
	tiles := append([]core.VideoTileObserver(nil), s.tiles...)
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	s.logger.Info().Int("attempt", attempt).Int("tiles", len(ids)).Msg("events reconnected")
	for _, id := range ids {
		for _, o := range tiles {
			o.VideoTileWasRemoved(id)
		}
	}
}
