package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/classroom/internal/adapters/messaging"
	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const nameLookupTimeout = 5 * time.Second

var ErrNoSession = errors.New("no meeting session")

// Signaling is the meeting backend as seen by the facade.
type Signaling interface {
	Join(ctx context.Context, title domain.MeetingTitle, name, region string) (*domain.JoinInfo, error)
	AttendeeName(ctx context.Context, title domain.MeetingTitle, id domain.AttendeeID) (string, error)
	End(ctx context.Context, title domain.MeetingTitle) error
}

type Params struct {
	Signaling    Signaling
	Sessions     core.SessionFactory
	MessagingURL string
	OpenTimeout  time.Duration
	Socket       []messaging.Option
	// Now stamps received messages; defaults to time.Now.
	Now func() time.Time
}

// DeviceState is what device subscribers receive.
type DeviceState struct {
	Lists   domain.DeviceLists
	Current domain.CurrentDevices
}

// Facade is one call: the realtime session plus the roster, devices and
// messaging built around it. All methods are safe for concurrent use.
type Facade struct {
	signaling    Signaling
	sessions     core.SessionFactory
	messagingURL string
	openTimeout  time.Duration
	socketOpts   []messaging.Option
	now          func() time.Time
	logger       zerolog.Logger

	// rosterMu is held from a roster mutation through its fan-out, so
	// subscribers get one snapshot at a time, in mutation order. Taken
	// before mu.
	rosterMu sync.Mutex

	mu      sync.Mutex
	title   domain.MeetingTitle
	name    string
	region  string
	cfg     *domain.SessionConfiguration
	av      core.AudioVideo
	socket  *messaging.Socket
	lists   domain.DeviceLists
	current domain.CurrentDevices
	roster  domain.Roster
	naming  map[domain.AttendeeID]bool
	tiles   []core.VideoTileObserver

	deviceListeners  core.Listeners[DeviceState]
	rosterListeners  core.Listeners[domain.Roster]
	messageListeners core.Listeners[domain.Message]
}

func NewFacade(p Params) *Facade {
	f := &Facade{
		signaling:    p.Signaling,
		sessions:     p.Sessions,
		messagingURL: p.MessagingURL,
		openTimeout:  p.OpenTimeout,
		socketOpts:   p.Socket,
		now:          p.Now,
		roster:       domain.Roster{},
		naming:       make(map[domain.AttendeeID]bool),
		logger:       log.With().Str("module", "app.facade").Logger(),
	}
	if f.openTimeout <= 0 {
		f.openTimeout = messaging.DefaultOpenTimeout
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

// CreateRoom joins (or creates) the meeting on the backend and initializes
// the realtime session for it.
func (f *Facade) CreateRoom(ctx context.Context, title domain.MeetingTitle, name, region string) error {
	info, err := f.signaling.Join(ctx, title, name, region)
	if err != nil {
		return core.Fatal("create room", err)
	}
	if err := f.InitializeMeetingSession(ctx, domain.NewSessionConfiguration(*info)); err != nil {
		return err
	}

	f.mu.Lock()
	f.title, f.name, f.region = title, name, region
	f.mu.Unlock()
	f.logger.Info().
		Str("meeting", string(info.Meeting.Meeting.ID)).
		Str("attendee", string(info.Attendee.Attendee.ID)).
		Msg("room created")
	return nil
}

func (f *Facade) InitializeMeetingSession(ctx context.Context, cfg domain.SessionConfiguration) error {
	av, err := f.sessions.NewSession(cfg)
	if err != nil {
		return core.Fatal("initialize session", err)
	}

	var lists domain.DeviceLists
	if lists.AudioInputs, err = toDevices(av.ListAudioInputDevices(ctx)); err != nil {
		return core.Fatal("list audio inputs", err)
	}
	if lists.AudioOutputs, err = toDevices(av.ListAudioOutputDevices(ctx)); err != nil {
		return core.Fatal("list audio outputs", err)
	}
	if lists.VideoInputs, err = toDevices(av.ListVideoInputDevices(ctx)); err != nil {
		return core.Fatal("list video inputs", err)
	}

	f.mu.Lock()
	c := cfg
	f.cfg = &c
	f.av = av
	f.lists = lists
	tiles := append([]core.VideoTileObserver(nil), f.tiles...)
	state := f.deviceStateLocked()
	f.mu.Unlock()

	f.deviceListeners.Notify(state)
	av.AddDeviceChangeObserver(f)
	for _, o := range tiles {
		av.AddObserver(o)
	}
	av.SubscribeToAttendeeIDPresence(f.onPresence)
	return nil
}

// JoinRoom selects the first device of each kind and starts the session.
func (f *Facade) JoinRoom(ctx context.Context) error {
	f.mu.Lock()
	av, lists := f.av, f.lists
	f.mu.Unlock()
	if av == nil {
		return core.Fatal("join room", ErrNoSession)
	}

	var current domain.CurrentDevices
	if d, ok := first(lists.AudioInputs); ok {
		if err := av.ChooseAudioInputDevice(ctx, d.Value); err != nil {
			return core.Fatal("choose audio input", err)
		}
		current.AudioInput = d
	}
	if d, ok := first(lists.AudioOutputs); ok {
		if err := av.ChooseAudioOutputDevice(ctx, d.Value); err != nil {
			return core.Fatal("choose audio output", err)
		}
		current.AudioOutput = d
	}
	if d, ok := first(lists.VideoInputs); ok {
		if err := av.ChooseVideoInputDevice(ctx, d.Value); err != nil {
			return core.Fatal("choose video input", err)
		}
		current.VideoInput = d
	}

	f.mu.Lock()
	f.current = current
	state := f.deviceStateLocked()
	f.mu.Unlock()
	f.deviceListeners.Notify(state)

	if err := av.Start(ctx); err != nil {
		return core.Fatal("start session", err)
	}
	return nil
}

// ChooseDevice switches the selected device of kind to the listed device id.
func (f *Facade) ChooseDevice(ctx context.Context, kind domain.DeviceKind, deviceID string) error {
	f.mu.Lock()
	av := f.av
	f.mu.Unlock()
	if av == nil {
		return ErrNoSession
	}

	var err error
	switch kind {
	case domain.AudioInput:
		err = av.ChooseAudioInputDevice(ctx, deviceID)
	case domain.AudioOutput:
		err = av.ChooseAudioOutputDevice(ctx, deviceID)
	case domain.VideoInput:
		err = av.ChooseVideoInputDevice(ctx, deviceID)
	default:
		err = fmt.Errorf("device kind %d", kind)
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	d := lookupDevice(f.listOfLocked(kind), deviceID)
	switch kind {
	case domain.AudioInput:
		f.current.AudioInput = d
	case domain.AudioOutput:
		f.current.AudioOutput = d
	case domain.VideoInput:
		f.current.VideoInput = d
	}
	state := f.deviceStateLocked()
	f.mu.Unlock()
	f.deviceListeners.Notify(state)
	return nil
}

// DeviceRefresher is implemented by sessions that can re-enumerate host
// devices and report changes through their device-change observers.
type DeviceRefresher interface {
	RefreshDevices(ctx context.Context) error
}

// RefreshDevices asks the session to re-list devices. Sessions that cannot
// do so are left alone.
func (f *Facade) RefreshDevices(ctx context.Context) error {
	f.mu.Lock()
	av := f.av
	f.mu.Unlock()
	if r, ok := av.(DeviceRefresher); ok {
		return r.RefreshDevices(ctx)
	}
	return nil
}

// JoinRoomMessaging opens the messaging socket for the current session.
func (f *Facade) JoinRoomMessaging(ctx context.Context) error {
	f.mu.Lock()
	cfg := f.cfg
	f.mu.Unlock()
	if cfg == nil {
		return core.Fatal("join messaging", ErrNoSession)
	}

	u, err := url.Parse(f.messagingURL)
	if err != nil {
		return core.Fatal("join messaging", err)
	}
	q := u.Query()
	q.Set("MeetingId", string(cfg.MeetingID))
	q.Set("AttendeeId", string(cfg.Credentials.AttendeeID))
	q.Set("JoinToken", cfg.Credentials.JoinToken)
	u.RawQuery = q.Encode()

	socket := messaging.New(u.String(), f.socketOpts...)
	socket.OnMessage(f.onMessage)
	if err := socket.Open(ctx, f.openTimeout); err != nil {
		return core.Fatal("join messaging", err)
	}

	f.mu.Lock()
	old := f.socket
	f.socket = socket
	f.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// SendMessage relays {type, payload} to everyone in the meeting. It is a
// no-op before JoinRoomMessaging.
func (f *Facade) SendMessage(msgType string, payload any) error {
	f.mu.Lock()
	socket := f.socket
	f.mu.Unlock()
	if socket == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	data, err := json.Marshal(domain.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return err
	}
	frame, err := json.Marshal(domain.SendMessageAction{Message: domain.ActionSendMessage, Data: string(data)})
	if err != nil {
		return err
	}
	return socket.Send(frame)
}

// LeaveRoom stops the session and resets all call state. With end set the
// meeting is ended for everyone; that call is best-effort.
func (f *Facade) LeaveRoom(ctx context.Context, end bool) {
	f.mu.Lock()
	av, title, socket := f.av, f.title, f.socket
	f.mu.Unlock()

	if av != nil {
		av.Stop()
	}
	if end && title != "" {
		if err := f.signaling.End(ctx, title); err != nil {
			f.logger.Warn().Err(core.Recoverable("end meeting", err)).Str("title", string(title)).Msg("end failed")
		}
	}

	f.mu.Lock()
	f.av = nil
	f.cfg = nil
	f.socket = nil
	f.roster = domain.Roster{}
	f.naming = make(map[domain.AttendeeID]bool)
	f.title, f.name, f.region = "", "", ""
	f.mu.Unlock()

	f.rosterListeners.Reset()
	f.messageListeners.Reset()
	if socket != nil {
		_ = socket.Close()
	}
	f.logger.Info().Bool("end", end).Msg("left room")
}

func (f *Facade) LeaveRoomMessaging() {
	f.mu.Lock()
	socket := f.socket
	f.socket = nil
	f.mu.Unlock()
	if socket != nil {
		_ = socket.Close()
	}
}

// Mute toggles the local microphone.
func (f *Facade) Mute(muted bool) error {
	av, err := f.session()
	if err != nil {
		return err
	}
	return av.MuteLocalAudio(muted)
}

// Video starts or stops the local video tile.
func (f *Facade) Video(on bool) error {
	av, err := f.session()
	if err != nil {
		return err
	}
	if on {
		return av.StartLocalVideoTile()
	}
	return av.StopLocalVideoTile()
}

// AddVideoTileObserver registers o with the current and every later session.
func (f *Facade) AddVideoTileObserver(o core.VideoTileObserver) {
	f.mu.Lock()
	f.tiles = append(f.tiles, o)
	av := f.av
	f.mu.Unlock()
	if av != nil {
		av.AddObserver(o)
	}
}

func (f *Facade) SubscribeToDeviceUpdates(fn func(DeviceState)) core.ListenerID {
	return f.deviceListeners.Add(fn)
}

func (f *Facade) UnsubscribeFromDeviceUpdates(id core.ListenerID) { f.deviceListeners.Remove(id) }

func (f *Facade) SubscribeToRosterUpdates(fn func(domain.Roster)) core.ListenerID {
	return f.rosterListeners.Add(fn)
}

func (f *Facade) UnsubscribeFromRosterUpdates(id core.ListenerID) { f.rosterListeners.Remove(id) }

func (f *Facade) SubscribeToMessages(fn func(domain.Message)) core.ListenerID {
	return f.messageListeners.Add(fn)
}

func (f *Facade) UnsubscribeFromMessages(id core.ListenerID) { f.messageListeners.Remove(id) }

// AudioInputsChanged and friends implement core.DeviceChangeObserver.
func (f *Facade) AudioInputsChanged(fresh []domain.DeviceInfo) {
	f.replaceDevices(func(l *domain.DeviceLists) { l.AudioInputs = devicesOf(fresh) })
}

func (f *Facade) AudioOutputsChanged(fresh []domain.DeviceInfo) {
	f.replaceDevices(func(l *domain.DeviceLists) { l.AudioOutputs = devicesOf(fresh) })
}

func (f *Facade) VideoInputsChanged(fresh []domain.DeviceInfo) {
	f.replaceDevices(func(l *domain.DeviceLists) { l.VideoInputs = devicesOf(fresh) })
}

func (f *Facade) replaceDevices(apply func(*domain.DeviceLists)) {
	f.mu.Lock()
	apply(&f.lists)
	state := f.deviceStateLocked()
	f.mu.Unlock()
	f.deviceListeners.Notify(state)
}

func (f *Facade) Devices() domain.DeviceLists {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deviceStateLocked().Lists
}

func (f *Facade) CurrentDevices() domain.CurrentDevices {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Facade) Roster() domain.Roster {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roster.Clone()
}

// Configuration returns the active session configuration, if any.
func (f *Facade) Configuration() (domain.SessionConfiguration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg == nil {
		return domain.SessionConfiguration{}, false
	}
	return *f.cfg, true
}

func (f *Facade) Title() domain.MeetingTitle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title
}

func (f *Facade) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

func (f *Facade) Region() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.region
}

func (f *Facade) session() (core.AudioVideo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.av == nil {
		return nil, ErrNoSession
	}
	return f.av, nil
}

func (f *Facade) onPresence(id domain.AttendeeID, present bool) {
	f.mu.Lock()
	av := f.av
	f.mu.Unlock()
	if av == nil {
		return
	}

	if present {
		av.SubscribeToVolumeIndicator(id, f.onVolume)
		return
	}

	av.UnsubscribeFromVolumeIndicator(id)
	f.rosterMu.Lock()
	defer f.rosterMu.Unlock()
	f.mu.Lock()
	_, had := f.roster[id]
	delete(f.roster, id)
	snap := f.roster.Clone()
	f.mu.Unlock()
	if had {
		f.logger.Debug().Str("attendee", string(id)).Msg("attendee left")
	}
	f.rosterListeners.Notify(snap)
}

func (f *Facade) onVolume(ind domain.VolumeIndicator) {
	id := ind.AttendeeID
	if base := id.Base(); base != id {
		f.mu.Lock()
		self := f.cfg != nil && f.cfg.Credentials.AttendeeID == base
		f.mu.Unlock()
		if !self {
			f.logger.Debug().Str("attendee", string(id)).Str("base", string(base)).Msg("derived identity")
		}
		return
	}

	f.rosterMu.Lock()
	defer f.rosterMu.Unlock()
	f.mu.Lock()
	entry := f.roster[id].Merge(ind)
	f.roster[id] = entry
	lookup := entry.Name == "" && !f.naming[id]
	if lookup {
		f.naming[id] = true
	}
	title := f.title
	snap := f.roster.Clone()
	f.mu.Unlock()

	if lookup {
		go f.lookupName(title, id)
	}
	f.rosterListeners.Notify(snap)
}

func (f *Facade) lookupName(title domain.MeetingTitle, id domain.AttendeeID) {
	ctx, cancel := context.WithTimeout(context.Background(), nameLookupTimeout)
	defer cancel()
	name, err := f.signaling.AttendeeName(ctx, title, id)

	f.rosterMu.Lock()
	defer f.rosterMu.Unlock()
	f.mu.Lock()
	delete(f.naming, id)
	if err != nil {
		f.mu.Unlock()
		f.logger.Warn().Err(core.Recoverable("attendee name", err)).Str("attendee", string(id)).Msg("name lookup failed")
		return
	}
	entry, ok := f.roster[id]
	if !ok {
		f.mu.Unlock()
		return
	}
	entry.Name = name
	f.roster[id] = entry
	snap := f.roster.Clone()
	f.mu.Unlock()
	f.rosterListeners.Notify(snap)
}

func (f *Facade) onMessage(data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.Debug().Err(core.Ignorable("decode message", err)).Msg("message dropped")
		return
	}
	var from struct {
		AttendeeID domain.AttendeeID `json:"attendeeId"`
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &from); err != nil {
			f.logger.Debug().Err(core.Ignorable("decode payload", err)).Msg("message dropped")
			return
		}
	}

	f.mu.Lock()
	name := f.roster[from.AttendeeID].Name
	f.mu.Unlock()

	f.messageListeners.Notify(domain.Message{
		Type:        env.Type,
		Payload:     env.Payload,
		TimestampMs: f.now().UnixMilli(),
		Name:        name,
	})
}

func (f *Facade) deviceStateLocked() DeviceState {
	return DeviceState{
		Lists: domain.DeviceLists{
			AudioInputs:  append([]domain.Device(nil), f.lists.AudioInputs...),
			AudioOutputs: append([]domain.Device(nil), f.lists.AudioOutputs...),
			VideoInputs:  append([]domain.Device(nil), f.lists.VideoInputs...),
		},
		Current: f.current,
	}
}

func (f *Facade) listOfLocked(kind domain.DeviceKind) []domain.Device {
	switch kind {
	case domain.AudioInput:
		return f.lists.AudioInputs
	case domain.AudioOutput:
		return f.lists.AudioOutputs
	case domain.VideoInput:
		return f.lists.VideoInputs
	}
	return nil
}

func toDevices(infos []domain.DeviceInfo, err error) ([]domain.Device, error) {
	if err != nil {
		return nil, err
	}
	return devicesOf(infos), nil
}

func devicesOf(infos []domain.DeviceInfo) []domain.Device {
	out := make([]domain.Device, 0, len(infos))
	for _, d := range infos {
		out = append(out, d.Device())
	}
	return out
}

func first(devices []domain.Device) (domain.Device, bool) {
	if len(devices) == 0 || devices[0].Value == "" {
		return domain.Device{}, false
	}
	return devices[0], true
}

func lookupDevice(devices []domain.Device, id string) domain.Device {
	for _, d := range devices {
		if d.Value == id {
			return d
		}
	}
	return domain.Device{Label: id, Value: id}
}
