package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/classroom/internal/adapters/devices"
	"github.com/dkeye/classroom/internal/adapters/messaging"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cfg = domain.SessionConfiguration{
	MeetingID:   "m1",
	MediaRegion: "us-east-1",
	Credentials: domain.Credentials{AttendeeID: "me", JoinToken: "tok"},
}

type tileRecorder struct {
	mu      sync.Mutex
	updated []domain.TileState
	removed []domain.TileID
	done    chan struct{}
}

func (r *tileRecorder) VideoTileDidUpdate(s domain.TileState) {
	r.mu.Lock()
	r.updated = append(r.updated, s)
	r.mu.Unlock()
}

func (r *tileRecorder) VideoTileWasRemoved(id domain.TileID) {
	r.mu.Lock()
	r.removed = append(r.removed, id)
	r.mu.Unlock()
	close(r.done)
}

type deviceRecorder struct {
	audioIn [][]domain.DeviceInfo
}

func (d *deviceRecorder) AudioInputsChanged(f []domain.DeviceInfo) { d.audioIn = append(d.audioIn, f) }
func (d *deviceRecorder) AudioOutputsChanged([]domain.DeviceInfo)  {}
func (d *deviceRecorder) VideoInputsChanged([]domain.DeviceInfo)   {}

func eventsServer(t *testing.T, frames []domain.Event, got chan<- domain.Event) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "m1", r.URL.Query().Get("MeetingId"))
		assert.Equal(t, "me", r.URL.Query().Get("AttendeeId"))
		assert.Equal(t, "tok", r.URL.Query().Get("JoinToken"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			_ = conn.WriteJSON(f)
		}
		for {
			var ev domain.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			got <- ev
		}
	}))
}

func TestSession_DeliversEvents(t *testing.T) {
	vol := 0.4
	frames := []domain.Event{
		domain.PresenceEvent("ann", true),
		{Type: domain.EventVolume, AttendeeID: "ann", Volume: &vol},
		domain.TileEvent(domain.TileState{TileID: 1, BoundAttendeeID: "me", Active: true}),
		domain.TileEvent(domain.TileState{TileID: 2, BoundAttendeeID: "ann", Active: true}),
		{Type: domain.EventTileRemoved, TileID: 2},
	}
	got := make(chan domain.Event, 4)
	srv := eventsServer(t, frames, got)
	defer srv.Close()

	f := &Factory{EventsURL: "ws" + strings.TrimPrefix(srv.URL, "http"), OpenTimeout: time.Second}
	av, err := f.NewSession(cfg)
	require.NoError(t, err)

	var mu sync.Mutex
	var present []domain.AttendeeID
	indicators := make(chan domain.VolumeIndicator, 1)
	av.SubscribeToAttendeeIDPresence(func(id domain.AttendeeID, ok bool) {
		mu.Lock()
		present = append(present, id)
		mu.Unlock()
		av.SubscribeToVolumeIndicator(id, func(ind domain.VolumeIndicator) { indicators <- ind })
	})
	rec := &tileRecorder{done: make(chan struct{})}
	av.AddObserver(rec)

	require.NoError(t, av.Start(context.Background()))
	defer av.Stop()

	select {
	case <-rec.done:
	case <-time.After(3 * time.Second):
		t.Fatal("tile removal not delivered")
	}

	ind := <-indicators
	require.NotNil(t, ind.Volume)
	assert.Equal(t, 0.4, *ind.Volume)

	mu.Lock()
	assert.Equal(t, []domain.AttendeeID{"ann"}, present)
	mu.Unlock()

	rec.mu.Lock()
	require.Len(t, rec.updated, 2)
	assert.True(t, rec.updated[0].LocalTile)
	assert.False(t, rec.updated[1].LocalTile)
	assert.Equal(t, []domain.TileID{2}, rec.removed)
	rec.mu.Unlock()

	require.NoError(t, av.MuteLocalAudio(true))
	ev := <-got
	assert.Equal(t, domain.EventMute, ev.Type)
	require.NotNil(t, ev.Muted)
	assert.True(t, *ev.Muted)

	require.NoError(t, av.StartLocalVideoTile())
	ev = <-got
	assert.Equal(t, domain.EventVideo, ev.Type)
	require.NotNil(t, ev.On)
	assert.True(t, *ev.On)
}

func TestSession_SendBeforeStart(t *testing.T) {
	f := &Factory{EventsURL: "ws://127.0.0.1:1/events"}
	av, err := f.NewSession(cfg)
	require.NoError(t, err)
	assert.ErrorIs(t, av.MuteLocalAudio(true), ErrNotStarted)

	av.Stop()
	assert.ErrorIs(t, av.StartLocalVideoTile(), ErrStopped)
	assert.ErrorIs(t, av.Start(context.Background()), ErrStopped)
}

func TestSession_DropsEventsAfterStop(t *testing.T) {
	f := &Factory{EventsURL: "ws://127.0.0.1:1/events"}
	av, err := f.NewSession(cfg)
	require.NoError(t, err)
	s := av.(*Session)

	called := false
	s.SubscribeToAttendeeIDPresence(func(domain.AttendeeID, bool) { called = true })
	s.Stop()

	data, _ := json.Marshal(domain.PresenceEvent("ann", true))
	s.handle(data)
	s.handle([]byte("{not json"))
	assert.False(t, called)
}

func TestSession_Devices(t *testing.T) {
	lister := devices.NewStatic(
		domain.DeviceInfo{DeviceID: "mic0", Kind: domain.AudioInput, Label: "Built-in"},
		domain.DeviceInfo{DeviceID: "cam0", Kind: domain.VideoInput, Label: "Camera"},
	)
	f := &Factory{EventsURL: "ws://127.0.0.1:1/events", Devices: lister}
	av, err := f.NewSession(cfg)
	require.NoError(t, err)
	s := av.(*Session)
	ctx := context.Background()

	mics, err := s.ListAudioInputDevices(ctx)
	require.NoError(t, err)
	require.Len(t, mics, 1)

	require.NoError(t, s.ChooseAudioInputDevice(ctx, "mic0"))
	assert.Equal(t, "mic0", s.Chosen(domain.AudioInput))
	assert.ErrorIs(t, s.ChooseVideoInputDevice(ctx, "nope"), ErrUnknownDevice)

	rec := &deviceRecorder{}
	s.AddDeviceChangeObserver(rec)
	require.NoError(t, s.RefreshDevices(ctx))
	assert.Empty(t, rec.audioIn)

	lister.Replace(
		domain.DeviceInfo{DeviceID: "mic1", Kind: domain.AudioInput, Label: "Headset"},
		domain.DeviceInfo{DeviceID: "cam0", Kind: domain.VideoInput, Label: "Camera"},
	)
	require.NoError(t, s.RefreshDevices(ctx))
	require.Len(t, rec.audioIn, 1)
	assert.Equal(t, "mic1", rec.audioIn[0][0].DeviceID)
}

type tileChans struct {
	updated chan domain.TileID
	removed chan domain.TileID
}

func (c tileChans) VideoTileDidUpdate(s domain.TileState) { c.updated <- s.TileID }
func (c tileChans) VideoTileWasRemoved(id domain.TileID)  { c.removed <- id }

func TestSession_ReconnectClearsTiles(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	var mu sync.Mutex
	conns := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mu.Lock()
		conns++
		first := conns == 1
		mu.Unlock()
		if first {
			_ = conn.WriteJSON(domain.TileEvent(domain.TileState{TileID: 5, BoundAttendeeID: "ann", Active: true}))
			return
		}
		_ = conn.WriteJSON(domain.TileEvent(domain.TileState{TileID: 6, BoundAttendeeID: "bob", Active: true}))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := &Factory{
		EventsURL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		OpenTimeout: time.Second,
		Socket:      []messaging.Option{messaging.WithReconnect(10*time.Millisecond, 20*time.Millisecond)},
	}
	av, err := f.NewSession(cfg)
	require.NoError(t, err)
	obs := tileChans{updated: make(chan domain.TileID, 4), removed: make(chan domain.TileID, 4)}
	av.AddObserver(obs)
	require.NoError(t, av.Start(context.Background()))
	defer av.Stop()

	next := func(ch chan domain.TileID) domain.TileID {
		select {
		case id := <-ch:
			return id
		case <-time.After(3 * time.Second):
			t.Fatal("tile event not delivered")
			return 0
		}
	}
	assert.Equal(t, domain.TileID(5), next(obs.updated))
	assert.Equal(t, domain.TileID(5), next(obs.removed))
	assert.Equal(t, domain.TileID(6), next(obs.updated))
}
