package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/dkeye/classroom/internal/tiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCall struct {
	muted    *bool
	video    *bool
	sent     []any
	ended    *bool
	chosen   map[domain.DeviceKind]string
	roster   domain.Roster
	noConfig bool
}

func (f *fakeCall) Mute(m bool) error   { f.muted = &m; return nil }
func (f *fakeCall) Video(on bool) error { f.video = &on; return nil }
func (f *fakeCall) SendMessage(_ string, p any) error {
	f.sent = append(f.sent, p)
	return nil
}
func (f *fakeCall) Roster() domain.Roster { return f.roster }
func (f *fakeCall) Devices() domain.DeviceLists {
	return domain.DeviceLists{AudioInputs: []domain.Device{{Label: "Built-in", Value: "mic0"}}}
}
func (f *fakeCall) CurrentDevices() domain.CurrentDevices {
	return domain.CurrentDevices{AudioInput: domain.Device{Label: "Built-in", Value: "mic0"}}
}
func (f *fakeCall) ChooseDevice(_ context.Context, k domain.DeviceKind, id string) error {
	if f.chosen == nil {
		f.chosen = map[domain.DeviceKind]string{}
	}
	f.chosen[k] = id
	return nil
}
func (f *fakeCall) Configuration() (domain.SessionConfiguration, bool) {
	if f.noConfig {
		return domain.SessionConfiguration{}, false
	}
	return domain.SessionConfiguration{Credentials: domain.Credentials{AttendeeID: "me"}}, true
}
func (f *fakeCall) LeaveRoom(_ context.Context, end bool) { f.ended = &end }

func newREPL(c *fakeCall) (*repl, *bytes.Buffer) {
	out := &bytes.Buffer{}
	g := tiles.NewVideoGroup(nil)
	g.VideoTileDidUpdate(domain.TileState{TileID: 7, BoundAttendeeID: "ann", Active: true})
	return &repl{call: c, layout: g.Layout, out: out}, out
}

func TestREPL_Commands(t *testing.T) {
	ctx := context.Background()
	c := &fakeCall{}
	r, out := newREPL(c)

	done, err := r.exec(ctx, "/mute")
	require.NoError(t, err)
	assert.False(t, done)
	assert.True(t, *c.muted)

	_, err = r.exec(ctx, "/video on")
	require.NoError(t, err)
	assert.True(t, *c.video)
	_, err = r.exec(ctx, "/video sideways")
	assert.Error(t, err)

	_, err = r.exec(ctx, `/device camera "usb cam"`)
	require.NoError(t, err)
	assert.Equal(t, "usb cam", c.chosen[domain.VideoInput])
	_, err = r.exec(ctx, "/device toaster x")
	assert.Error(t, err)

	_, err = r.exec(ctx, "/layout")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "slot  0: tile 7 (ann)")

	_, err = r.exec(ctx, "/devices")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "* Built-in (mic0)")

	_, err = r.exec(ctx, "/bogus")
	assert.Error(t, err)

	done, err = r.exec(ctx, "/end")
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, *c.ended)
}

func TestREPL_ChatSendsPayloadWithAttendee(t *testing.T) {
	c := &fakeCall{}
	r, _ := newREPL(c)
	_, err := r.exec(context.Background(), "hello class")
	require.NoError(t, err)
	require.Len(t, c.sent, 1)

	b, _ := json.Marshal(c.sent[0])
	assert.JSONEq(t, `{"attendeeId":"me","text":"hello class"}`, string(b))

	_, err = (&repl{call: &fakeCall{noConfig: true}}).exec(context.Background(), "hi")
	assert.Error(t, err)
}

func TestREPL_Roster(t *testing.T) {
	vol := 40
	c := &fakeCall{roster: domain.Roster{"a": {Name: "Ann", Volume: &vol}, "b": {}}}
	r, out := newREPL(c)
	_, err := r.exec(context.Background(), "/roster")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Ann")
	assert.Contains(t, out.String(), "vol 40%")
	assert.Contains(t, out.String(), "unknown")
}

func TestChatText(t *testing.T) {
	text, ok := chatText(domain.Message{Type: "chat", Payload: json.RawMessage(`{"text":"hi"}`)})
	assert.True(t, ok)
	assert.Equal(t, "hi", text)

	_, ok = chatText(domain.Message{Type: "poll", Payload: json.RawMessage(`{}`)})
	assert.False(t, ok)
}
