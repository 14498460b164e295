package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	assert.Equal(t, KindFatal, KindOf(base))
	assert.Equal(t, KindRecoverable, KindOf(Recoverable("end", base)))
	assert.Equal(t, KindIgnorable, KindOf(fmt.Errorf("wrapped: %w", Ignorable("parse", base))))

	err := Fatal("join", base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "join: boom", err.Error())
}

func TestListeners_NotifyInRegistrationOrder(t *testing.T) {
	var l Listeners[int]
	var got []string
	l.Add(func(v int) { got = append(got, fmt.Sprintf("a%d", v)) })
	id := l.Add(func(v int) { got = append(got, fmt.Sprintf("b%d", v)) })
	l.Add(func(v int) { got = append(got, fmt.Sprintf("c%d", v)) })

	l.Notify(1)
	require.True(t, l.Remove(id))
	assert.False(t, l.Remove(id))
	l.Notify(2)

	assert.Equal(t, []string{"a1", "b1", "c1", "a2", "c2"}, got)
	assert.Equal(t, 2, l.Len())

	l.Reset()
	assert.Equal(t, 0, l.Len())
}

func TestListeners_RemoveDuringNotify(t *testing.T) {
	var l Listeners[string]
	calls := 0
	var id ListenerID
	id = l.Add(func(string) {
		calls++
		l.Remove(id)
	})
	l.Notify("x")
	l.Notify("y")
	assert.Equal(t, 1, calls)
}

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
	closed bool
}

func (f *fakeConn) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func TestChannelService_Broadcast(t *testing.T) {
	ch := NewChannelService("m1", "messaging")
	a, b, slow := &fakeConn{}, &fakeConn{}, &fakeConn{full: true}
	ch.AddMember("a", a)
	ch.AddMember("b", b)
	ch.AddMember("slow", slow)

	res := ch.Broadcast("a", Frame("hi"), false)
	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []domain.AttendeeID{"slow"}, res.Dropped)
	assert.Empty(t, a.frames)
	assert.Len(t, b.frames, 1)

	res = ch.Broadcast("a", Frame("all"), true)
	assert.Equal(t, 2, res.SendTo)
	assert.Len(t, a.frames, 1)
}

func TestChannelService_ReplaceAndRemove(t *testing.T) {
	ch := NewChannelService("m1", "events")
	first, second := &fakeConn{}, &fakeConn{}

	assert.Nil(t, ch.AddMember("a", first))
	assert.Equal(t, SignalConnection(first), ch.AddMember("a", second))
	assert.Equal(t, 1, ch.MemberCount())

	// A stale connection must not evict its replacement.
	assert.False(t, ch.RemoveMember("a", first))
	assert.True(t, ch.RemoveMember("a", second))
	assert.Equal(t, 0, ch.MemberCount())
	assert.ErrorIs(t, ch.Send("a", Frame("x")), ErrNotMember)
}

func TestChannelService_CloseAll(t *testing.T) {
	ch := NewChannelService("m1", "events")
	a := &fakeConn{}
	ch.AddMember("a", a)
	ch.CloseAll()
	assert.True(t, a.closed)
	assert.Empty(t, ch.Members())
}

func TestChannelService_Kick(t *testing.T) {
	ch := NewChannelService("m1", "events")
	a, b := &fakeConn{}, &fakeConn{}
	ch.AddMember("a", a)
	ch.AddMember("b", b)

	assert.True(t, ch.Kick("a"))
	assert.True(t, a.closed)
	assert.False(t, ch.Kick("a"))
	assert.Equal(t, []domain.AttendeeID{"b"}, ch.Members())
	assert.False(t, ch.RemoveMember("a", a))
}
