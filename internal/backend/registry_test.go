package backend

import (
	"strings"
	"testing"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreateIsStablePerTitle(t *testing.T) {
	r := NewRegistry()
	m1, err := r.GetOrCreate("math", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultRegion, m1.MediaRegion)

	m2, err := r.GetOrCreate("math", "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, m1, m2)

	_, err = r.GetOrCreate("", "")
	assert.ErrorIs(t, err, domain.ErrTitleEmpty)
}

func TestRegistry_Attendees(t *testing.T) {
	r := NewRegistry()
	m, _ := r.GetOrCreate("math", "us-east-1")

	a, err := r.AddAttendee("math", "Ann")
	require.NoError(t, err)
	_, err = ulid.ParseStrict(a.JoinToken)
	assert.NoError(t, err)

	info, err := r.AttendeeInfo("math", a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", info.Name)

	content := a.ID.WithModality(domain.ModalityContent)
	info, err = r.AttendeeInfo("math", content)
	require.NoError(t, err)
	assert.Equal(t, content, info.ID)
	assert.Equal(t, "Ann", info.Name)

	assert.NoError(t, r.Authorize(m.ID, a.ID, a.JoinToken))
	assert.ErrorIs(t, r.Authorize(m.ID, a.ID, "forged"), ErrUnauthorized)
	assert.ErrorIs(t, r.Authorize("nope", a.ID, a.JoinToken), ErrMeetingNotFound)

	_, err = r.AddAttendee("math", strings.Repeat("x", domain.MaxAttendeeNameLen+1))
	assert.ErrorIs(t, err, domain.ErrNameTooLong)
	_, err = r.AddAttendee("physics", "Bob")
	assert.ErrorIs(t, err, ErrMeetingNotFound)
	_, err = r.Attendee("math", "ghost")
	assert.ErrorIs(t, err, ErrAttendeeNotFound)
}

func TestRegistry_End(t *testing.T) {
	r := NewRegistry()
	_, _ = r.GetOrCreate("math", "")
	_, ok := r.End("math")
	assert.True(t, ok)
	_, ok = r.Get("math")
	assert.False(t, ok)
	_, ok = r.End("math")
	assert.False(t, ok)
	assert.Empty(t, r.List())
}

func TestRegistry_VideoTiles(t *testing.T) {
	r := NewRegistry()
	m, _ := r.GetOrCreate("math", "")

	a, err := r.StartVideo(m.ID, "a")
	require.NoError(t, err)
	again, _ := r.StartVideo(m.ID, "a")
	assert.Equal(t, a.TileID, again.TileID)
	b, _ := r.StartVideo(m.ID, "b")
	assert.NotEqual(t, a.TileID, b.TileID)

	assert.Equal(t, []domain.TileState{a, b}, r.ActiveTiles(m.ID))

	id, ok := r.StopVideo(m.ID, "a")
	assert.True(t, ok)
	assert.Equal(t, a.TileID, id)
	_, ok = r.StopVideo(m.ID, "a")
	assert.False(t, ok)
}
