package devices

import (
	"context"
	"testing"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/pion/mediadevices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaDevices_FiltersByKind(t *testing.T) {
	m := &MediaDevices{enumerate: func() []mediadevices.MediaDeviceInfo {
		return []mediadevices.MediaDeviceInfo{
			{DeviceID: "cam0", Kind: mediadevices.VideoInput, Label: "Front camera"},
			{DeviceID: "mic0", Kind: mediadevices.AudioInput, Label: ""},
			{DeviceID: "spk0", Kind: mediadevices.AudioOutput, Label: "Speakers"},
		}
	}}

	video, err := m.ListDevices(context.Background(), domain.VideoInput)
	require.NoError(t, err)
	assert.Equal(t, []domain.DeviceInfo{{DeviceID: "cam0", Kind: domain.VideoInput, Label: "Front camera"}}, video)

	audio, err := m.ListDevices(context.Background(), domain.AudioInput)
	require.NoError(t, err)
	require.Len(t, audio, 1)
	assert.Equal(t, "mic0", audio[0].Label)
}

func TestMediaDevices_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMediaDevices().ListDevices(ctx, domain.VideoInput)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatic_Replace(t *testing.T) {
	s := NewStatic(domain.DeviceInfo{DeviceID: "mic0", Kind: domain.AudioInput, Label: "Built-in"})
	got, _ := s.ListDevices(context.Background(), domain.AudioInput)
	require.Len(t, got, 1)

	s.Replace(domain.DeviceInfo{DeviceID: "mic1", Kind: domain.AudioInput, Label: "Headset"})
	got, _ = s.ListDevices(context.Background(), domain.AudioInput)
	require.Len(t, got, 1)
	assert.Equal(t, "mic1", got[0].DeviceID)

	none, _ := s.ListDevices(context.Background(), domain.VideoInput)
	assert.Empty(t, none)
}
