package core

import (
	"context"

	"github.com/dkeye/classroom/internal/domain"
)

// PresenceHandler is called when an attendee joins (present) or leaves.
type PresenceHandler func(id domain.AttendeeID, present bool)

// VolumeIndicatorHandler receives per-attendee volume/mute/signal updates.
type VolumeIndicatorHandler func(ind domain.VolumeIndicator)

// VideoTileObserver receives tile lifecycle events.
type VideoTileObserver interface {
	VideoTileDidUpdate(state domain.TileState)
	VideoTileWasRemoved(tileID domain.TileID)
}

// DeviceChangeObserver receives fresh device lists when the host's devices change.
type DeviceChangeObserver interface {
	AudioInputsChanged(fresh []domain.DeviceInfo)
	AudioOutputsChanged(fresh []domain.DeviceInfo)
	VideoInputsChanged(fresh []domain.DeviceInfo)
}

// DeviceLister enumerates host devices of one kind.
type DeviceLister interface {
	ListDevices(ctx context.Context, kind domain.DeviceKind) ([]domain.DeviceInfo, error)
}

type DeviceController interface {
	ListAudioInputDevices(ctx context.Context) ([]domain.DeviceInfo, error)
	ListAudioOutputDevices(ctx context.Context) ([]domain.DeviceInfo, error)
	ListVideoInputDevices(ctx context.Context) ([]domain.DeviceInfo, error)
	ChooseAudioInputDevice(ctx context.Context, deviceID string) error
	ChooseAudioOutputDevice(ctx context.Context, deviceID string) error
	ChooseVideoInputDevice(ctx context.Context, deviceID string) error
}

type RealtimeController interface {
	SubscribeToAttendeeIDPresence(fn PresenceHandler)
	SubscribeToVolumeIndicator(id domain.AttendeeID, fn VolumeIndicatorHandler)
	UnsubscribeFromVolumeIndicator(id domain.AttendeeID)
	MuteLocalAudio(muted bool) error
}

// AudioVideo is the realtime session collaborator. All events are delivered
// through registered callbacks on goroutines owned by the implementation.
type AudioVideo interface {
	DeviceController
	RealtimeController

	Start(ctx context.Context) error
	Stop()
	AddObserver(o VideoTileObserver)
	AddDeviceChangeObserver(o DeviceChangeObserver)
	StartLocalVideoTile() error
	StopLocalVideoTile() error
}

// SessionFactory builds a realtime session for a joined meeting.
type SessionFactory interface {
	NewSession(cfg domain.SessionConfiguration) (AudioVideo, error)
}

// TileBinder attaches a tile's stream to a rendering slot.
type TileBinder interface {
	BindVideoTile(tileID domain.TileID, slot int)
}
