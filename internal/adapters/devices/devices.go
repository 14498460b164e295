// Package devices lists host audio/video devices for the realtime session.
package devices

import (
	"context"
	"sync"

	"github.com/dkeye/classroom/internal/domain"
	"github.com/pion/mediadevices"
)

// MediaDevices lists devices from the drivers registered with pion/mediadevices.
// Drivers register themselves through blank imports in main.
type MediaDevices struct {
	enumerate func() []mediadevices.MediaDeviceInfo
}

func NewMediaDevices() *MediaDevices {
	return &MediaDevices{enumerate: mediadevices.EnumerateDevices}
}

func (m *MediaDevices) ListDevices(ctx context.Context, kind domain.DeviceKind) ([]domain.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.DeviceInfo
	for _, d := range m.enumerate() {
		k, ok := kindOf(d.Kind)
		if !ok || k != kind {
			continue
		}
		label := d.Label
		if label == "" {
			label = d.DeviceID
		}
		out = append(out, domain.DeviceInfo{DeviceID: d.DeviceID, Kind: k, Label: label})
	}
	return out, nil
}

func kindOf(t mediadevices.MediaDeviceType) (domain.DeviceKind, bool) {
	switch t {
	case mediadevices.AudioInput:
		return domain.AudioInput, true
	case mediadevices.AudioOutput:
		return domain.AudioOutput, true
	case mediadevices.VideoInput:
		return domain.VideoInput, true
	}
	return 0, false
}

// Static is a fixed device list for headless hosts and tests.
type Static struct {
	mu      sync.RWMutex
	devices []domain.DeviceInfo
}

func NewStatic(devices ...domain.DeviceInfo) *Static {
	return &Static{devices: append([]domain.DeviceInfo(nil), devices...)}
}

func (s *Static) ListDevices(_ context.Context, kind domain.DeviceKind) ([]domain.DeviceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DeviceInfo
	for _, d := range s.devices {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out, nil
}

// Replace swaps the device set, e.g. to simulate a hot-plugged headset.
func (s *Static) Replace(devices ...domain.DeviceInfo) {
	s.mu.Lock()
	s.devices = append([]domain.DeviceInfo(nil), devices...)
	s.mu.Unlock()
}
