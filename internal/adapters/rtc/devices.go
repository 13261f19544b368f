package rtc

import (
	"github.com/dkeye/voicebridge/internal/config"
	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/domain"
)

// Catalog lists the capture devices the host can feed. pion does not enumerate
// hardware, so the catalog comes from configuration.
type Catalog struct {
	devices core.Devices
}

func NewCatalog(cfg config.RTCConfig) Catalog {
	return Catalog{devices: core.Devices{
		Audio:  toDeviceInfo(cfg.Microphones),
		Camera: toDeviceInfo(cfg.Cameras),
	}}
}

func toDeviceInfo(in []config.DeviceConfig) []domain.MediaDeviceInfo {
	out := make([]domain.MediaDeviceInfo, 0, len(in))
	for _, d := range in {
		name := d.Name
		if name == "" {
			name = d.ID
		}
		out = append(out, domain.MediaDeviceInfo{ID: domain.MediaDeviceID(d.ID), Name: name})
	}
	return out
}

func (c Catalog) Devices() core.Devices {
	return core.Devices{
		Audio:  clone(c.devices.Audio),
		Camera: clone(c.devices.Camera),
	}
}

func clone(devices []domain.MediaDeviceInfo) []domain.MediaDeviceInfo {
	out := make([]domain.MediaDeviceInfo, len(devices))
	copy(out, devices)
	return out
}

func (c Catalog) HasMic(id domain.MediaDeviceID) bool { return has(c.devices.Audio, id) }

func (c Catalog) HasCamera(id domain.MediaDeviceID) bool { return has(c.devices.Camera, id) }

// DefaultInputs selects the first device of each kind, both disabled.
func (c Catalog) DefaultInputs() core.InputSettings {
	var in core.InputSettings
	if len(c.devices.Audio) > 0 {
		id := c.devices.Audio[0].ID
		in.Microphone.DeviceID = &id
	}
	if len(c.devices.Camera) > 0 {
		id := c.devices.Camera[0].ID
		in.Camera.DeviceID = &id
	}
	return in
}

func has(devices []domain.MediaDeviceInfo, id domain.MediaDeviceID) bool {
	for _, d := range devices {
		if d.ID == id {
			return true
		}
	}
	return false
}
