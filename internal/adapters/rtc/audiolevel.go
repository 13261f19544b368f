package rtc

import (
	"math"

	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// LevelFromDBov maps the -dBov value of an audio level extension (0 loudest,
// 127 silent) to a linear 0..1 level.
func LevelFromDBov(dBov uint8) float32 {
	if dBov >= 127 {
		return 0
	}
	return float32(math.Pow(10, -float64(dBov)/20))
}

// audioLevelExtensionID finds the negotiated id of the audio level extension.
func audioLevelExtensionID(params webrtc.RTPParameters) (uint8, bool) {
	for _, ext := range params.HeaderExtensions {
		if ext.URI == sdp.AudioLevelURI && ext.ID > 0 && ext.ID < 256 {
			return uint8(ext.ID), true
		}
	}
	return 0, false
}

// packetLevel reads the audio level carried by pkt.
func packetLevel(pkt *rtp.Packet, extID uint8) (float32, bool) {
	if extID == 0 {
		return 0, false
	}
	raw := pkt.GetExtension(extID)
	if raw == nil {
		return 0, false
	}
	var ext rtp.AudioLevelExtension
	if err := ext.Unmarshal(raw); err != nil {
		return 0, false
	}
	return LevelFromDBov(ext.Level), true
}
