package rtc

import (
	"math"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/voicebridge/internal/config"
)

func TestLevelFromDBov(t *testing.T) {
	cases := []struct {
		dBov uint8
		want float64
	}{
		{0, 1},
		{20, 0.1},
		{40, 0.01},
		{127, 0},
	}
	for _, tc := range cases {
		if got := LevelFromDBov(tc.dBov); math.Abs(float64(got)-tc.want) > 1e-6 {
			t.Errorf("LevelFromDBov(%d) = %v, want %v", tc.dBov, got, tc.want)
		}
	}
}

func TestPacketLevel(t *testing.T) {
	raw, err := (&rtp.AudioLevelExtension{Level: 20, Voice: true}).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	pkt := &rtp.Packet{Header: rtp.Header{
		Version:          2,
		Extension:        true,
		ExtensionProfile: rtp.ExtensionProfileOneByte,
	}}
	if err := pkt.Header.SetExtension(3, raw); err != nil {
		t.Fatal(err)
	}

	level, ok := packetLevel(pkt, 3)
	if !ok || math.Abs(float64(level)-0.1) > 1e-6 {
		t.Errorf("level = %v %v", level, ok)
	}
	if _, ok := packetLevel(pkt, 4); ok {
		t.Error("level read from the wrong extension id")
	}
	if _, ok := packetLevel(pkt, 0); ok {
		t.Error("level read without a negotiated id")
	}
}

func TestAudioLevelExtensionID(t *testing.T) {
	params := webrtc.RTPParameters{HeaderExtensions: []webrtc.RTPHeaderExtensionParameter{
		{URI: sdp.SDESMidURI, ID: 1},
		{URI: sdp.AudioLevelURI, ID: 5},
	}}
	if id, ok := audioLevelExtensionID(params); !ok || id != 5 {
		t.Errorf("id = %d %v", id, ok)
	}
	if _, ok := audioLevelExtensionID(webrtc.RTPParameters{}); ok {
		t.Error("found an id in empty parameters")
	}
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(config.RTCConfig{
		Microphones: []config.DeviceConfig{{ID: "mic-1"}, {ID: "mic-2", Name: "Headset"}},
	})
	devices := c.Devices()
	if len(devices.Audio) != 2 || devices.Audio[0].Name != "mic-1" || devices.Audio[1].Name != "Headset" {
		t.Errorf("audio = %+v", devices.Audio)
	}
	if devices.Camera == nil || len(devices.Camera) != 0 {
		t.Errorf("camera = %+v", devices.Camera)
	}
	if !c.HasMic("mic-2") || c.HasCamera("mic-2") {
		t.Error("device lookup")
	}
	in := c.DefaultInputs()
	if in.Microphone.DeviceID == nil || *in.Microphone.DeviceID != "mic-1" || in.Camera.DeviceID != nil {
		t.Errorf("default inputs = %+v", in)
	}
}

func TestICEServers(t *testing.T) {
	servers := ICEServers(config.RTCConfig{ICEServers: []config.ICEServerConfig{
		{URLs: []string{"stun:stun.example:3478"}},
		{URLs: []string{"turn:turn.example:3478"}, Username: "u", Credential: "p"},
	}})
	if len(servers) != 2 || servers[0].Username != "" || servers[1].Credential != "p" {
		t.Errorf("servers = %+v", servers)
	}
}
