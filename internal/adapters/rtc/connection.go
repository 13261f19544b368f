package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// AppMessagesLabel is the data channel that carries app messages.
const AppMessagesLabel = "app-messages"

var ErrChannelNotOpen = errors.New("app message channel not open")

// Connection is the peer connection of a joined call: local audio and video
// tracks plus the app message data channel.
type Connection struct {
	pc     *webrtc.PeerConnection
	cancel context.CancelFunc

	audio       *webrtc.TrackLocalStaticRTP
	audioSender *webrtc.RTPSender
	video       *webrtc.TrackLocalStaticRTP

	mu       sync.RWMutex
	dc       *webrtc.DataChannel
	onICE    func(webrtc.ICECandidateInit)
	onData   func([]byte)
	onTrack  func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onClosed func()
}

func NewConnection(api *webrtc.API, cfg webrtc.Configuration, streamID string) (*Connection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	c := &Connection{pc: pc}

	c.audio, err = webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if c.audioSender, err = pc.AddTrack(c.audio); err != nil {
		_ = pc.Close()
		return nil, err
	}

	c.video, err = webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if _, err = pc.AddTrack(c.video); err != nil {
		_ = pc.Close()
		return nil, err
	}

	dc, err := pc.CreateDataChannel(AppMessagesLabel, nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	c.bindDataChannel(dc)
	return c, nil
}

func (c *Connection) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			cancel()
			c.mu.RLock()
			onClosed := c.onClosed
			c.mu.RUnlock()
			if onClosed != nil {
				onClosed()
			}
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		c.mu.RLock()
		onICE := c.onICE
		c.mu.RUnlock()
		if cand != nil && onICE != nil {
			onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.RLock()
		onTrack := c.onTrack
		c.mu.RUnlock()
		if onTrack != nil {
			onTrack(ctx, track, receiver)
		}
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != AppMessagesLabel {
			log.Warn().Str("module", "rtc").Str("label", dc.Label()).Msg("ignoring data channel")
			return
		}
		c.bindDataChannel(dc)
	})
}

func (c *Connection) bindDataChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		log.Info().Str("module", "rtc").Str("label", dc.Label()).Msg("data channel open")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.RLock()
		onData := c.onData
		c.mu.RUnlock()
		if onData != nil {
			onData(msg.Data)
		}
	})
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()
}

// CreateOffer sets and returns the local offer. Candidates trickle through OnICECandidate.
func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

// ApplyOfferAndCreateAnswer handles renegotiation started by the server.
func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// SendData writes one app message on the data channel.
func (c *Connection) SendData(data []byte) error {
	c.mu.RLock()
	dc := c.dc
	c.mu.RUnlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return dc.Send(data)
}

func (c *Connection) WriteAudio(pkt *rtp.Packet) error { return c.audio.WriteRTP(pkt) }

func (c *Connection) WriteVideo(pkt *rtp.Packet) error { return c.video.WriteRTP(pkt) }

// LocalAudioLevelExtensionID is the negotiated id hosts should stamp on outgoing audio.
func (c *Connection) LocalAudioLevelExtensionID() (uint8, bool) {
	return audioLevelExtensionID(c.audioSender.GetParameters().RTPParameters)
}

func (c *Connection) AudioTrackID() string { return c.audio.ID() }

func (c *Connection) VideoTrackID() string { return c.video.ID() }

func (c *Connection) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Msg("closed")
	}
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

// OnData sets the callback for inbound app messages.
func (c *Connection) OnData(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onData = fn
}

// OnTrack sets application-level callback for remote tracks.
func (c *Connection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

// OnClosed is called when the peer connection fails or closes.
func (c *Connection) OnClosed(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = fn
}
