package rtc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/adapters/signal"
	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/domain"
)

var _ signal.Handler = (*Call)(nil)

func newMember(p signal.ParticipantInfo) *member {
	m := &member{info: domain.Participant{ID: domain.ParticipantID(p.ID), Name: p.Name}}
	m.update(p)
	return m
}

func (m *member) update(p signal.ParticipantInfo) {
	if p.Name != nil {
		m.info.Name = p.Name
	}
	if p.AudioTrack != nil {
		id := domain.MediaTrackID(*p.AudioTrack)
		m.audio = &id
	}
	if p.VideoTrack != nil {
		id := domain.MediaTrackID(*p.VideoTrack)
		m.video = &id
	}
}

func (c *Call) findMember(id domain.ParticipantID) (int, *member) {
	for i, m := range c.members {
		if m.info.ID == id {
			return i, m
		}
	}
	return -1, nil
}

func (c *Call) OnJoined(j signal.Joined) {
	c.mu.Lock()
	if state := c.state; state != core.CallStateJoining {
		c.mu.Unlock()
		log.Warn().Str("module", "rtc").Stringer("state", state).Msg("unexpected joined")
		return
	}
	if j.ParticipantID != "" {
		c.localID = domain.ParticipantID(j.ParticipantID)
	}
	c.members = c.members[:0]
	for _, p := range j.Participants {
		if domain.ParticipantID(p.ID) == c.localID {
			continue
		}
		c.members = append(c.members, newMember(p))
	}
	done := c.pendingJoin
	c.pendingJoin = nil
	c.state = core.CallStateJoined
	c.emit(core.CallStateUpdated{State: core.CallStateJoined})
	c.mu.Unlock()

	log.Info().Str("module", "rtc").Str("participant_id", j.ParticipantID).Int("members", len(j.Participants)).Msg("joined")
	complete(done, nil)
	go c.startMedia()
}

func (c *Call) OnParticipant(e signal.ParticipantEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != core.CallStateJoined {
		return
	}
	id := domain.ParticipantID(e.Participant.ID)
	if id == c.localID {
		return
	}

	switch e.Type {
	case signal.TypeParticipantJoined, signal.TypeParticipantUpdated:
		if _, m := c.findMember(id); m != nil {
			m.update(e.Participant)
			c.emit(core.ParticipantUpdated{Participant: m.toCall()})
			return
		}
		m := newMember(e.Participant)
		c.members = append(c.members, m)
		c.emit(core.ParticipantJoined{Participant: m.toCall()})

	case signal.TypeParticipantLeft:
		i, m := c.findMember(id)
		if m == nil {
			return
		}
		c.members = append(c.members[:i], c.members[i+1:]...)
		delete(c.remoteLevels, id)
		c.emit(core.ParticipantLeft{Participant: m.toCall(), Reason: e.Reason})
	}
}

func (c *Call) OnOffer(d signal.SessionDescription) {
	conn, client := c.media()
	if conn == nil || client == nil {
		log.Warn().Str("module", "rtc").Msg("offer without media connection")
		return
	}
	answer, err := conn.ApplyOfferAndCreateAnswer(d.Offer())
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("apply offer")
		return
	}
	if err := client.SendAnswer(answer); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("send answer")
	}
}

func (c *Call) OnAnswer(d signal.SessionDescription) {
	conn, _ := c.media()
	if conn == nil {
		log.Warn().Str("module", "rtc").Msg("answer without media connection")
		return
	}
	if err := conn.ApplyAnswer(d.Answer()); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("apply answer")
	}
}

func (c *Call) OnCandidate(cand signal.Candidate) {
	conn, _ := c.media()
	if conn == nil {
		log.Warn().Str("module", "rtc").Msg("candidate: no media connection")
		return
	}
	if err := conn.AddICECandidate(cand.ICECandidateInit()); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("add ice candidate")
	}
}

func (c *Call) OnServerError(e signal.ErrorFrame) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == core.CallStateJoining {
		c.failJoin(fmt.Errorf("room server: %s", e.Error))
		return
	}
	log.Error().Str("module", "rtc").Str("error", e.Error).Msg("room server error")
}

func (c *Call) OnLeft() {
	c.teardown()
}

func (c *Call) OnClosed(err error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch state {
	case core.CallStateJoining:
		if err == nil {
			err = signal.ErrClosed
		}
		c.failJoin(err)
	case core.CallStateJoined, core.CallStateLeaving:
		c.teardown()
	}
}

func (c *Call) media() (*Connection, *signal.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.client
}

func (c *Call) startMedia() {
	c.mu.Lock()
	localID := c.localID
	c.mu.Unlock()

	conn, err := NewConnection(c.api, c.set.ICE, string(localID))
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("media connection")
		return
	}
	conn.OnData(c.onAppData)
	conn.OnTrack(c.onTrack)
	conn.Start(context.Background())

	c.mu.Lock()
	if c.state != core.CallStateJoined || c.client == nil {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	client := c.client
	c.mu.Unlock()

	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := client.SendCandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("send candidate")
		}
	})
	offer, err := conn.CreateOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("create offer")
		return
	}
	if err := client.SendOffer(offer); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("send offer")
	}
}

func (c *Call) onAppData(data []byte) {
	var env struct {
		appEnvelope
		Label string `json:"label"`
		Type  string `json:"type"`
	}
	// bare protocol messages are forwarded as they are
	if err := json.Unmarshal(data, &env); err != nil || len(env.Data) == 0 || env.Label != "" || env.Type != "" {
		c.emit(core.AppMessage{Data: data})
		return
	}
	c.emit(core.AppMessage{Data: env.Data, From: domain.ParticipantID(env.From)})
}

// memberForTrack matches a remote track to the member that announced it,
// falling back to the stream id naming the participant.
func (c *Call) memberForTrack(track *webrtc.TrackRemote) *member {
	for _, m := range c.members {
		if (m.audio != nil && string(*m.audio) == track.ID()) ||
			(m.video != nil && string(*m.video) == track.ID()) ||
			string(m.info.ID) == track.StreamID() {
			return m
		}
	}
	return nil
}

func (c *Call) onTrack(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	c.mu.Lock()
	m := c.memberForTrack(track)
	if m == nil {
		c.mu.Unlock()
		log.Warn().Str("module", "rtc").Str("stream_id", track.StreamID()).Msg("track from unknown participant")
		go drain(ctx, track)
		return
	}
	id := domain.MediaTrackID(track.ID())
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		m.audio = &id
	} else {
		m.video = &id
	}
	pid := m.info.ID
	c.emit(core.ParticipantUpdated{Participant: m.toCall()})
	c.mu.Unlock()

	if track.Kind() != webrtc.RTPCodecTypeAudio {
		go drain(ctx, track)
		return
	}
	extID, ok := audioLevelExtensionID(receiver.GetParameters())
	if !ok {
		log.Warn().Str("module", "rtc").Str("participant", string(pid)).Msg("audio level extension not negotiated")
	}
	go c.meterRemote(ctx, track, pid, extID)
}

func (c *Call) meterRemote(ctx context.Context, track *webrtc.TrackRemote, id domain.ParticipantID, extID uint8) {
	for ctx.Err() == nil {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "rtc").Str("participant", string(id)).Msg("remote audio ended")
			return
		}
		level, ok := packetLevel(pkt, extID)
		if !ok {
			continue
		}
		c.mu.Lock()
		if _, m := c.findMember(id); m != nil {
			c.remoteLevels[id] = level
		}
		c.mu.Unlock()
	}
}

func drain(ctx context.Context, track *webrtc.TrackRemote) {
	for ctx.Err() == nil {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}
