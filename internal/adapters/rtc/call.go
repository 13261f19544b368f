package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/adapters/signal"
	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/domain"
)

var (
	ErrAlreadyJoined = errors.New("call already joined")
	ErrNotJoined     = errors.New("call not joined")
	ErrReleased      = errors.New("call released")
	ErrUnknownDevice = errors.New("unknown device")
)

type Settings struct {
	Name         string
	Signal       signal.Options
	ICE          webrtc.Configuration
	Catalog      Catalog
	JoinTimeout  time.Duration
	LeaveTimeout time.Duration
}

// appEnvelope wraps app messages on the data channel.
type appEnvelope struct {
	From string          `json:"from,omitempty"`
	Data json.RawMessage `json:"data"`
}

type member struct {
	info  domain.Participant
	audio *domain.MediaTrackID
	video *domain.MediaTrackID
}

func (m *member) toCall() core.CallParticipant {
	return core.CallParticipant{Info: m.info, Audio: m.audio, Video: m.video}
}

// Call is a CallClient over websocket signaling and one pion peer connection.
// Completions run on their own goroutine.
type Call struct {
	api  *webrtc.API
	set  Settings
	sink core.EventSink

	mu           sync.Mutex
	state        core.CallState
	client       *signal.Client
	conn         *Connection
	localID      domain.ParticipantID
	members      []*member
	inputs       core.InputSettings
	pendingJoin  core.Completion
	pendingLeave core.Completion
	leaveTimer   *time.Timer
	localLevel   float32
	remoteLevels map[domain.ParticipantID]float32
	released     bool

	stop     chan struct{}
	stopOnce sync.Once
}

func NewCall(api *webrtc.API, set Settings, sink core.EventSink) *Call {
	if set.JoinTimeout <= 0 {
		set.JoinTimeout = 10 * time.Second
	}
	if set.LeaveTimeout <= 0 {
		set.LeaveTimeout = 2 * time.Second
	}
	return &Call{
		api:          api,
		set:          set,
		sink:         sink,
		state:        core.CallStateInitialized,
		localID:      domain.ParticipantID(uuid.NewString()),
		inputs:       set.Catalog.DefaultInputs(),
		remoteLevels: make(map[domain.ParticipantID]float32),
		stop:         make(chan struct{}),
	}
}

func (c *Call) emit(ev core.Event) {
	if c.sink != nil {
		c.sink(ev)
	}
}

func complete(done core.Completion, err error) {
	if done != nil {
		go done(err)
	}
}

func (c *Call) Join(url string, token *string, done core.Completion) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		complete(done, ErrReleased)
		return
	}
	if c.state != core.CallStateInitialized && c.state != core.CallStateLeft {
		c.mu.Unlock()
		complete(done, ErrAlreadyJoined)
		return
	}
	c.state = core.CallStateJoining
	c.pendingJoin = done
	c.emit(core.CallStateUpdated{State: core.CallStateJoining})
	c.mu.Unlock()

	log.Info().Str("module", "rtc").Str("url", url).Msg("joining")
	go c.dial(url, token)
}

func (c *Call) dial(url string, token *string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.set.JoinTimeout)
	defer cancel()

	client, err := signal.Dial(ctx, url, c, c.set.Signal)
	if err != nil {
		c.failJoin(err)
		return
	}

	c.mu.Lock()
	if c.state != core.CallStateJoining {
		c.mu.Unlock()
		client.Close()
		return
	}
	c.client = client
	c.mu.Unlock()

	if err := client.Join(token, c.set.Name); err != nil {
		c.failJoin(fmt.Errorf("send join: %w", err))
	}
}

func (c *Call) failJoin(err error) {
	c.mu.Lock()
	if c.state != core.CallStateJoining {
		c.mu.Unlock()
		return
	}
	done := c.pendingJoin
	c.pendingJoin = nil
	client := c.client
	c.client = nil
	c.state = core.CallStateInitialized
	c.emit(core.CallStateUpdated{State: core.CallStateInitialized})
	c.mu.Unlock()

	log.Error().Err(err).Str("module", "rtc").Msg("join failed")
	if client != nil {
		client.Close()
	}
	complete(done, err)
}

func (c *Call) Leave(done core.Completion) {
	c.mu.Lock()
	if c.state != core.CallStateJoined {
		c.mu.Unlock()
		complete(done, ErrNotJoined)
		return
	}
	c.state = core.CallStateLeaving
	c.pendingLeave = done
	client := c.client
	c.emit(core.CallStateUpdated{State: core.CallStateLeaving})
	c.leaveTimer = time.AfterFunc(c.set.LeaveTimeout, func() {
		log.Warn().Str("module", "rtc").Msg("leave not acknowledged, closing")
		c.teardown()
	})
	c.mu.Unlock()

	if client == nil {
		c.teardown()
		return
	}
	if err := client.Leave(); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("send leave")
		c.teardown()
	}
}

// teardown closes media and signaling and reports the call as left.
func (c *Call) teardown() {
	c.mu.Lock()
	if c.state != core.CallStateJoined && c.state != core.CallStateLeaving {
		c.mu.Unlock()
		return
	}
	client, conn := c.client, c.conn
	c.client, c.conn = nil, nil
	c.members = nil
	c.remoteLevels = make(map[domain.ParticipantID]float32)
	done := c.pendingLeave
	c.pendingLeave = nil
	if c.leaveTimer != nil {
		c.leaveTimer.Stop()
		c.leaveTimer = nil
	}
	c.state = core.CallStateLeft
	c.emit(core.CallStateUpdated{State: core.CallStateLeft})
	c.mu.Unlock()

	log.Info().Str("module", "rtc").Msg("left")
	if conn != nil {
		conn.Close()
	}
	if client != nil {
		client.Close()
	}
	complete(done, nil)
}

func (c *Call) SendAppMessage(data []byte, done core.Completion) {
	c.mu.Lock()
	state, conn, from := c.state, c.conn, c.localID
	c.mu.Unlock()

	if state != core.CallStateJoined {
		complete(done, ErrNotJoined)
		return
	}
	if conn == nil {
		complete(done, ErrChannelNotOpen)
		return
	}
	payload, err := json.Marshal(appEnvelope{From: string(from), Data: json.RawMessage(data)})
	if err != nil {
		complete(done, fmt.Errorf("encode app message: %w", err))
		return
	}
	complete(done, conn.SendData(payload))
}

func (c *Call) UpdateInputs(update core.InputSettingsUpdate, done core.Completion) {
	c.mu.Lock()
	if mic := update.Microphone; mic != nil && mic.DeviceID != nil && !c.set.Catalog.HasMic(*mic.DeviceID) {
		c.mu.Unlock()
		complete(done, fmt.Errorf("%w: %s", ErrUnknownDevice, *mic.DeviceID))
		return
	}
	if cam := update.Camera; cam != nil && cam.DeviceID != nil && !c.set.Catalog.HasCamera(*cam.DeviceID) {
		c.mu.Unlock()
		complete(done, fmt.Errorf("%w: %s", ErrUnknownDevice, *cam.DeviceID))
		return
	}
	applyInput(&c.inputs.Microphone, update.Microphone)
	applyInput(&c.inputs.Camera, update.Camera)
	c.emit(core.InputsUpdated{Settings: c.inputs})
	c.mu.Unlock()

	complete(done, nil)
}

func applyInput(in *core.DeviceInput, u *core.DeviceInputUpdate) {
	if u == nil {
		return
	}
	if u.Enabled != nil {
		in.Enabled = *u.Enabled
	}
	if u.DeviceID != nil {
		id := *u.DeviceID
		in.DeviceID = &id
	}
}

func (c *Call) SetAudioDevice(id domain.MediaDeviceID, done core.Completion) {
	c.UpdateInputs(core.InputSettingsUpdate{Microphone: &core.DeviceInputUpdate{DeviceID: &id}}, done)
}

func (c *Call) AvailableDevices() core.Devices { return c.set.Catalog.Devices() }

func (c *Call) Inputs() core.InputSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputs
}

func (c *Call) Participants() core.CallParticipants {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := c.set.Name
	local := core.CallParticipant{Info: domain.Participant{ID: c.localID, Name: &name, Local: true}}
	if c.conn != nil {
		if c.inputs.Microphone.Enabled {
			id := domain.MediaTrackID(c.conn.AudioTrackID())
			local.Audio = &id
		}
		if c.inputs.Camera.Enabled {
			id := domain.MediaTrackID(c.conn.VideoTrackID())
			local.Video = &id
		}
	}

	all := make([]core.CallParticipant, 0, len(c.members)+1)
	all = append(all, local)
	for _, m := range c.members {
		all = append(all, m.toCall())
	}
	return core.CallParticipants{Local: local, All: all}
}

// WriteAudio sends one Opus packet from the host. Packets are dropped while the mic is off.
func (c *Call) WriteAudio(pkt *rtp.Packet) error {
	c.mu.Lock()
	conn, enabled := c.conn, c.inputs.Microphone.Enabled
	c.mu.Unlock()
	if conn == nil {
		return ErrNotJoined
	}
	if !enabled {
		return nil
	}
	if extID, ok := conn.LocalAudioLevelExtensionID(); ok {
		if level, ok := packetLevel(pkt, extID); ok {
			c.SetLocalAudioLevel(level)
		}
	}
	return conn.WriteAudio(pkt)
}

// WriteVideo sends one VP8 packet from the host. Packets are dropped while the camera is off.
func (c *Call) WriteVideo(pkt *rtp.Packet) error {
	c.mu.Lock()
	conn, enabled := c.conn, c.inputs.Camera.Enabled
	c.mu.Unlock()
	if conn == nil {
		return ErrNotJoined
	}
	if !enabled {
		return nil
	}
	return conn.WriteVideo(pkt)
}

// SetLocalAudioLevel lets hosts that meter PCM themselves report the mic level.
func (c *Call) SetLocalAudioLevel(level float32) {
	c.mu.Lock()
	c.localLevel = level
	c.mu.Unlock()
}

func (c *Call) StartLocalAudioLevelObserver(interval time.Duration, done core.Completion) {
	c.startObserver(interval, done, func() {
		c.mu.Lock()
		level := c.localLevel
		if !c.inputs.Microphone.Enabled {
			level = 0
		}
		c.mu.Unlock()
		c.emit(core.LocalAudioLevel{Level: level})
	})
}

func (c *Call) StartRemoteParticipantsAudioLevelObserver(interval time.Duration, done core.Completion) {
	c.startObserver(interval, done, func() {
		c.mu.Lock()
		if len(c.remoteLevels) == 0 {
			c.mu.Unlock()
			return
		}
		levels := make(map[domain.ParticipantID]float32, len(c.remoteLevels))
		for id, level := range c.remoteLevels {
			levels[id] = level
		}
		c.mu.Unlock()
		c.emit(core.RemoteAudioLevels{Levels: levels})
	})
}

func (c *Call) startObserver(interval time.Duration, done core.Completion, tick func()) {
	if interval <= 0 {
		complete(done, fmt.Errorf("invalid observer interval %s", interval))
		return
	}
	c.mu.Lock()
	released := c.released
	c.mu.Unlock()
	if released {
		complete(done, ErrReleased)
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
	complete(done, nil)
}

// Release stops the observers and drops any session. Calling it again is a no-op.
func (c *Call) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	state := c.state
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })
	switch state {
	case core.CallStateJoining:
		c.failJoin(ErrReleased)
	case core.CallStateJoined, core.CallStateLeaving:
		c.teardown()
	}
	log.Info().Str("module", "rtc").Msg("call released")
}
