package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/domain"
	"github.com/dkeye/voicebridge/internal/future"
	"github.com/dkeye/voicebridge/internal/thread"
)

type fakeCall struct {
	mu sync.Mutex

	sink      core.EventSink
	joinErr   error
	inputsErr error

	joinedURL   string
	joinedToken *string
	left        int
	sent        [][]byte
	released    int
	observers   int

	inputs       core.InputSettings
	devices      core.Devices
	participants core.CallParticipants
}

func (c *fakeCall) Join(url string, token *string, done core.Completion) {
	c.mu.Lock()
	c.joinedURL, c.joinedToken = url, token
	err := c.joinErr
	c.mu.Unlock()
	go done(err)
}

func (c *fakeCall) Leave(done core.Completion) {
	c.mu.Lock()
	c.left++
	c.mu.Unlock()
	go done(nil)
}

func (c *fakeCall) SendAppMessage(data []byte, done core.Completion) {
	c.mu.Lock()
	c.sent = append(c.sent, data)
	c.mu.Unlock()
	go done(nil)
}

func (c *fakeCall) UpdateInputs(update core.InputSettingsUpdate, done core.Completion) {
	c.mu.Lock()
	if err := c.inputsErr; err != nil {
		c.mu.Unlock()
		go done(err)
		return
	}
	apply(&c.inputs.Camera, update.Camera)
	apply(&c.inputs.Microphone, update.Microphone)
	c.mu.Unlock()
	go done(nil)
}

func apply(in *core.DeviceInput, u *core.DeviceInputUpdate) {
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

func (c *fakeCall) SetAudioDevice(id domain.MediaDeviceID, done core.Completion) {
	c.mu.Lock()
	c.inputs.Microphone.DeviceID = &id
	c.mu.Unlock()
	go done(nil)
}

func (c *fakeCall) AvailableDevices() core.Devices {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.devices
}

func (c *fakeCall) Inputs() core.InputSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputs
}

func (c *fakeCall) Participants() core.CallParticipants {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participants
}

func (c *fakeCall) StartLocalAudioLevelObserver(time.Duration, core.Completion) {
	c.mu.Lock()
	c.observers++
	c.mu.Unlock()
}

func (c *fakeCall) StartRemoteParticipantsAudioLevelObserver(time.Duration, core.Completion) {
	c.mu.Lock()
	c.observers++
	c.mu.Unlock()
}

func (c *fakeCall) Release() {
	c.mu.Lock()
	c.released++
	c.mu.Unlock()
}

func (c *fakeCall) emit(ev core.Event) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	sink(ev)
}

type recorder struct {
	core.NoopCallbacks

	mu           sync.Mutex
	states       []domain.TransportState
	connected    int
	disconnected int
	messages     []domain.MsgServerToClient
	remote       []domain.ParticipantID
	bots         []*domain.Participant
	botSpeaking  []bool
	userSpeaking []bool
}

func (r *recorder) OnTransportStateChanged(s domain.TransportState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) OnConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected++
}

func (r *recorder) OnDisconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected++
}

func (r *recorder) OnMessage(msg domain.MsgServerToClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) OnRemoteAudioLevel(_ float32, p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote = append(r.remote, p.ID)
}

func (r *recorder) OnBotChanged(bot *domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bots = append(r.bots, bot)
}

func (r *recorder) OnBotStartedSpeaking() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.botSpeaking = append(r.botSpeaking, true)
}

func (r *recorder) OnBotStoppedSpeaking() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.botSpeaking = append(r.botSpeaking, false)
}

func (r *recorder) OnUserStartedSpeaking() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userSpeaking = append(r.userSpeaking, true)
}

func (r *recorder) OnUserStoppedSpeaking() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userSpeaking = append(r.userSpeaking, false)
}

func (r *recorder) stateList() []domain.TransportState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TransportState(nil), r.states...)
}

type harness struct {
	th        *thread.Thread
	call      *fakeCall
	rec       *recorder
	tr        *Transport
	factories int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		th:   thread.New("transport-test", thread.WithStrict(true)),
		call: &fakeCall{},
		rec:  &recorder{},
	}
	t.Cleanup(h.th.Stop)

	factory := core.CallFactoryFunc(func(sink core.EventSink) (core.CallClient, error) {
		h.factories++
		h.call.mu.Lock()
		h.call.sink = sink
		h.call.mu.Unlock()
		return h.call, nil
	})
	h.tr = NewTransport(Context{Thread: h.th, Callbacks: h.rec, Options: DefaultOptions()}, factory)
	return h
}

func await[V any](t *testing.T, f *future.Future[V]) (V, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("future never resolved")
	}
	return v, err
}

// flush waits until every task posted so far has run.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	onThread(t, h.th, func(context.Context) {})
}

func validAuth() domain.AuthBundle {
	return domain.AuthBundle{Data: `{"room_url":"wss://rooms.example/r1","token":"tok"}`}
}

func TestTransport_ConnectNotifiesInOrder(t *testing.T) {
	h := newHarness(t)

	if _, err := await(t, h.tr.Connect(context.Background(), validAuth())); err != nil {
		t.Fatalf("connect: %v", err)
	}

	want := []domain.TransportState{domain.TransportStateConnecting, domain.TransportStateConnected}
	got := h.rec.stateList()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
	if h.rec.connected != 1 {
		t.Errorf("OnConnected called %d times", h.rec.connected)
	}
	if h.call.joinedURL != "wss://rooms.example/r1" || h.call.joinedToken == nil || *h.call.joinedToken != "tok" {
		t.Errorf("joined with %q %v", h.call.joinedURL, h.call.joinedToken)
	}
	if !h.tr.IsMicEnabled(context.Background()) {
		t.Error("mic should be enabled by default options")
	}
	if h.tr.IsCamEnabled(context.Background()) {
		t.Error("cam should be disabled by default options")
	}
	if h.tr.State(context.Background()) != domain.TransportStateConnected {
		t.Errorf("state = %v", h.tr.State(context.Background()))
	}
}

func TestTransport_InitDevicesIsIdempotent(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 2; i++ {
		if _, err := await(t, h.tr.InitDevices(context.Background())); err != nil {
			t.Fatalf("initDevices: %v", err)
		}
	}
	if h.factories != 1 {
		t.Errorf("factory called %d times", h.factories)
	}
	if h.call.observers != 2 {
		t.Errorf("observers started %d times, want 2", h.call.observers)
	}
	if _, err := await(t, h.tr.Connect(context.Background(), validAuth())); err != nil {
		t.Fatalf("connect: %v", err)
	}
	got := h.rec.stateList()
	if len(got) != 3 || got[0] != domain.TransportStateInitialized || got[1] != domain.TransportStateConnecting {
		t.Errorf("states = %v", got)
	}
}

func TestTransport_MalformedAuthKeepsState(t *testing.T) {
	h := newHarness(t)

	for _, data := range []string{`not json`, `{"token":"x"}`, `{"room_url":""}`} {
		_, err := await(t, h.tr.Connect(context.Background(), domain.AuthBundle{Data: data}))
		if !errors.Is(err, core.ErrMalformedAuthPayload) {
			t.Errorf("%q: err = %v", data, err)
		}
	}
	if got := h.rec.stateList(); len(got) != 0 {
		t.Errorf("state changed: %v", got)
	}
	if h.factories != 0 {
		t.Error("call object created for malformed auth")
	}
}

func TestTransport_NotInitialized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ops := map[string]*future.Future[Unit]{
		"disconnect": h.tr.Disconnect(ctx),
		"send":       h.tr.SendMessage(ctx, domain.MsgClientToServer{Type: "ping"}),
		"enable mic": h.tr.EnableMic(ctx, true),
		"update cam": h.tr.UpdateCam(ctx, "cam-1"),
		"update mic": h.tr.UpdateMic(ctx, "mic-1"),
	}
	for name, f := range ops {
		if _, err := await(t, f); !errors.Is(err, core.ErrNotInitialized) {
			t.Errorf("%s: err = %v, want ErrNotInitialized", name, err)
		}
	}
	if h.tr.State(ctx) != domain.TransportStateIdle {
		t.Errorf("state = %v", h.tr.State(ctx))
	}
	if mics, _ := await(t, h.tr.GetAllMics(ctx)); len(mics) != 0 {
		t.Errorf("mics = %v", mics)
	}
	if h.tr.SelectedMic(ctx) != nil {
		t.Error("selected mic without a call")
	}
}

func TestTransport_JoinFailure(t *testing.T) {
	h := newHarness(t)
	h.call.joinErr = errors.New("room closed")

	_, err := await(t, h.tr.Connect(context.Background(), validAuth()))
	var opErr *core.OperationFailedError
	if !errors.As(err, &opErr) {
		t.Fatalf("err = %v, want OperationFailedError", err)
	}
	h.flush(t)

	got := h.rec.stateList()
	if len(got) != 2 || got[1] != domain.TransportStateError {
		t.Errorf("states = %v", got)
	}
	if h.rec.connected != 0 {
		t.Error("OnConnected after join failure")
	}

	// retry after error
	h.call.mu.Lock()
	h.call.joinErr = nil
	h.call.mu.Unlock()
	if _, err := await(t, h.tr.Connect(context.Background(), validAuth())); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if h.tr.State(context.Background()) != domain.TransportStateConnected {
		t.Errorf("state after retry = %v", h.tr.State(context.Background()))
	}
}

func TestTransport_InputFailureFailsConnect(t *testing.T) {
	h := newHarness(t)
	h.call.inputsErr = errors.New("mic busy")

	_, err := await(t, h.tr.Connect(context.Background(), validAuth()))
	var opErr *core.OperationFailedError
	if !errors.As(err, &opErr) {
		t.Fatalf("err = %v, want OperationFailedError", err)
	}
	h.flush(t)

	want := []domain.TransportState{domain.TransportStateConnecting, domain.TransportStateError}
	got := h.rec.stateList()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
	if h.rec.connected != 0 {
		t.Error("OnConnected after input failure")
	}
	if h.call.joinedURL != "" {
		t.Errorf("joined %q after input failure", h.call.joinedURL)
	}
}

func TestTransport_FactoryFailure(t *testing.T) {
	th := thread.New("transport-test")
	t.Cleanup(th.Stop)
	rec := &recorder{}
	tr := NewTransport(Context{Thread: th, Callbacks: rec, Options: DefaultOptions()},
		core.CallFactoryFunc(func(core.EventSink) (core.CallClient, error) {
			panic("sdk blew up")
		}))

	_, err := await(t, tr.Connect(context.Background(), validAuth()))
	var exc *core.ExceptionThrownError
	if !errors.As(err, &exc) {
		t.Fatalf("err = %v, want ExceptionThrownError", err)
	}
	onThread(t, th, func(context.Context) {})
	if tr.State(context.Background()) != domain.TransportStateError {
		t.Errorf("state = %v", tr.State(context.Background()))
	}
}

func TestTransport_LeftCallState(t *testing.T) {
	h := newHarness(t)
	if _, err := await(t, h.tr.Connect(context.Background(), validAuth())); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h.call.emit(core.ParticipantJoined{Participant: core.CallParticipant{Info: participant("bot", false)}})

	if _, err := await(t, h.tr.Disconnect(context.Background())); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	h.call.emit(core.CallStateUpdated{State: core.CallStateLeft})
	h.flush(t)

	if h.tr.State(context.Background()) != domain.TransportStateDisconnected {
		t.Errorf("state = %v", h.tr.State(context.Background()))
	}
	if h.rec.disconnected != 1 {
		t.Errorf("OnDisconnected called %d times", h.rec.disconnected)
	}
	if len(h.tr.Participants(context.Background())) != 0 {
		t.Error("registry not cleared")
	}
	if h.tr.Bot(context.Background()) != nil {
		t.Error("bot still set")
	}
}

func TestTransport_RoutesAppMessages(t *testing.T) {
	h := newHarness(t)
	if _, err := await(t, h.tr.InitDevices(context.Background())); err != nil {
		t.Fatal(err)
	}

	h.call.emit(core.AppMessage{Data: []byte(`{"label":"rtvi-ai","type":"bot-ready","id":"1","data":{}}`), From: "bot"})
	h.call.emit(core.AppMessage{Data: []byte(`{"label":"other"}`), From: "bot"})
	h.flush(t)

	if len(h.rec.messages) != 1 || h.rec.messages[0].Type != "bot-ready" {
		t.Errorf("messages = %+v", h.rec.messages)
	}
}

func TestTransport_SendMessage(t *testing.T) {
	h := newHarness(t)
	if _, err := await(t, h.tr.InitDevices(context.Background())); err != nil {
		t.Fatal(err)
	}

	msg := domain.MsgClientToServer{ID: "42", Label: domain.ProtocolLabel, Type: "client-ready", Data: json.RawMessage(`{"v":1}`)}
	if _, err := await(t, h.tr.SendMessage(context.Background(), msg)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(h.call.sent) != 1 {
		t.Fatalf("sent %d messages", len(h.call.sent))
	}
	var decoded domain.MsgClientToServer
	if err := json.Unmarshal(h.call.sent[0], &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != "client-ready" || decoded.Label != domain.ProtocolLabel {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestTransport_RemoteLevelsAndBot(t *testing.T) {
	h := newHarness(t)
	if _, err := await(t, h.tr.InitDevices(context.Background())); err != nil {
		t.Fatal(err)
	}
	audio := domain.MediaTrackID("bot-audio")
	h.call.mu.Lock()
	h.call.participants = core.CallParticipants{
		Local: core.CallParticipant{Info: participant("me", true)},
		All: []core.CallParticipant{
			{Info: participant("me", true)},
			{Info: participant("bot", false), Audio: &audio},
		},
	}
	h.call.mu.Unlock()

	h.call.emit(core.CallStateUpdated{State: core.CallStateJoined})
	h.call.emit(core.RemoteAudioLevels{Levels: map[domain.ParticipantID]float32{"bot": 0.5, "ghost": 0.9}})
	h.flush(t)

	if len(h.rec.remote) != 1 || h.rec.remote[0] != "bot" {
		t.Errorf("remote levels forwarded for %v", h.rec.remote)
	}
	if len(h.rec.botSpeaking) != 1 || !h.rec.botSpeaking[0] {
		t.Errorf("bot speaking = %v", h.rec.botSpeaking)
	}
	if bot := h.tr.Bot(context.Background()); bot == nil || bot.ID != "bot" {
		t.Errorf("bot = %v", bot)
	}
	tracks := h.tr.Tracks(context.Background())
	if tracks.Bot == nil || tracks.Bot.Audio == nil || *tracks.Bot.Audio != audio {
		t.Errorf("tracks = %+v", tracks)
	}

	// bot leaving while speaking ends its speech
	h.call.emit(core.ParticipantLeft{Participant: core.CallParticipant{Info: participant("bot", false)}, Reason: "hangup"})
	h.flush(t)
	if len(h.rec.botSpeaking) != 2 || h.rec.botSpeaking[1] {
		t.Errorf("bot speaking = %v", h.rec.botSpeaking)
	}
	if last := h.rec.bots[len(h.rec.bots)-1]; last != nil {
		t.Errorf("bot after leave = %v", last)
	}
}

func TestTransport_DeviceSelection(t *testing.T) {
	h := newHarness(t)
	h.call.devices = core.Devices{
		Audio:  []domain.MediaDeviceInfo{{ID: "mic-1", Name: "Built-in"}, {ID: "mic-2", Name: "Headset"}},
		Camera: []domain.MediaDeviceInfo{{ID: "cam-1", Name: "Webcam"}},
	}
	ctx := context.Background()
	if _, err := await(t, h.tr.InitDevices(ctx)); err != nil {
		t.Fatal(err)
	}

	if _, err := await(t, h.tr.UpdateMic(ctx, "mic-2")); err != nil {
		t.Fatal(err)
	}
	if _, err := await(t, h.tr.UpdateCam(ctx, "cam-1")); err != nil {
		t.Fatal(err)
	}
	if mic := h.tr.SelectedMic(ctx); mic == nil || mic.Name != "Headset" {
		t.Errorf("selected mic = %v", mic)
	}
	if cam := h.tr.SelectedCam(ctx); cam == nil || cam.ID != "cam-1" {
		t.Errorf("selected cam = %v", cam)
	}
	if cams, _ := await(t, h.tr.GetAllCams(ctx)); len(cams) != 1 {
		t.Errorf("cams = %v", cams)
	}
}

func TestTransport_ReleaseEndsSpeech(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := await(t, h.tr.InitDevices(ctx)); err != nil {
		t.Fatal(err)
	}
	h.call.mu.Lock()
	h.call.participants = core.CallParticipants{
		Local: core.CallParticipant{Info: participant("me", true)},
		All: []core.CallParticipant{
			{Info: participant("me", true)},
			{Info: participant("bot", false)},
		},
	}
	h.call.mu.Unlock()

	h.call.emit(core.CallStateUpdated{State: core.CallStateJoined})
	h.call.emit(core.LocalAudioLevel{Level: 0.5})
	h.call.emit(core.RemoteAudioLevels{Levels: map[domain.ParticipantID]float32{"bot": 0.5}})
	h.flush(t)

	h.tr.Release(ctx)

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	if len(h.rec.userSpeaking) != 2 || h.rec.userSpeaking[1] {
		t.Errorf("user speaking = %v", h.rec.userSpeaking)
	}
	if len(h.rec.botSpeaking) != 2 || h.rec.botSpeaking[1] {
		t.Errorf("bot speaking = %v", h.rec.botSpeaking)
	}
	if last := h.rec.bots[len(h.rec.bots)-1]; last != nil {
		t.Errorf("bot after release = %v", last)
	}
}

func TestTransport_ReleaseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := await(t, h.tr.InitDevices(ctx)); err != nil {
		t.Fatal(err)
	}

	h.tr.Release(ctx)
	h.tr.Release(ctx)
	if h.call.released != 1 {
		t.Errorf("released %d times", h.call.released)
	}
	if _, err := await(t, h.tr.Disconnect(ctx)); !errors.Is(err, core.ErrNotInitialized) {
		t.Errorf("disconnect after release: %v", err)
	}
	if _, err := await(t, h.tr.InitDevices(ctx)); err != nil {
		t.Fatal(err)
	}
	if h.factories != 2 {
		t.Errorf("factory called %d times after release", h.factories)
	}
}
