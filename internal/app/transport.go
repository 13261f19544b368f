package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/domain"
	"github.com/dkeye/voicebridge/internal/future"
	"github.com/dkeye/voicebridge/internal/thread"
)

type Unit = struct{}

// Transport adapts a provider CallClient to the voice client contract.
// All of its fields are confined to its thread.
type Transport struct {
	th      *thread.Thread
	cb      core.Callbacks
	opts    Options
	factory core.CallFactory

	sm                 *stateMachine
	devicesInitialized bool
	call               core.CallClient

	registry  *Registry
	router    *Router
	userAudio *AudioLevelProcessor
	botAudio  *AudioLevelProcessor
}

func NewTransport(tc Context, factory core.CallFactory) *Transport {
	cb := tc.Callbacks
	if cb == nil {
		cb = core.NoopCallbacks{}
	}
	opts := tc.Options
	if opts.AudioLevelInterval <= 0 {
		opts.AudioLevelInterval = DefaultAudioLevelInterval
	}

	t := &Transport{
		th:       tc.Thread,
		cb:       cb,
		opts:     opts,
		factory:  factory,
		registry: NewRegistry(),
	}
	t.sm = newStateMachine(t.th, cb.OnTransportStateChanged)
	t.router = NewRouter(cb.OnMessage, cb.OnPipecatMetrics)
	t.userAudio = NewAudioLevelProcessor(t.th, opts.SpeakingThreshold, opts.SilenceDelay, func(_ context.Context, speaking bool) {
		if speaking {
			cb.OnUserStartedSpeaking()
		} else {
			cb.OnUserStoppedSpeaking()
		}
	})
	t.botAudio = NewAudioLevelProcessor(t.th, opts.SpeakingThreshold, opts.SilenceDelay, func(_ context.Context, speaking bool) {
		if speaking {
			cb.OnBotStartedSpeaking()
		} else {
			cb.OnBotStoppedSpeaking()
		}
	})
	return t
}

func (t *Transport) Thread() *thread.Thread { return t.th }

// InitDevices creates the call object once and starts the audio level observers.
func (t *Transport) InitDevices(ctx context.Context) *future.Future[Unit] {
	return future.OnThread(ctx, t.th, func(ctx context.Context) *future.Future[Unit] {
		log.Info().Str("module", "app.transport").Msg("initDevices()")

		if t.devicesInitialized {
			return future.Resolved(t.th, Unit{})
		}

		call, err := t.newCall()
		if err != nil {
			log.Error().Err(err).Str("module", "app.transport").Msg("exception in initDevices")
			return future.Failed[Unit](t.th, core.NewExceptionThrown(err))
		}

		call.StartLocalAudioLevelObserver(t.opts.AudioLevelInterval, logFailure("start local audio level observer"))
		call.StartRemoteParticipantsAudioLevelObserver(t.opts.AudioLevelInterval, logFailure("start remote audio level observer"))
		t.call = call

		if t.sm.current() == domain.TransportStateIdle {
			t.sm.set(ctx, domain.TransportStateInitialized)
		}
		t.devicesInitialized = true
		return future.Resolved(t.th, Unit{})
	})
}

func (t *Transport) newCall() (call core.CallClient, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("call client panicked: %v", r)
		}
	}()
	if t.factory == nil {
		return nil, fmt.Errorf("no call factory")
	}
	return t.factory.NewCallClient(t.sink)
}

// Connect decodes the auth bundle, makes sure devices are ready and joins the room.
func (t *Transport) Connect(ctx context.Context, auth domain.AuthBundle) *future.Future[Unit] {
	return future.OnThread(ctx, t.th, func(ctx context.Context) *future.Future[Unit] {
		log.Info().Str("module", "app.transport").Msg("connect()")

		room, err := domain.ParseRoomAuth(auth)
		if err != nil {
			return future.Failed[Unit](t.th, core.MalformedAuth(err))
		}

		t.sm.set(ctx, domain.TransportStateConnecting)

		ready := t.InitDevices(ctx)
		mic := future.Chain(ready, func(ctx context.Context, _ Unit) *future.Future[Unit] {
			return t.EnableMic(ctx, t.opts.EnableMic)
		})
		cam := future.Chain(mic, func(ctx context.Context, _ Unit) *future.Future[Unit] {
			return t.EnableCam(ctx, t.opts.EnableCam)
		})
		joined := future.Chain(cam, func(ctx context.Context, _ Unit) *future.Future[Unit] {
			return t.withCall(ctx, func(call core.CallClient) *future.Future[Unit] {
				return future.WithPromise(t.th, func(p *future.Future[Unit]) {
					call.Join(room.RoomURL, room.Token, t.completion(func(ctx context.Context, err error) {
						if err != nil {
							p.ResolveErr(core.NewOperationFailed("join", err))
							return
						}
						t.sm.set(ctx, domain.TransportStateConnected)
						t.cb.OnConnected()
						p.ResolveOk(Unit{})
					}))
				})
			})
		})
		return joined.WithErrorCallback(func(ctx context.Context, err error) {
			log.Error().Err(err).Str("module", "app.transport").Msg("connect failed")
			t.sm.set(ctx, domain.TransportStateError)
		})
	})
}

func (t *Transport) Disconnect(ctx context.Context) *future.Future[Unit] {
	return future.OnThread(ctx, t.th, func(ctx context.Context) *future.Future[Unit] {
		return t.withCall(ctx, func(call core.CallClient) *future.Future[Unit] {
			return future.WithPromise(t.th, func(p *future.Future[Unit]) {
				call.Leave(t.resolveWith(p, "leave"))
			})
		})
	})
}

func (t *Transport) SendMessage(ctx context.Context, msg domain.MsgClientToServer) *future.Future[Unit] {
	return future.OnThread(ctx, t.th, func(ctx context.Context) *future.Future[Unit] {
		return t.withCall(ctx, func(call core.CallClient) *future.Future[Unit] {
			data, err := json.Marshal(msg)
			if err != nil {
				return future.Failed[Unit](t.th, core.NewExceptionThrown(err))
			}
			return future.WithPromise(t.th, func(p *future.Future[Unit]) {
				call.SendAppMessage(data, t.resolveWith(p, "send app message"))
			})
		})
	})
}

func (t *Transport) EnableMic(ctx context.Context, enable bool) *future.Future[Unit] {
	return t.updateInputs(ctx, "enable mic", core.InputSettingsUpdate{
		Microphone: &core.DeviceInputUpdate{Enabled: &enable},
	})
}

func (t *Transport) EnableCam(ctx context.Context, enable bool) *future.Future[Unit] {
	return t.updateInputs(ctx, "enable cam", core.InputSettingsUpdate{
		Camera: &core.DeviceInputUpdate{Enabled: &enable},
	})
}

func (t *Transport) UpdateCam(ctx context.Context, id domain.MediaDeviceID) *future.Future[Unit] {
	return t.updateInputs(ctx, "update cam", core.InputSettingsUpdate{
		Camera: &core.DeviceInputUpdate{DeviceID: &id},
	})
}

func (t *Transport) UpdateMic(ctx context.Context, id domain.MediaDeviceID) *future.Future[Unit] {
	return future.OnThread(ctx, t.th, func(ctx context.Context) *future.Future[Unit] {
		return t.withCall(ctx, func(call core.CallClient) *future.Future[Unit] {
			return future.WithPromise(t.th, func(p *future.Future[Unit]) {
				call.SetAudioDevice(id, t.resolveWith(p, "update mic"))
			})
		})
	})
}

func (t *Transport) updateInputs(ctx context.Context, op string, update core.InputSettingsUpdate) *future.Future[Unit] {
	return future.OnThread(ctx, t.th, func(ctx context.Context) *future.Future[Unit] {
		return t.withCall(ctx, func(call core.CallClient) *future.Future[Unit] {
			return future.WithPromise(t.th, func(p *future.Future[Unit]) {
				call.UpdateInputs(update, t.resolveWith(p, op))
			})
		})
	})
}

func (t *Transport) GetAllMics(ctx context.Context) *future.Future[[]domain.MediaDeviceInfo] {
	return future.Resolved(t.th, read(ctx, t.th, func(context.Context) []domain.MediaDeviceInfo {
		return t.mics()
	}))
}

func (t *Transport) GetAllCams(ctx context.Context) *future.Future[[]domain.MediaDeviceInfo] {
	return future.Resolved(t.th, read(ctx, t.th, func(context.Context) []domain.MediaDeviceInfo {
		return t.cams()
	}))
}

func (t *Transport) mics() []domain.MediaDeviceInfo {
	if t.call == nil {
		return []domain.MediaDeviceInfo{}
	}
	return nonNil(t.call.AvailableDevices().Audio)
}

func (t *Transport) cams() []domain.MediaDeviceInfo {
	if t.call == nil {
		return []domain.MediaDeviceInfo{}
	}
	return nonNil(t.call.AvailableDevices().Camera)
}

func (t *Transport) SelectedMic(ctx context.Context) *domain.MediaDeviceInfo {
	return read(ctx, t.th, func(context.Context) *domain.MediaDeviceInfo {
		if t.call == nil {
			return nil
		}
		return findDevice(t.mics(), t.call.Inputs().Microphone.DeviceID)
	})
}

func (t *Transport) SelectedCam(ctx context.Context) *domain.MediaDeviceInfo {
	return read(ctx, t.th, func(context.Context) *domain.MediaDeviceInfo {
		if t.call == nil {
			return nil
		}
		return findDevice(t.cams(), t.call.Inputs().Camera.DeviceID)
	})
}

func (t *Transport) IsMicEnabled(ctx context.Context) bool {
	return read(ctx, t.th, func(context.Context) bool {
		return t.call != nil && t.call.Inputs().Microphone.Enabled
	})
}

func (t *Transport) IsCamEnabled(ctx context.Context) bool {
	return read(ctx, t.th, func(context.Context) bool {
		return t.call != nil && t.call.Inputs().Camera.Enabled
	})
}

// Tracks reads the current tracks from the provider. Bot is nil when no remote participant exists.
func (t *Transport) Tracks(ctx context.Context) domain.Tracks {
	return read(ctx, t.th, func(context.Context) domain.Tracks {
		if t.call == nil {
			return domain.Tracks{}
		}
		participants := t.call.Participants()
		tracks := domain.Tracks{
			Local: domain.ParticipantTracks{
				Audio: participants.Local.Audio,
				Video: participants.Local.Video,
			},
		}
		for _, p := range participants.All {
			if !p.Info.Local {
				tracks.Bot = &domain.ParticipantTracks{Audio: p.Audio, Video: p.Video}
				break
			}
		}
		return tracks
	})
}

func (t *Transport) State(ctx context.Context) domain.TransportState {
	return read(ctx, t.th, func(context.Context) domain.TransportState {
		return t.sm.current()
	})
}

func (t *Transport) Participants(ctx context.Context) []domain.Participant {
	return read(ctx, t.th, func(context.Context) []domain.Participant {
		return t.registry.Snapshot()
	})
}

func (t *Transport) Bot(ctx context.Context) *domain.Participant {
	return read(ctx, t.th, func(context.Context) *domain.Participant {
		if bot, ok := t.registry.Bot(); ok {
			return &bot
		}
		return nil
	})
}

// Release tears the call object down. Calling it again is a no-op.
func (t *Transport) Release(ctx context.Context) {
	read(ctx, t.th, func(ctx context.Context) Unit {
		if t.call == nil {
			return Unit{}
		}
		log.Info().Str("module", "app.transport").Msg("release()")
		t.call.Release()
		t.call = nil
		t.devicesInitialized = false
		t.botChanged(ctx, t.registry.Clear())
		if t.userAudio.Reset(ctx) {
			t.cb.OnUserStoppedSpeaking()
		}
		return Unit{}
	})
}

func (t *Transport) withCall(ctx context.Context, action func(call core.CallClient) *future.Future[Unit]) *future.Future[Unit] {
	t.th.AssertCurrent(ctx)
	if t.call == nil {
		return future.Failed[Unit](t.th, core.ErrNotInitialized)
	}
	return action(t.call)
}

// completion marshals a provider completion back onto the thread.
func (t *Transport) completion(fn func(ctx context.Context, err error)) core.Completion {
	return func(err error) {
		t.th.Post(func(ctx context.Context) { fn(ctx, err) })
	}
}

func (t *Transport) resolveWith(p *future.Future[Unit], op string) core.Completion {
	return t.completion(func(_ context.Context, err error) {
		if err != nil {
			p.ResolveErr(core.NewOperationFailed(op, err))
			return
		}
		p.ResolveOk(Unit{})
	})
}

func logFailure(what string) core.Completion {
	return func(err error) {
		if err != nil {
			log.Error().Err(err).Str("module", "app.transport").Msgf("failed to %s", what)
		}
	}
}

// read runs fn on the thread and waits for it, or runs it inline when already there.
func read[V any](ctx context.Context, th *thread.Thread, fn func(ctx context.Context) V) V {
	if th.IsCurrent(ctx) {
		return fn(ctx)
	}
	out := make(chan V, 1)
	th.Post(func(ctx context.Context) { out <- fn(ctx) })
	select {
	case v := <-out:
		return v
	case <-ctx.Done():
	case <-th.Done():
	}
	var zero V
	return zero
}

func findDevice(devices []domain.MediaDeviceInfo, id *domain.MediaDeviceID) *domain.MediaDeviceInfo {
	if id == nil {
		return nil
	}
	for _, d := range devices {
		if d.ID == *id {
			return &d
		}
	}
	return nil
}

func nonNil(devices []domain.MediaDeviceInfo) []domain.MediaDeviceInfo {
	if devices == nil {
		return []domain.MediaDeviceInfo{}
	}
	return devices
}
