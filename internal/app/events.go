package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/domain"
)

// sink is handed to the provider. Events are marshalled onto the thread in arrival order.
func (t *Transport) sink(ev core.Event) {
	t.th.Post(func(ctx context.Context) { t.handleEvent(ctx, ev) })
}

func (t *Transport) handleEvent(ctx context.Context, ev core.Event) {
	t.th.AssertCurrent(ctx)

	switch e := ev.(type) {
	case core.LocalAudioLevel:
		t.cb.OnUserAudioLevel(e.Level)
		t.userAudio.OnLevelChanged(ctx, e.Level)

	case core.RemoteAudioLevels:
		bot, hasBot := t.registry.Bot()
		for _, p := range t.registry.Snapshot() {
			level, ok := e.Levels[p.ID]
			if !ok {
				continue
			}
			t.cb.OnRemoteAudioLevel(level, p)
			if hasBot && p.ID == bot.ID {
				t.botAudio.OnLevelChanged(ctx, level)
			}
		}

	case core.ParticipantJoined:
		t.botChanged(ctx, t.registry.Upsert(e.Participant.Info))

	case core.ParticipantUpdated:
		t.botChanged(ctx, t.registry.Upsert(e.Participant.Info))

	case core.ParticipantLeft:
		log.Info().Str("module", "app.transport").Str("participant", string(e.Participant.Info.ID)).Str("reason", e.Reason).Msg("participant left")
		t.botChanged(ctx, t.registry.Remove(e.Participant.Info.ID))

	case core.CallStateUpdated:
		t.onCallState(ctx, e.State)

	case core.AppMessage:
		t.router.Route(e.Data, e.From)

	case core.InputsUpdated:
		t.cb.OnInputsUpdated(e.Settings.Camera.Enabled, e.Settings.Microphone.Enabled)

	default:
		log.Warn().Str("module", "app.transport").Type("event", ev).Msg("unknown provider event")
	}
}

func (t *Transport) onCallState(ctx context.Context, state core.CallState) {
	log.Info().Str("module", "app.transport").Stringer("call_state", state).Msg("call state updated")

	switch state {
	case core.CallStateJoined:
		if t.call == nil {
			return
		}
		all := t.call.Participants().All
		snapshot := make([]domain.Participant, 0, len(all))
		for _, p := range all {
			snapshot = append(snapshot, p.Info)
		}
		t.botChanged(ctx, t.registry.Reset(snapshot))

	case core.CallStateLeft:
		t.botChanged(ctx, t.registry.Clear())
		if t.userAudio.Reset(ctx) {
			t.cb.OnUserStoppedSpeaking()
		}

		if t.sm.current() != domain.TransportStateConnected {
			log.Info().Str("module", "app.transport").Stringer("state", t.sm.current()).Msg("left outside of a session, state kept")
			return
		}
		t.sm.set(ctx, domain.TransportStateDisconnected)
		t.cb.OnDisconnected()
	}
}

func (t *Transport) botChanged(ctx context.Context, changed bool) {
	if !changed {
		return
	}
	if t.botAudio.Reset(ctx) {
		t.cb.OnBotStoppedSpeaking()
	}
	if bot, ok := t.registry.Bot(); ok {
		t.cb.OnBotChanged(&bot)
		return
	}
	t.cb.OnBotChanged(nil)
}
