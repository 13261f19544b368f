package main

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/domain"
)

// logCallbacks reports transport activity to the log.
type logCallbacks struct {
	core.NoopCallbacks
}

func (logCallbacks) OnConnected() {
	log.Info().Str("module", "voicebridge").Msg("transport connected")
}

func (logCallbacks) OnDisconnected() {
	log.Info().Str("module", "voicebridge").Msg("transport disconnected")
}

func (logCallbacks) OnTransportStateChanged(state domain.TransportState) {
	log.Debug().Str("module", "voicebridge").Stringer("state", state).Msg("transport state")
}

func (logCallbacks) OnUserStartedSpeaking() {
	log.Info().Str("module", "voicebridge").Msg("user started speaking")
}

func (logCallbacks) OnUserStoppedSpeaking() {
	log.Info().Str("module", "voicebridge").Msg("user stopped speaking")
}

func (logCallbacks) OnBotStartedSpeaking() {
	log.Info().Str("module", "voicebridge").Msg("bot started speaking")
}

func (logCallbacks) OnBotStoppedSpeaking() {
	log.Info().Str("module", "voicebridge").Msg("bot stopped speaking")
}

func (logCallbacks) OnBotChanged(bot *domain.Participant) {
	if bot == nil {
		log.Info().Str("module", "voicebridge").Msg("bot gone")
		return
	}
	log.Info().Str("module", "voicebridge").Str("bot", string(bot.ID)).Str("name", bot.DisplayName()).Msg("bot changed")
}

func (logCallbacks) OnInputsUpdated(camera, mic bool) {
	log.Info().Str("module", "voicebridge").Bool("camera", camera).Bool("mic", mic).Msg("inputs updated")
}

func (logCallbacks) OnMessage(msg domain.MsgServerToClient) {
	log.Info().Str("module", "voicebridge").Str("type", msg.Type).Str("id", msg.ID).RawJSON("data", rawOrNull(msg.Data)).Msg("server message")
}

func (logCallbacks) OnPipecatMetrics(m domain.PipecatMetrics) {
	log.Debug().Str("module", "voicebridge").Int("processing", len(m.Processing)).Int("ttfb", len(m.TTFB)).Msg("metrics")
}

func rawOrNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
