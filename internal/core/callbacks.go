package core

import "github.com/dkeye/voicebridge/internal/domain"

// Callbacks are pushed to the owning voice client, always on the transport thread.
type Callbacks interface {
	OnConnected()
	OnDisconnected()
	OnTransportStateChanged(state domain.TransportState)

	OnUserAudioLevel(level float32)
	OnRemoteAudioLevel(level float32, participant domain.Participant)
	OnUserStartedSpeaking()
	OnUserStoppedSpeaking()
	OnBotStartedSpeaking()
	OnBotStoppedSpeaking()
	OnBotChanged(bot *domain.Participant)

	OnInputsUpdated(camera, mic bool)

	OnMessage(msg domain.MsgServerToClient)
	OnPipecatMetrics(metrics domain.PipecatMetrics)
}

// NoopCallbacks can be embedded to implement only a subset of Callbacks.
type NoopCallbacks struct{}

func (NoopCallbacks) OnConnected()                                   {}
func (NoopCallbacks) OnDisconnected()                                {}
func (NoopCallbacks) OnTransportStateChanged(domain.TransportState)  {}
func (NoopCallbacks) OnUserAudioLevel(float32)                       {}
func (NoopCallbacks) OnRemoteAudioLevel(float32, domain.Participant) {}
func (NoopCallbacks) OnUserStartedSpeaking()                         {}
func (NoopCallbacks) OnUserStoppedSpeaking()                         {}
func (NoopCallbacks) OnBotStartedSpeaking()                          {}
func (NoopCallbacks) OnBotStoppedSpeaking()                          {}
func (NoopCallbacks) OnBotChanged(*domain.Participant)               {}
func (NoopCallbacks) OnInputsUpdated(bool, bool)                     {}
func (NoopCallbacks) OnMessage(domain.MsgServerToClient)             {}
func (NoopCallbacks) OnPipecatMetrics(domain.PipecatMetrics)         {}
