package core

import "github.com/dkeye/voicebridge/internal/domain"

// Event is one provider notification. The set is closed; see the cases below.
type Event interface {
	isEvent()
}

// EventSink receives provider events from any goroutine.
type EventSink func(Event)

type LocalAudioLevel struct {
	Level float32
}

type RemoteAudioLevels struct {
	Levels map[domain.ParticipantID]float32
}

type ParticipantJoined struct {
	Participant CallParticipant
}

type ParticipantUpdated struct {
	Participant CallParticipant
}

type ParticipantLeft struct {
	Participant CallParticipant
	Reason      string
}

type CallStateUpdated struct {
	State CallState
}

type AppMessage struct {
	Data []byte
	From domain.ParticipantID
}

type InputsUpdated struct {
	Settings InputSettings
}

func (LocalAudioLevel) isEvent()    {}
func (RemoteAudioLevels) isEvent()  {}
func (ParticipantJoined) isEvent()  {}
func (ParticipantUpdated) isEvent() {}
func (ParticipantLeft) isEvent()    {}
func (CallStateUpdated) isEvent()   {}
func (AppMessage) isEvent()         {}
func (InputsUpdated) isEvent()      {}
