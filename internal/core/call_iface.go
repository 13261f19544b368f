package core

import (
	"time"

	"github.com/dkeye/voicebridge/internal/domain"
)

// Completion is invoked once by the provider when an async request finishes.
// It may be called on any goroutine.
type Completion func(err error)

type CallState int

const (
	CallStateInitialized CallState = iota
	CallStateJoining
	CallStateJoined
	CallStateLeaving
	CallStateLeft
)

func (s CallState) String() string {
	switch s {
	case CallStateInitialized:
		return "initialized"
	case CallStateJoining:
		return "joining"
	case CallStateJoined:
		return "joined"
	case CallStateLeaving:
		return "leaving"
	case CallStateLeft:
		return "left"
	}
	return "unknown"
}

// CallParticipant is the provider's view of a member, including media.
type CallParticipant struct {
	Info  domain.Participant
	Audio *domain.MediaTrackID
	Video *domain.MediaTrackID
}

type CallParticipants struct {
	Local CallParticipant
	// All includes the local participant, in join order.
	All []CallParticipant
}

type Devices struct {
	Audio  []domain.MediaDeviceInfo
	Camera []domain.MediaDeviceInfo
}

type DeviceInput struct {
	Enabled  bool
	DeviceID *domain.MediaDeviceID
}

type InputSettings struct {
	Camera     DeviceInput
	Microphone DeviceInput
}

// DeviceInputUpdate carries only the fields that should change.
type DeviceInputUpdate struct {
	Enabled  *bool
	DeviceID *domain.MediaDeviceID
}

type InputSettingsUpdate struct {
	Camera     *DeviceInputUpdate
	Microphone *DeviceInputUpdate
}

// CallClient is the underlying real-time session SDK.
// Completions and events may arrive on arbitrary goroutines.
type CallClient interface {
	Join(url string, token *string, done Completion)
	Leave(done Completion)
	SendAppMessage(data []byte, done Completion)
	UpdateInputs(update InputSettingsUpdate, done Completion)
	SetAudioDevice(id domain.MediaDeviceID, done Completion)

	AvailableDevices() Devices
	Inputs() InputSettings
	Participants() CallParticipants

	StartLocalAudioLevelObserver(interval time.Duration, done Completion)
	StartRemoteParticipantsAudioLevelObserver(interval time.Duration, done Completion)

	Release()
}

// CallFactory builds a CallClient that reports to sink.
type CallFactory interface {
	NewCallClient(sink EventSink) (CallClient, error)
}

type CallFactoryFunc func(sink EventSink) (CallClient, error)

func (f CallFactoryFunc) NewCallClient(sink EventSink) (CallClient, error) { return f(sink) }
