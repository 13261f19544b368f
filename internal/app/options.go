package app

import (
	"time"

	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/thread"
)

const DefaultAudioLevelInterval = 100 * time.Millisecond

type Options struct {
	EnableMic bool
	EnableCam bool

	AudioLevelInterval time.Duration
	SpeakingThreshold  float32
	SilenceDelay       time.Duration
}

func DefaultOptions() Options {
	return Options{
		EnableMic:          true,
		EnableCam:          false,
		AudioLevelInterval: DefaultAudioLevelInterval,
		SpeakingThreshold:  DefaultSpeakingThreshold,
		SilenceDelay:       DefaultSilenceDelay,
	}
}

// Context is what the owning voice client hands to a transport.
type Context struct {
	Thread    *thread.Thread
	Callbacks core.Callbacks
	Options   Options
}
