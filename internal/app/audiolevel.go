package app

import (
	"context"
	"time"

	"github.com/dkeye/voicebridge/internal/thread"
)

const (
	DefaultSpeakingThreshold = 0.05
	DefaultSilenceDelay      = 750 * time.Millisecond
)

// AudioLevelProcessor turns level samples into speaking / silence edges.
// Silence is only reported after silenceDelay without a loud sample.
type AudioLevelProcessor struct {
	th           *thread.Thread
	onIsSpeaking func(ctx context.Context, speaking bool)
	threshold    float32
	silenceDelay time.Duration

	speaking       bool
	silencePending *thread.Timer
}

func NewAudioLevelProcessor(
	th *thread.Thread,
	threshold float32,
	silenceDelay time.Duration,
	onIsSpeaking func(ctx context.Context, speaking bool),
) *AudioLevelProcessor {
	if threshold <= 0 {
		threshold = DefaultSpeakingThreshold
	}
	if silenceDelay <= 0 {
		silenceDelay = DefaultSilenceDelay
	}
	return &AudioLevelProcessor{
		th:           th,
		onIsSpeaking: onIsSpeaking,
		threshold:    threshold,
		silenceDelay: silenceDelay,
	}
}

func (p *AudioLevelProcessor) OnLevelChanged(ctx context.Context, level float32) {
	p.th.AssertCurrent(ctx)

	if level > p.threshold {
		if p.silencePending != nil {
			p.silencePending.Cancel(ctx)
			p.silencePending = nil
		}
		if !p.speaking {
			p.speaking = true
			p.onIsSpeaking(ctx, true)
		}
		return
	}

	if p.speaking && p.silencePending == nil {
		var timer *thread.Timer
		timer = p.th.PostDelayed(p.silenceDelay, func(ctx context.Context) {
			if p.silencePending != timer {
				return
			}
			p.speaking = false
			p.silencePending = nil
			p.onIsSpeaking(ctx, false)
		})
		p.silencePending = timer
	}
}

func (p *AudioLevelProcessor) Speaking() bool { return p.speaking }

// Reset drops any pending silence timer and forgets the speaking state without
// emitting. It reports whether the source was speaking.
func (p *AudioLevelProcessor) Reset(ctx context.Context) bool {
	p.th.AssertCurrent(ctx)
	if p.silencePending != nil {
		p.silencePending.Cancel(ctx)
		p.silencePending = nil
	}
	was := p.speaking
	p.speaking = false
	return was
}
