package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/domain"
	"github.com/dkeye/voicebridge/internal/thread"
)

var transitions = map[domain.TransportState][]domain.TransportState{
	domain.TransportStateIdle:         {domain.TransportStateInitialized, domain.TransportStateConnecting},
	domain.TransportStateInitialized:  {domain.TransportStateConnecting},
	domain.TransportStateConnecting:   {domain.TransportStateConnected, domain.TransportStateError},
	domain.TransportStateConnected:    {domain.TransportStateDisconnected},
	domain.TransportStateDisconnected: {domain.TransportStateConnecting},
	domain.TransportStateError:        {domain.TransportStateConnecting},
}

// CanTransition reports whether from -> to is part of the connection lifecycle.
func CanTransition(from, to domain.TransportState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// stateMachine holds the transport state. Every change is notified synchronously
// on the thread, in the order it happens.
type stateMachine struct {
	th     *thread.Thread
	state  domain.TransportState
	notify func(domain.TransportState)
}

func newStateMachine(th *thread.Thread, notify func(domain.TransportState)) *stateMachine {
	return &stateMachine{th: th, state: domain.TransportStateIdle, notify: notify}
}

func (m *stateMachine) current() domain.TransportState { return m.state }

func (m *stateMachine) set(ctx context.Context, next domain.TransportState) {
	m.th.AssertCurrent(ctx)
	prev := m.state
	if !CanTransition(prev, next) {
		log.Warn().Str("module", "app.state").Stringer("from", prev).Stringer("to", next).Msg("unexpected transition")
	}
	log.Info().Str("module", "app.state").Stringer("from", prev).Stringer("to", next).Msg("setState")
	m.state = next
	if m.notify != nil {
		m.notify(next)
	}
}
