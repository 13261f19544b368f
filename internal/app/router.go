package app

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/domain"
)

type Classification int

const (
	ClassUnhandled Classification = iota
	ClassProtocol
	ClassMetrics
	ClassMalformed
)

func (c Classification) String() string {
	switch c {
	case ClassProtocol:
		return "protocol"
	case ClassMetrics:
		return "metrics"
	case ClassMalformed:
		return "malformed"
	}
	return "unhandled"
}

var (
	errMissingMetrics = errors.New("missing metrics field")
	errMissingType    = errors.New("missing message type")
)

// Router classifies inbound app messages by envelope shape.
type Router struct {
	OnMessage func(domain.MsgServerToClient)
	OnMetrics func(domain.PipecatMetrics)

	logger zerolog.Logger
}

func NewRouter(onMessage func(domain.MsgServerToClient), onMetrics func(domain.PipecatMetrics)) *Router {
	return &Router{
		OnMessage: onMessage,
		OnMetrics: onMetrics,
		logger:    log.With().Str("module", "app.router").Logger(),
	}
}

// WithLogger replaces the router logger.
func (r *Router) WithLogger(logger zerolog.Logger) *Router {
	r.logger = logger
	return r
}

// Route decodes one message and forwards it. Failures are logged, never returned.
func (r *Router) Route(data []byte, from domain.ParticipantID) Classification {
	var env struct {
		Label   json.RawMessage `json:"label"`
		Type    json.RawMessage `json:"type"`
		Metrics json.RawMessage `json:"metrics"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		r.logger.Warn().Err(err).Str("from", string(from)).Msg("bad app message json")
		return ClassMalformed
	}
	label, typ := stringField(env.Label), stringField(env.Type)

	switch {
	case label == domain.ProtocolLabel:
		var msg domain.MsgServerToClient
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Warn().Err(err).Str("from", string(from)).Msg("bad protocol message")
			return ClassMalformed
		}
		if msg.Type == "" {
			r.logger.Warn().Err(errMissingType).Str("from", string(from)).Msg("bad protocol message")
			return ClassMalformed
		}
		r.logger.Debug().Str("type", msg.Type).Str("id", msg.ID).Msg("protocol message")
		if r.OnMessage != nil {
			r.OnMessage(msg)
		}
		return ClassProtocol

	case typ == domain.MetricsType:
		if !isObject(env.Metrics) {
			r.logger.Warn().Err(errMissingMetrics).Str("from", string(from)).Msg("bad metrics message")
			return ClassMalformed
		}
		var metrics domain.PipecatMetrics
		if err := json.Unmarshal(env.Metrics, &metrics); err != nil {
			r.logger.Warn().Err(err).Str("from", string(from)).Msg("bad metrics message")
			return ClassMalformed
		}
		r.logger.Debug().Int("processing", len(metrics.Processing)).Int("ttfb", len(metrics.TTFB)).Msg("metrics message")
		if r.OnMetrics != nil {
			r.OnMetrics(metrics)
		}
		return ClassMetrics
	}

	r.logger.Warn().
		Str("from", string(from)).
		Str("label", label).
		Str("type", typ).
		Bytes("message", data).
		Msg("unhandled app message")
	return ClassUnhandled
}

// stringField returns the JSON string in raw, or "" for any other value.
func stringField(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func isObject(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
