package domain

import "encoding/json"

const (
	// ProtocolLabel marks application messages that belong to the voice protocol.
	ProtocolLabel = "rtvi-ai"
	// MetricsType marks telemetry messages emitted by the pipeline.
	MetricsType = "pipecat-metrics"
)

type MsgServerToClient struct {
	ID    string          `json:"id,omitempty"`
	Label string          `json:"label"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type MsgClientToServer struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type PipecatMetricsData struct {
	Processor string  `json:"processor"`
	Value     float64 `json:"value"`
}

type PipecatMetrics struct {
	Processing []PipecatMetricsData `json:"processing,omitempty"`
	TTFB       []PipecatMetricsData `json:"ttfb,omitempty"`
	Characters []PipecatMetricsData `json:"characters,omitempty"`
}
