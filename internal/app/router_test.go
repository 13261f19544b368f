package app

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dkeye/voicebridge/internal/domain"
)

type routerSink struct {
	msgs    []domain.MsgServerToClient
	metrics []domain.PipecatMetrics
	logs    bytes.Buffer
}

func newSinkRouter() (*Router, *routerSink) {
	p := &routerSink{}
	r := NewRouter(
		func(m domain.MsgServerToClient) { p.msgs = append(p.msgs, m) },
		func(m domain.PipecatMetrics) { p.metrics = append(p.metrics, m) },
	).WithLogger(zerolog.New(&p.logs).Level(zerolog.WarnLevel))
	return r, p
}

func (p *routerSink) logLines() int {
	s := strings.TrimSpace(p.logs.String())
	if s == "" {
		return 0
	}
	return len(strings.Split(s, "\n"))
}

func TestRouter_ProtocolMessage(t *testing.T) {
	r, p := newSinkRouter()

	class := r.Route([]byte(`{"label":"rtvi-ai","type":"bot-ready","id":"1","data":{"version":"0.2"}}`), "bot")

	if class != ClassProtocol {
		t.Fatalf("expected protocol, got %s", class)
	}
	if len(p.msgs) != 1 || len(p.metrics) != 0 {
		t.Fatalf("expected exactly one protocol message, got %d msgs %d metrics", len(p.msgs), len(p.metrics))
	}
	if p.msgs[0].Type != "bot-ready" || p.msgs[0].ID != "1" {
		t.Errorf("unexpected message: %+v", p.msgs[0])
	}
	if string(p.msgs[0].Data) != `{"version":"0.2"}` {
		t.Errorf("unexpected data: %s", p.msgs[0].Data)
	}
	if n := p.logLines(); n != 0 {
		t.Errorf("expected no diagnostics, got %d", n)
	}
}

func TestRouter_MetricsMessage(t *testing.T) {
	r, p := newSinkRouter()

	class := r.Route([]byte(`{"type":"pipecat-metrics","metrics":{"ttfb":[{"processor":"llm","value":0.25}]}}`), "bot")

	if class != ClassMetrics {
		t.Fatalf("expected metrics, got %s", class)
	}
	if len(p.metrics) != 1 || len(p.msgs) != 0 {
		t.Fatalf("expected exactly one metrics record, got %d metrics %d msgs", len(p.metrics), len(p.msgs))
	}
	m := p.metrics[0]
	if len(m.TTFB) != 1 || m.TTFB[0].Processor != "llm" || m.TTFB[0].Value != 0.25 {
		t.Errorf("unexpected metrics: %+v", m)
	}
}

func TestRouter_LabelTakesPrecedence(t *testing.T) {
	r, p := newSinkRouter()

	class := r.Route([]byte(`{"label":"rtvi-ai","type":"pipecat-metrics","metrics":{}}`), "bot")
	if class != ClassProtocol || len(p.msgs) != 1 || len(p.metrics) != 0 {
		t.Fatalf("label should win over type: class=%s msgs=%d metrics=%d", class, len(p.msgs), len(p.metrics))
	}
}

func TestRouter_NonStringLabelIgnored(t *testing.T) {
	r, p := newSinkRouter()

	class := r.Route([]byte(`{"label":5,"type":"pipecat-metrics","metrics":{}}`), "bot")
	if class != ClassMetrics || len(p.metrics) != 1 {
		t.Fatalf("expected metrics, got %s with %d records", class, len(p.metrics))
	}

	class = r.Route([]byte(`{"label":"other","type":{"n":1}}`), "bot")
	if class != ClassUnhandled {
		t.Fatalf("expected unhandled, got %s", class)
	}
}

func TestRouter_Unhandled(t *testing.T) {
	r, p := newSinkRouter()

	class := r.Route([]byte(`{"label":"other","type":"chat","text":"hi"}`), "someone")

	if class != ClassUnhandled {
		t.Fatalf("expected unhandled, got %s", class)
	}
	if len(p.msgs)+len(p.metrics) != 0 {
		t.Error("unhandled message should not be forwarded")
	}
	if n := p.logLines(); n != 1 {
		t.Errorf("expected one diagnostic, got %d", n)
	}
}

func TestRouter_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":            `{"label":`,
		"protocol bad schema": `{"label":"rtvi-ai","type":7}`,
		"protocol no type":    `{"label":"rtvi-ai","data":{}}`,
		"metrics missing":     `{"type":"pipecat-metrics"}`,
		"metrics not object":  `{"type":"pipecat-metrics","metrics":[1,2]}`,
		"metrics bad schema":  `{"type":"pipecat-metrics","metrics":{"ttfb":"nope"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			r, p := newSinkRouter()

			class := r.Route([]byte(raw), "bot")

			if class != ClassMalformed {
				t.Fatalf("expected malformed, got %s", class)
			}
			if len(p.msgs)+len(p.metrics) != 0 {
				t.Error("malformed message should not be forwarded")
			}
			if n := p.logLines(); n != 1 {
				t.Errorf("expected one diagnostic, got %d", n)
			}
		})
	}
}
