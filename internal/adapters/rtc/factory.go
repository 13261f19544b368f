package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/voicebridge/internal/adapters/signal"
	"github.com/dkeye/voicebridge/internal/config"
	"github.com/dkeye/voicebridge/internal/core"
)

// Factory builds Calls sharing one pion API.
type Factory struct {
	api *webrtc.API
	set Settings

	mu   sync.Mutex
	last *Call
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Name: cfg.Room.Name,
		Signal: signal.Options{
			ReadLimit:    cfg.Signal.ReadLimit,
			PingPeriod:   cfg.Signal.PingPeriod,
			WriteTimeout: cfg.Signal.WriteTimeout,
			SendBuffer:   cfg.Signal.SendBuffer,
			Limiter:      signal.NewRateLimiter(cfg.Signal.RateLimit, cfg.Signal.RateInterval),
		},
		ICE:     webrtc.Configuration{ICEServers: ICEServers(cfg.RTC)},
		Catalog: NewCatalog(cfg.RTC),
	}
}

func NewFactory(set Settings) (*Factory, error) {
	api, err := NewAPI()
	if err != nil {
		return nil, err
	}
	return &Factory{api: api, set: set}, nil
}

func (f *Factory) NewCallClient(sink core.EventSink) (core.CallClient, error) {
	call := NewCall(f.api, f.set, sink)
	f.mu.Lock()
	f.last = call
	f.mu.Unlock()
	return call, nil
}

// Current returns the most recently built call, for hosts feeding media.
func (f *Factory) Current() *Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
