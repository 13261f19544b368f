package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	// Strict makes off-thread access panic instead of logging.
	Strict bool `mapstructure:"strict"`

	Room      RoomConfig      `mapstructure:"room"`
	Transport TransportConfig `mapstructure:"transport"`
	Signal    SignalConfig    `mapstructure:"signal"`
	RTC       RTCConfig       `mapstructure:"rtc"`
}

type RoomConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
	Name  string `mapstructure:"name"`
}

type TransportConfig struct {
	EnableMic          bool          `mapstructure:"enable_mic"`
	EnableCam          bool          `mapstructure:"enable_cam"`
	AudioLevelInterval time.Duration `mapstructure:"audio_level_interval"`
	SpeakingThreshold  float32       `mapstructure:"speaking_threshold"`
	SilenceDelay       time.Duration `mapstructure:"silence_delay"`
}

type SignalConfig struct {
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	// RateLimit caps outbound frames of one type per RateInterval.
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type ICEServerConfig struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type DeviceConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

type RTCConfig struct {
	ICEServers  []ICEServerConfig `mapstructure:"ice_servers"`
	Microphones []DeviceConfig    `mapstructure:"microphones"`
	Cameras     []DeviceConfig    `mapstructure:"cameras"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("strict", false)

	v.SetDefault("room.url", "")
	v.SetDefault("room.token", "")
	v.SetDefault("room.name", "voicebridge")

	v.SetDefault("transport.enable_mic", true)
	v.SetDefault("transport.enable_cam", false)
	v.SetDefault("transport.audio_level_interval", "100ms")
	v.SetDefault("transport.speaking_threshold", 0.05)
	v.SetDefault("transport.silence_delay", "750ms")

	v.SetDefault("signal.read_limit", 32768)
	v.SetDefault("signal.ping_period", "54s")
	v.SetDefault("signal.write_timeout", "5s")
	v.SetDefault("signal.send_buffer", 32)
	v.SetDefault("signal.rate_limit", 50)
	v.SetDefault("signal.rate_interval", "1s")

	v.SetDefault("rtc.ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
	v.SetDefault("rtc.microphones", []map[string]any{
		{"id": "default", "name": "Default microphone"},
	})
	v.SetDefault("rtc.cameras", []map[string]any{})
}

// Load reads path when given, otherwise config/config.<CONFIG_ENV>.yaml.
// VOICEBRIDGE_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := path
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}

	v.SetConfigFile(fileName)
	v.SetEnvPrefix("VOICEBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("room", cfg.Room.URL).Msg("config")
	return &cfg, nil
}
