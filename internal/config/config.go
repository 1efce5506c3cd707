package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	// ParticipantID is the hub's own identity in the session.
	ParticipantID string   `mapstructure:"participant_id"`
	ICEServers    []string `mapstructure:"ice_servers"`

	Presence PresenceConfig `mapstructure:"presence"`
	Share    ShareConfig    `mapstructure:"share"`
}

type PresenceConfig struct {
	// RemovalDelay is the debounce window between a mute and the removal.
	RemovalDelay time.Duration `mapstructure:"removal_delay"`
	// MuteAfter is how long a remote track may stay silent before it is reported muted.
	MuteAfter       time.Duration `mapstructure:"mute_after"`
	ClassifyTimeout time.Duration `mapstructure:"classify_timeout"`
	// FaceSizeMax: video whose width and height are both within this many pixels is a face thumbnail.
	FaceSizeMax int `mapstructure:"face_size_max"`
}

type ShareConfig struct {
	DeviceID string         `mapstructure:"device_id"`
	MimeType string         `mapstructure:"mime_type"`
	Devices  []DeviceConfig `mapstructure:"devices"`
}

type DeviceConfig struct {
	ID        string `mapstructure:"id"`
	Label     string `mapstructure:"label"`
	Permitted bool   `mapstructure:"permitted"`
}

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName over the defaults; a missing file is not an error.
// SHARE_* environment variables override both, e.g. SHARE_PRESENCE_REMOVAL_DELAY=5s.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("share")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("participant_id", "hub")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("presence.removal_delay", "3s")
	v.SetDefault("presence.mute_after", "1s")
	v.SetDefault("presence.classify_timeout", "5s")
	v.SetDefault("presence.face_size_max", 96)
	v.SetDefault("share.device_id", "")
	v.SetDefault("share.mime_type", "video/VP8")
	v.SetDefault("share.devices", []map[string]any{
		{"id": "virtual0", "label": "Virtual camera", "permitted": true},
	})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Dur("removal_delay", cfg.Presence.RemovalDelay).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Presence.RemovalDelay <= 0 {
		return fmt.Errorf("presence.removal_delay must be positive, got %s", c.Presence.RemovalDelay)
	}
	if c.Presence.MuteAfter <= 0 {
		return fmt.Errorf("presence.mute_after must be positive, got %s", c.Presence.MuteAfter)
	}
	if c.ParticipantID == "" {
		return errors.New("participant_id must not be empty")
	}
	return nil
}
