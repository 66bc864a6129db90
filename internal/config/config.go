package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ProviderACS  = "acs"
	ProviderMock = "mock"

	EnvProduction = "production"

	audioRoute = "/api/GetAudio"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Communication CommunicationConfig `mapstructure:"communication"`
	Audio         AudioConfig         `mapstructure:"audio"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// CommunicationConfig describes the telephony platform and the numbers used
// when placing announcement calls.
type CommunicationConfig struct {
	Provider             string        `mapstructure:"provider"`
	ConnectionString     string        `mapstructure:"connection_string"`
	FromPhoneNumber      string        `mapstructure:"from_phone_number"`
	DefaultToPhoneNumber string        `mapstructure:"default_to_phone_number"`
	DefaultAudioURL      string        `mapstructure:"default_audio_url"`
	CallbackURL          string        `mapstructure:"callback_url"`
	PublicBaseURL        string        `mapstructure:"public_base_url"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	MockConnectAfter     int           `mapstructure:"mock_connect_after"`
}

type AudioConfig struct {
	AssetPath   string        `mapstructure:"asset_path"`
	CacheMaxAge time.Duration `mapstructure:"cache_max_age"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	ClientID    string   `mapstructure:"client_id"`
	EventsTopic string   `mapstructure:"events_topic"`
}

type TelemetryConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
}

// legacyEnv maps configuration keys to the plain variable names used by
// existing deployments.
var legacyEnv = map[string]string{
	"communication.connection_string":       "COMMUNICATION_SERVICES_CONNECTION_STRING",
	"communication.from_phone_number":       "FROM_PHONE_NUMBER",
	"communication.default_to_phone_number": "TO_PHONE_NUMBER",
	"communication.default_audio_url":       "AUDIO_FILE_URL",
	"communication.callback_url":            "CALLBACK_URL",
}

// Load reads configuration from an optional file and environment variables.
// A missing file is not an error; the environment alone may configure the
// service.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("ANNOUNCE")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	for key, legacy := range legacyEnv {
		prefixed := "ANNOUNCE_" + strings.ToUpper(NewEnvReplacer().Replace(key))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	comm := c.Communication

	switch comm.Provider {
	case ProviderACS:
		if comm.ConnectionString == "" {
			errs = append(errs, errors.New("communication.connection_string is required"))
		}
	case ProviderMock:
		if c.App.Env == EnvProduction {
			errs = append(errs, errors.New("communication.provider mock is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("communication.provider %q is not supported", comm.Provider))
	}
	if comm.FromPhoneNumber == "" {
		errs = append(errs, errors.New("communication.from_phone_number is required"))
	}
	if comm.CallbackURL == "" {
		errs = append(errs, errors.New("communication.callback_url is required"))
	}
	if c.Audio.AssetPath == "" {
		errs = append(errs, errors.New("audio.asset_path is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

func (c *Config) normalize() {
	c.Communication.Provider = strings.ToLower(strings.TrimSpace(c.Communication.Provider))
	if c.Communication.PublicBaseURL == "" {
		c.Communication.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.HTTP.Port)
	}
	if c.Communication.DefaultAudioURL == "" {
		c.Communication.DefaultAudioURL = strings.TrimRight(c.Communication.PublicBaseURL, "/") + audioRoute
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "announcement-call")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.version", "dev")

	v.SetDefault("http.port", 7071)
	v.SetDefault("http.read_timeout", 10*time.Second)
	// a single announcement call can hold its request for ~40s plus network time
	v.SetDefault("http.write_timeout", 90*time.Second)
	v.SetDefault("http.idle_timeout", 120*time.Second)

	v.SetDefault("communication.provider", ProviderACS)
	v.SetDefault("communication.connection_string", "")
	v.SetDefault("communication.from_phone_number", "")
	v.SetDefault("communication.default_to_phone_number", "")
	v.SetDefault("communication.default_audio_url", "")
	v.SetDefault("communication.callback_url", "")
	v.SetDefault("communication.public_base_url", "")
	v.SetDefault("communication.request_timeout", 15*time.Second)
	v.SetDefault("communication.mock_connect_after", 3)

	v.SetDefault("audio.asset_path", "public/message.mp3")
	v.SetDefault("audio.cache_max_age", time.Hour)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "announcement-call")
	v.SetDefault("kafka.events_topic", "call-events")

	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "announcement-call")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.tracing_enabled", false)
}
