// Package config loads the server settings from config.yaml, SHABAD_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"node.town/shabad/stt"
)

type Config struct {
	HTTP     HTTP     `mapstructure:"http"`
	STT      STT      `mapstructure:"stt"`
	Session  Session  `mapstructure:"session"`
	Database Database `mapstructure:"database"`
	Log      Log      `mapstructure:"log"`
}

type HTTP struct {
	Port           int      `mapstructure:"port"`
	StaticDir      string   `mapstructure:"static_dir"`
	UploadDir      string   `mapstructure:"upload_dir"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type STT struct {
	Backend            string `mapstructure:"backend"`
	Encoding           string `mapstructure:"encoding"`
	SampleRate         int    `mapstructure:"sample_rate"`
	Language           string `mapstructure:"language"`
	Punctuation        bool   `mapstructure:"punctuation"`
	InterimResults     bool   `mapstructure:"interim_results"`
	GoogleCredentials  string `mapstructure:"google_credentials"`
	SpeechmaticsAPIKey string `mapstructure:"speechmatics_api_key"`
	SpeechmaticsURL    string `mapstructure:"speechmatics_url"`
	PlaceholderEvery   int    `mapstructure:"placeholder_every"`
}

type Session struct {
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	OpenTimeout  time.Duration `mapstructure:"open_timeout"`
	QueueLimit   int           `mapstructure:"queue_limit"`
	Shards       int           `mapstructure:"shards"`
}

type Database struct {
	URL string `mapstructure:"url"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

const (
	BackendPlaceholder  = "placeholder"
	BackendGoogle       = "google"
	BackendSpeechmatics = "speechmatics"
)

func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 5001)
	v.SetDefault("http.static_dir", "static")
	v.SetDefault("http.upload_dir", "uploads")
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("stt.backend", BackendPlaceholder)
	v.SetDefault("stt.encoding", "WEBM_OPUS")
	v.SetDefault("stt.sample_rate", 48000)
	v.SetDefault("stt.language", "pa-IN")
	v.SetDefault("stt.punctuation", true)
	v.SetDefault("stt.interim_results", true)
	v.SetDefault("stt.google_credentials", "")
	v.SetDefault("stt.speechmatics_api_key", "")
	v.SetDefault("stt.speechmatics_url", "")
	v.SetDefault("stt.placeholder_every", 3)

	v.SetDefault("session.drain_timeout", 10*time.Second)
	v.SetDefault("session.open_timeout", 10*time.Second)
	v.SetDefault("session.queue_limit", 0)
	v.SetDefault("session.shards", 16)

	v.SetDefault("database.url", "")
	v.SetDefault("log.level", "info")
}

// Init points v at config.yaml in the working directory and at SHABAD_*
// environment variables, with "." in keys written as "_".
func Init(v *viper.Viper) error {
	SetDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("shabad")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

func LoadFrom(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.UploadDir == "" {
		errs = append(errs, errors.New("http.upload_dir must be set"))
	}

	switch c.STT.Backend {
	case BackendPlaceholder:
	case BackendGoogle:
		if c.STT.GoogleCredentials == "" {
			errs = append(errs, errors.New("stt.google_credentials must be set for the google backend"))
		}
	case BackendSpeechmatics:
		if c.STT.SpeechmaticsAPIKey == "" {
			errs = append(errs, errors.New("stt.speechmatics_api_key must be set for the speechmatics backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", stt.ErrUnknownBackend, c.STT.Backend))
	}
	if c.STT.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("stt.sample_rate %d must be positive", c.STT.SampleRate))
	}
	if c.STT.Encoding == "" {
		errs = append(errs, errors.New("stt.encoding must be set"))
	}
	if c.STT.Language == "" {
		errs = append(errs, errors.New("stt.language must be set"))
	}

	if c.Session.DrainTimeout <= 0 {
		errs = append(errs, errors.New("session.drain_timeout must be positive"))
	}
	if c.Session.OpenTimeout < 0 {
		errs = append(errs, errors.New("session.open_timeout must not be negative"))
	}
	if c.Session.QueueLimit < 0 {
		errs = append(errs, errors.New("session.queue_limit must not be negative"))
	}
	if c.Session.Shards < 0 {
		errs = append(errs, errors.New("session.shards must not be negative"))
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// Recognition is the configuration record every recognizer stream
// starts with.
func (c Config) Recognition() stt.Config {
	return stt.Config{
		Encoding:       c.STT.Encoding,
		SampleRate:     c.STT.SampleRate,
		Language:       c.STT.Language,
		Punctuation:    c.STT.Punctuation,
		InterimResults: c.STT.InterimResults,
	}
}
