package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBaseURL = "https://api.deepseek.com/v1/"
	DefaultModel   = "deepseek-chat"

	DefaultPersona = "You are a direct, structured product-manager assistant. " +
		"Answer in short sections with clear headings and bullet points, " +
		"state assumptions explicitly and end with concrete next steps."

	FramesPassthrough = "passthrough"
	FramesDrop        = "drop"
)

// Config is built once at startup and handed to every component that needs it.
type Config struct {
	Addr string

	APIKey          string
	BaseURL         string
	Model           string
	UpstreamTimeout time.Duration

	Persona          string
	Strict           bool
	MaxMessageLength int
	MalformedFrames  string

	BodyLimit string
	RateLimit float64
	JWTSecret string

	LogFile string
	Debug   bool
}

// Load reads configuration from the environment and, when RELAY_CONFIG names
// a file, from that file. Environment values win over the file.
func Load() (Config, error) {
	v := viper.New()
	v.SetDefault("relay_addr", ":8080")
	v.SetDefault("deepseek_base_url", DefaultBaseURL)
	v.SetDefault("deepseek_model", DefaultModel)
	v.SetDefault("relay_upstream_timeout", 120*time.Second)
	v.SetDefault("relay_persona", DefaultPersona)
	v.SetDefault("relay_strict", true)
	v.SetDefault("relay_max_message_length", 2000)
	v.SetDefault("relay_malformed_frames", FramesPassthrough)
	v.SetDefault("relay_body_limit", "1M")
	v.SetDefault("relay_rate_limit", 20)
	v.AutomaticEnv()

	if file := os.Getenv("RELAY_CONFIG"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	cfg := Config{
		Addr:             v.GetString("relay_addr"),
		APIKey:           v.GetString("deepseek_api_key"),
		BaseURL:          v.GetString("deepseek_base_url"),
		Model:            v.GetString("deepseek_model"),
		UpstreamTimeout:  v.GetDuration("relay_upstream_timeout"),
		Persona:          v.GetString("relay_persona"),
		Strict:           v.GetBool("relay_strict"),
		MaxMessageLength: v.GetInt("relay_max_message_length"),
		MalformedFrames:  v.GetString("relay_malformed_frames"),
		BodyLimit:        v.GetString("relay_body_limit"),
		RateLimit:        v.GetFloat64("relay_rate_limit"),
		JWTSecret:        v.GetString("relay_jwt_secret"),
		LogFile:          v.GetString("log_file"),
		Debug:            v.GetBool("debug"),
	}

	return cfg, cfg.Validate()
}

// Validate rejects values the relay cannot run with. A missing API key is
// not one of them: requests report it as a 500.
func (c Config) Validate() error {
	switch c.MalformedFrames {
	case FramesPassthrough, FramesDrop:
	default:
		return fmt.Errorf("relay_malformed_frames must be %q or %q, got %q", FramesPassthrough, FramesDrop, c.MalformedFrames)
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("relay_max_message_length must be positive, got %d", c.MaxMessageLength)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("relay_upstream_timeout must be positive, got %s", c.UpstreamTimeout)
	}
	if c.Model == "" {
		return fmt.Errorf("deepseek_model must not be empty")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("relay_rate_limit must not be negative")
	}
	return nil
}
