package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ConnIdShort = "short"
	ConnIdUUID  = "uuid"
)

type Config struct {
	ServerAddr     string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	SendBufferSize int           `yaml:"send_buffer"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	PongWait       time.Duration `yaml:"pong_wait"`
	WriteWait      time.Duration `yaml:"write_wait"`
	ConnIdFormat   string        `yaml:"conn_id"`
}

// Default returns the configuration used when neither a config file nor
// flags override a setting.
func Default() *Config {
	return &Config{
		ServerAddr:     "localhost:8000",
		SendBufferSize: 256,
		MaxMessageSize: 4096,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		ConnIdFormat:   ConnIdShort,
	}
}

// LoadFile decodes the YAML file at path on top of cfg. Keys missing from
// the file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}

	return nil
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("send buffer size must be positive, got %d", c.SendBufferSize)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive, got %d", c.MaxMessageSize)
	}
	if c.PongWait <= 0 {
		return fmt.Errorf("pong wait must be positive, got %s", c.PongWait)
	}
	if c.WriteWait <= 0 {
		return fmt.Errorf("write wait must be positive, got %s", c.WriteWait)
	}

	switch c.ConnIdFormat {
	case ConnIdShort, ConnIdUUID:
	default:
		return fmt.Errorf("unknown connection id format %q", c.ConnIdFormat)
	}

	return nil
}

// PingInterval is how often the server pings a peer. It must stay below
// PongWait so a healthy peer always answers before its read deadline.
func (c *Config) PingInterval() time.Duration {
	return (c.PongWait * 9) / 10
}
