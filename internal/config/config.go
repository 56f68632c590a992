package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"ledstrip-remote/internal/protocol"
)

// DeviceConfig describes the LED controller connection and wire format.
type DeviceConfig struct {
	Endpoint string `json:"endpoint"` // ws://IP:PORT
	// Schema names a built-in field layout (v8, v9, v10). Fields, when set, wins.
	Schema            string   `json:"schema"`
	Fields            []string `json:"fields"`
	ReconnectInterval string   `json:"reconnect_interval"`
	DebounceInterval  string   `json:"debounce_interval"`
	HandshakeTimeout  string   `json:"handshake_timeout"`
	PingInterval      string   `json:"ping_interval"`
	ResendOnConnect   bool     `json:"resend_on_connect"`
}

// UIConfig covers what the UI boundary shows.
type UIConfig struct {
	NotificationClear string `json:"notification_clear"`
}

// ServerConfig configures the local web UI.
type ServerConfig struct {
	Disabled       bool     `json:"disabled"`
	Port           string   `json:"port"`
	WebFilesDir    string   `json:"web_files_dir"`
	AllowedOrigins []string `json:"allowed_origins"`
	SwatchRate     float64  `json:"swatch_rate"`
	SwatchBurst    int      `json:"swatch_burst"`
}

// MQTTConfig configures the MQTT bridge and Home Assistant discovery.
type MQTTConfig struct {
	Enabled            bool    `json:"enabled"`
	Broker             string  `json:"broker"` // tcp://IP:PORT
	Username           string  `json:"username"`
	Password           string  `json:"password"`
	ClientID           string  `json:"client_id"`
	TopicPrefix        string  `json:"topic_prefix"`
	HADiscoveryEnabled bool    `json:"ha_discovery_enabled"`
	HADiscoveryPrefix  string  `json:"ha_discovery_prefix"`
	PublishSwatches    bool    `json:"publish_swatches"`
	SwatchRate         float64 `json:"swatch_rate"`
}

// Config is the root configuration.
type Config struct {
	Device DeviceConfig `json:"device"`
	UI     UIConfig     `json:"ui"`
	Server ServerConfig `json:"server"`
	MQTT   MQTTConfig   `json:"mqtt"`

	LoopInterval  string `json:"loop_interval"`
	PatternsDir   string `json:"patterns_dir"`
	SchedulesFile string `json:"schedules_file"`
}

// Load reads the file, applies environment overrides and defaults, and validates.
// A missing file is treated as an empty one.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}

	if env := os.Getenv("LEDREMOTE_ENDPOINT"); env != "" {
		cfg.Device.Endpoint = env
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) sanitize() {
	c.Device.Endpoint = strings.TrimSpace(c.Device.Endpoint)
	c.Device.Schema = strings.TrimSpace(c.Device.Schema)
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Server.WebFilesDir = strings.TrimSpace(c.Server.WebFilesDir)
	c.PatternsDir = strings.TrimSpace(c.PatternsDir)
	c.SchedulesFile = strings.TrimSpace(c.SchedulesFile)
	for i, f := range c.Device.Fields {
		c.Device.Fields[i] = strings.TrimSpace(f)
	}
}

func (c *Config) setDefaults() {
	if c.Device.Endpoint == "" {
		c.Device.Endpoint = "ws://192.168.178.200:80"
	}
	if c.Device.Schema == "" && len(c.Device.Fields) == 0 {
		c.Device.Schema = "v10"
	}
	if c.Device.ReconnectInterval == "" {
		c.Device.ReconnectInterval = "5s"
	}
	if c.Device.DebounceInterval == "" {
		c.Device.DebounceInterval = "400ms"
	}
	if c.Device.HandshakeTimeout == "" {
		c.Device.HandshakeTimeout = "4s"
	}
	if c.Device.PingInterval == "" {
		c.Device.PingInterval = "0s"
	}

	if c.UI.NotificationClear == "" {
		c.UI.NotificationClear = "3s"
	}

	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.WebFilesDir == "" {
		c.Server.WebFilesDir = "./web"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8080"}
	}
	if c.Server.SwatchRate <= 0 {
		c.Server.SwatchRate = 20
	}
	if c.Server.SwatchBurst <= 0 {
		c.Server.SwatchBurst = 1
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "ledstrip-remote"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "ledstrip"
	}
	if c.MQTT.HADiscoveryPrefix == "" {
		c.MQTT.HADiscoveryPrefix = "homeassistant"
	}
	if c.MQTT.SwatchRate <= 0 {
		c.MQTT.SwatchRate = 1
	}

	if c.LoopInterval == "" {
		c.LoopInterval = "60s"
	}
	if c.PatternsDir == "" {
		c.PatternsDir = "patterns"
	}
	if c.SchedulesFile == "" {
		c.SchedulesFile = "schedules.json"
	}
}

// Validate reports configuration errors that defaults cannot fix.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Device.Endpoint)
	if err != nil {
		return fmt.Errorf("config error: 'device.endpoint': %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("config error: 'device.endpoint' must be a ws:// URI, got %q", c.Device.Endpoint)
	}
	if _, err := c.Device.WireSchema(); err != nil {
		return fmt.Errorf("config error: 'device.schema': %w", err)
	}

	durations := map[string]string{
		"device.reconnect_interval": c.Device.ReconnectInterval,
		"device.debounce_interval":  c.Device.DebounceInterval,
		"device.handshake_timeout":  c.Device.HandshakeTimeout,
		"device.ping_interval":      c.Device.PingInterval,
		"ui.notification_clear":     c.UI.NotificationClear,
		"loop_interval":             c.LoopInterval,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config error: '%s': %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("config error: '%s' must not be negative", name)
		}
	}
	if d, _ := time.ParseDuration(c.Device.ReconnectInterval); d == 0 {
		return fmt.Errorf("config error: 'device.reconnect_interval' must be positive")
	}
	if d, _ := time.ParseDuration(c.LoopInterval); d == 0 {
		return fmt.Errorf("config error: 'loop_interval' must be positive")
	}
	return nil
}

// WireSchema resolves the configured field layout.
func (d DeviceConfig) WireSchema() (protocol.Schema, error) {
	if len(d.Fields) > 0 {
		name := d.Schema
		if name == "" {
			name = "custom"
		}
		return protocol.NewSchema(name, d.Fields)
	}
	return protocol.LookupSchema(d.Schema)
}

// Duration parses a validated duration string; invalid input yields zero.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
