// Package config handles imapnotify configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBotDomain is the chat bot API host used when bot.domain is unset.
const DefaultBotDomain = "api.telegram.org"

// DefaultSearchPaths returns the config file search order used when no
// explicit -config path is given: ./config.yaml,
// ~/.config/imapnotify/config.yaml, /etc/imapnotify/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "imapnotify", "config.yaml"))
	}

	paths = append(paths, "/etc/imapnotify/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all imapnotify configuration.
type Config struct {
	Mail MailConfig `yaml:"mail"`
	Bot  BotConfig  `yaml:"bot"`

	// DB is the path of the SQLite run journal. Empty disables the journal.
	DB string `yaml:"db"`

	// Recipients are the chat identifiers every notification is sent to.
	Recipients []Recipient `yaml:"recipients"`

	// SilentHours lists local hours of the day (0-23) during which
	// notifications are delivered without sound.
	SilentHours []int `yaml:"silent_hours"`

	Filters FilterConfig `yaml:"filters"`
	MQTT    MQTTConfig   `yaml:"mqtt"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// MailConfig holds IMAP server connection parameters.
type MailConfig struct {
	// Server is the IMAP server hostname (e.g., "imap.example.tld").
	Server string `yaml:"server"`

	// Port is the IMAP server port. Default: 993 (IMAPS).
	Port int `yaml:"port"`

	// Login is the IMAP login name, usually the mailbox address.
	Login string `yaml:"login"`

	// Password supports environment variable expansion via Load
	// (e.g., ${IMAP_PASSWORD}).
	Password string `yaml:"password"`

	// TLS selects implicit TLS. Unset means true, except on port 143.
	TLS *bool `yaml:"tls"`
}

// UseTLS reports whether the connection should be wrapped in TLS.
func (m MailConfig) UseTLS() bool {
	if m.TLS == nil {
		return m.Port != 143
	}
	return *m.TLS
}

// BotConfig identifies the chat bot API endpoint.
type BotConfig struct {
	Domain string `yaml:"domain"`
	Token  string `yaml:"token"`

	// Timeout bounds each sendMessage request (e.g., "15s"). Zero uses
	// the HTTP client default.
	Timeout time.Duration `yaml:"timeout"`

	// UserAgent overrides the User-Agent header sent to the bot API.
	UserAgent string `yaml:"user_agent"`
}

// Recipient is a chat that receives notifications.
type Recipient struct {
	ID ChatID `yaml:"id"`
}

// ChatID is a chat identifier. Bot APIs use numeric ids for users and
// groups and "@name" for public channels, so both YAML integers and
// strings are accepted.
type ChatID string

// UnmarshalYAML accepts any scalar node and keeps its literal text.
func (c *ChatID) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: chat id must be a scalar", value.Line)
	}
	*c = ChatID(strings.TrimSpace(value.Value))
	return nil
}

// FilterConfig holds the literal substring patterns applied to decoded
// headers. To patterns are required for a notification; From patterns
// suppress one.
type FilterConfig struct {
	From []string `yaml:"from"`
	To   []string `yaml:"to"`
}

// MQTTConfig configures the optional run-summary publisher.
type MQTTConfig struct {
	// Broker is a URL such as mqtt://host:1883 or mqtts://host:8883.
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Topic receives the retained JSON run summary.
	// Default: imapnotify/<mail.login>/last_run.
	Topic string `yaml:"topic"`
}

// Configured reports whether MQTT publishing is enabled.
func (m MQTTConfig) Configured() bool {
	return m.Broker != ""
}

// Load reads configuration from a YAML file. Environment variables in
// the file are expanded before parsing. Defaults are applied and the
// result is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Mail.Port == 0 {
		c.Mail.Port = 993
	}
	if c.Mail.TLS == nil {
		useTLS := c.Mail.Port != 143
		c.Mail.TLS = &useTLS
	}
	if c.Bot.Domain == "" {
		c.Bot.Domain = DefaultBotDomain
	}
	if c.MQTT.Configured() && c.MQTT.Topic == "" {
		c.MQTT.Topic = "imapnotify/" + c.Mail.Login + "/last_run"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks that the configuration is usable. Returns an error
// describing the first problem found.
func (c *Config) Validate() error {
	if c.Mail.Server == "" {
		return fmt.Errorf("mail.server is required")
	}
	if c.Mail.Login == "" {
		return fmt.Errorf("mail.login is required")
	}
	if c.Mail.Port < 1 || c.Mail.Port > 65535 {
		return fmt.Errorf("mail.port %d out of range (1-65535)", c.Mail.Port)
	}

	if c.Bot.Token == "" {
		return fmt.Errorf("bot.token is required")
	}
	if c.Bot.Timeout < 0 {
		return fmt.Errorf("bot.timeout %v must not be negative", c.Bot.Timeout)
	}

	if len(c.Recipients) == 0 {
		return fmt.Errorf("recipients must list at least one chat")
	}
	for i, r := range c.Recipients {
		if r.ID == "" {
			return fmt.Errorf("recipients[%d].id must not be empty", i)
		}
	}

	for i, h := range c.SilentHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("silent_hours[%d] = %d out of range (0-23)", i, h)
		}
	}

	// Fetching marks messages \Seen, so a run without To patterns would
	// consume the inbox without ever notifying.
	if len(c.Filters.To) == 0 {
		return fmt.Errorf("filters.to must list at least one pattern")
	}
	for i, p := range c.Filters.To {
		if p == "" {
			return fmt.Errorf("filters.to[%d] must not be empty", i)
		}
	}
	for i, p := range c.Filters.From {
		if p == "" {
			return fmt.Errorf("filters.from[%d] must not be empty", i)
		}
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format %q must be text or json", c.LogFormat)
	}

	return nil
}
