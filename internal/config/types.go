package config

import "strings"

// Config is the root configuration carrier.
type Config struct {
	App        AppConfig        `toml:"app"`
	Automation AutomationConfig `toml:"automation"`
	Broker     BrokerConfig     `toml:"broker"`
	Notify     NotifyConfig     `toml:"notify"`
	Store      StoreConfig      `toml:"store"`
	Presets    PresetsConfig    `toml:"presets"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// AutomationConfig controls the periodic evaluation loop.
type AutomationConfig struct {
	IntervalSeconds int      `toml:"interval_seconds"`
	RunImmediately  bool     `toml:"run_immediately"`
	Services        []string `toml:"services"`
}

// BrokerConfig selects and configures the market data source.
// Driver "sim" swaps in the deterministic in-memory broker.
type BrokerConfig struct {
	Driver         string        `toml:"driver"` // "binance" | "sim"
	APIKey         string        `toml:"api_key"`
	APISecret      string        `toml:"api_secret"`
	RESTBaseURL    string        `toml:"rest_base_url"`
	TimeoutSeconds int           `toml:"timeout_seconds"`
	Proxy          ProxyConfig   `toml:"proxy"`
	Breaker        BreakerConfig `toml:"breaker"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

// BreakerConfig tunes the circuit breakers wrapped around broker calls.
type BreakerConfig struct {
	Enabled        bool `toml:"enabled"`
	Threshold      int  `toml:"threshold"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type StoreConfig struct {
	AuditPath  string `toml:"audit_path"`
	RunLogPath string `toml:"run_log_path"`
}

type PresetsConfig struct {
	Path string `toml:"path"`
}

// keySet tracks field paths explicitly set in the config files, so
// defaults never clobber an intentional zero value.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}
