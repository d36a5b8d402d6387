package config

import "strings"

const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppHTTPAddr        = ":9992"
	defaultAppLogPath         = "/data/logs/vigil.log"
	defaultAutomationInterval = 60
	defaultBrokerDriver       = "binance"
	defaultBrokerREST         = "https://fapi.binance.com"
	defaultBrokerTimeout      = 15
	defaultBreakerThreshold   = 5
	defaultBreakerTimeout     = 30
	defaultAuditPath          = "/data/db/vigil_audit.db"
	defaultRunLogPath         = "/data/db/vigil_runs.db"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Automation.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (a *AutomationConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "automation.interval_seconds",
			need:  func() bool { return a.IntervalSeconds <= 0 },
			apply: func() { a.IntervalSeconds = defaultAutomationInterval },
		},
	)
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("broker.driver", &b.Driver, defaultBrokerDriver),
		stringFieldDefault("broker.rest_base_url", &b.RESTBaseURL, defaultBrokerREST),
		fieldDefault{
			key:   "broker.timeout_seconds",
			need:  func() bool { return b.TimeoutSeconds <= 0 },
			apply: func() { b.TimeoutSeconds = defaultBrokerTimeout },
		},
		fieldDefault{
			key:   "broker.breaker.threshold",
			need:  func() bool { return b.Breaker.Threshold <= 0 },
			apply: func() { b.Breaker.Threshold = defaultBreakerThreshold },
		},
		fieldDefault{
			key:   "broker.breaker.timeout_seconds",
			need:  func() bool { return b.Breaker.TimeoutSeconds <= 0 },
			apply: func() { b.Breaker.TimeoutSeconds = defaultBreakerTimeout },
		},
	)
	b.Driver = strings.ToLower(strings.TrimSpace(b.Driver))
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.audit_path", &s.AuditPath, defaultAuditPath),
		stringFieldDefault("store.run_log_path", &s.RunLogPath, defaultRunLogPath),
	)
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
