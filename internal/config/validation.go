package config

import (
	"fmt"
	"strings"

	"vigil/internal/automation"
)

func validate(c *Config) error {
	if err := c.Automation.validate(); err != nil {
		return err
	}
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AutomationConfig) validate() error {
	if a.IntervalSeconds < 5 {
		return fmt.Errorf("automation.interval_seconds must be >= 5")
	}
	known := map[string]bool{
		automation.ServiceRules:    true,
		automation.ServiceTrailing: true,
		automation.ServiceScaled:   true,
		automation.ServiceAlerts:   true,
	}
	for _, svc := range a.Services {
		if !known[strings.ToLower(strings.TrimSpace(svc))] {
			return fmt.Errorf("automation.services contains unknown service: %s", svc)
		}
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	switch b.Driver {
	case "binance":
		if strings.TrimSpace(b.RESTBaseURL) == "" {
			return fmt.Errorf("broker.rest_base_url cannot be empty")
		}
		if b.Proxy.Enabled && strings.TrimSpace(b.Proxy.RESTURL) == "" {
			return fmt.Errorf("broker proxy enabled but no rest_url")
		}
	case "sim":
	default:
		return fmt.Errorf("broker.driver only supports 'binance' or 'sim', got %s", b.Driver)
	}
	if b.TimeoutSeconds <= 0 {
		return fmt.Errorf("broker.timeout_seconds must be > 0")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}
