package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vigil/internal/alerts"
	"vigil/internal/automation"
	"vigil/internal/config"
	"vigil/internal/gateway/broker"
	"vigil/internal/gateway/notifier"
	"vigil/internal/logger"
	"vigil/internal/rules"
	"vigil/internal/scaled"
	"vigil/internal/scheduler"
	"vigil/internal/store"
	"vigil/internal/store/gormstore"
	"vigil/internal/store/runlog"
	"vigil/internal/trailing"
	apihttp "vigil/internal/transport/http"
)

// AppBuilder constructs the App. The Fn fields exist so tests can
// substitute individual build steps.
type AppBuilder struct {
	cfg *config.Config

	brokerFn   func(config.BrokerConfig) (broker.Broker, error)
	notifierFn func(config.NotifyConfig) notifier.TextNotifier
	auditFn    func(config.StoreConfig) (store.AuditStore, error)
	runlogFn   func(config.StoreConfig) (*runlog.Store, error)
	presetsFn  func(config.PresetsConfig) (*scaled.Registry, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		brokerFn:   buildBroker,
		notifierFn: buildNotifier,
		auditFn:    buildAuditStore,
		runlogFn:   buildRunLog,
		presetsFn:  buildPresetRegistry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	app := &App{cfg: cfg}

	mkt, err := b.brokerFn(cfg.Broker)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ broker ready driver=%s", cfg.Broker.Driver)

	notify := b.notifierFn(cfg.Notify)

	audit, err := b.auditFn(cfg.Store)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() { _ = audit.Close() })
	logger.Infof("✓ audit store ready path=%s", cfg.Store.AuditPath)

	runs, err := b.runlogFn(cfg.Store)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() { _ = runs.Close() })

	presets, err := b.presetsFn(cfg.Presets)
	if err != nil {
		return nil, err
	}

	ruleEngine := rules.NewEngine(mkt, audit)
	trailEngine := trailing.NewEngine(mkt, audit)
	scaledEngine := scaled.NewEngine(mkt, audit, presets)
	alertEngine := alerts.NewEngine(mkt, audit, alerts.NewVolumeWindow())

	orch := automation.NewOrchestrator(mkt, notify, runs,
		automation.RulesSubsystem(ruleEngine),
		automation.TrailingSubsystem(trailEngine),
		automation.ScaledSubsystem(scaledEngine),
		automation.AlertsSubsystem(alertEngine),
	)

	sched := scheduler.NewIntervalScheduler(orch,
		time.Duration(cfg.Automation.IntervalSeconds)*time.Second)
	sched.RunImmediately = cfg.Automation.RunImmediately
	sched.Services = cfg.Automation.Services
	app.sched = sched

	httpServer, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr: cfg.App.HTTPAddr,
		Router: &apihttp.Router{
			Orch:     orch,
			Rules:    ruleEngine,
			Trailing: trailEngine,
			Scaled:   scaledEngine,
			Alerts:   alertEngine,
			Presets:  presets,
			Runs:     runs,
			Audit:    audit,
		},
	})
	if err != nil {
		return nil, err
	}
	app.http = httpServer

	return app, nil
}

func buildBroker(cfg config.BrokerConfig) (broker.Broker, error) {
	var inner broker.Broker
	switch cfg.Driver {
	case "sim":
		inner = broker.NewSimBroker()
	default:
		bn, err := broker.NewBinanceBroker(broker.BinanceConfig{
			APIKey:       cfg.APIKey,
			APISecret:    cfg.APISecret,
			RESTBaseURL:  cfg.RESTBaseURL,
			HTTPTimeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
			ProxyEnabled: cfg.Proxy.Enabled,
			RESTProxyURL: cfg.Proxy.RESTURL,
		})
		if err != nil {
			return nil, fmt.Errorf("build binance broker: %w", err)
		}
		inner = bn
	}
	if !cfg.Breaker.Enabled {
		return inner, nil
	}
	return broker.NewGuarded(inner, cfg.Breaker.Threshold,
		time.Duration(cfg.Breaker.TimeoutSeconds)*time.Second), nil
}

func buildNotifier(cfg config.NotifyConfig) notifier.TextNotifier {
	if !cfg.Telegram.Enabled {
		return notifier.Noop{}
	}
	return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}

func buildAuditStore(cfg config.StoreConfig) (store.AuditStore, error) {
	return gormstore.NewGormStore(cfg.AuditPath)
}

func buildRunLog(cfg config.StoreConfig) (*runlog.Store, error) {
	return runlog.NewStore(cfg.RunLogPath)
}

func buildPresetRegistry(cfg config.PresetsConfig) (*scaled.Registry, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return scaled.NewRegistry(), nil
	}
	return scaled.NewRegistryFromFile(cfg.Path)
}
