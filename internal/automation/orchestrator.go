// Package automation contains the orchestrator that fans one
// evaluation pass out across the rule, trailing-stop, scaled-exit and
// alert engines and folds the results into a single report. A pass is
// gate → dispatch → aggregate; partial failure is the normal outcome,
// not an escalation.
package automation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"vigil/internal/gateway/broker"
	"vigil/internal/gateway/notifier"
	"vigil/internal/logger"
)

// Subsystem names accepted in Options.Services.
const (
	ServiceRules    = "rules"
	ServiceTrailing = "trailing"
	ServiceScaled   = "scaled"
	ServiceAlerts   = "alerts"
)

// Outcome is one subsystem's contribution to a pass.
type Outcome struct {
	Evaluated int      `json:"evaluated"`
	Triggered int      `json:"triggered"`
	Actions   []string `json:"actions,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// Subsystem is one independently dispatched engine. Run must confine
// its own failures to the returned Outcome; panics are recovered by
// the dispatcher.
type Subsystem struct {
	Name string
	Run  func(ctx context.Context) Outcome
}

// Options selects and forces a pass.
type Options struct {
	Force    bool     `json:"force"`
	Services []string `json:"services,omitempty"`
}

// Report is the aggregate result of one pass.
type Report struct {
	Skipped        bool               `json:"skipped"`
	Reason         string             `json:"reason,omitempty"`
	MarketOpen     bool               `json:"market_open"`
	Results        map[string]Outcome `json:"results"`
	TotalTriggered int                `json:"total_triggered"`
	TotalErrors    []string           `json:"total_errors,omitempty"`
	DurationMs     int64              `json:"duration_ms"`
	StartedAt      time.Time          `json:"started_at"`
}

// Recorder receives finished reports for durable run history. Failures
// are logged, never surfaced to the caller.
type Recorder interface {
	RecordRun(ctx context.Context, rep Report) error
}

// Orchestrator is the single entry point for an automation pass. It is
// single-flight: overlapping invocations report busy instead of
// racing, preserving the engines' per-pass invariants.
type Orchestrator struct {
	broker     broker.Broker
	notify     notifier.TextNotifier
	recorder   Recorder
	subsystems []Subsystem

	running sync.Mutex
	nowFn   func() time.Time
}

func NewOrchestrator(b broker.Broker, notify notifier.TextNotifier, recorder Recorder, subsystems ...Subsystem) *Orchestrator {
	if notify == nil {
		notify = notifier.Noop{}
	}
	return &Orchestrator{
		broker:     b,
		notify:     notify,
		recorder:   recorder,
		subsystems: subsystems,
		nowFn:      time.Now,
	}
}

// Run executes one pass. It never returns an error: collaborator and
// subsystem failures are folded into the report, which is the contract
// even when every subsystem errored.
func (o *Orchestrator) Run(ctx context.Context, opts Options) Report {
	started := o.nowFn()
	rep := Report{
		Results:   make(map[string]Outcome),
		StartedAt: started,
	}
	if !o.running.TryLock() {
		rep.Skipped = true
		rep.Reason = "previous automation pass still running"
		return rep
	}
	defer o.running.Unlock()

	// Gate.
	open, err := o.broker.IsMarketOpen(ctx)
	if err != nil {
		rep.TotalErrors = append(rep.TotalErrors, fmt.Sprintf("market clock: %v", err))
	}
	rep.MarketOpen = open
	if !open && !opts.Force {
		rep.Skipped = true
		rep.Reason = "market closed"
		rep.DurationMs = o.nowFn().Sub(started).Milliseconds()
		o.record(ctx, rep)
		return rep
	}

	// Dispatch. The subsystems share no mutable state, so they run
	// concurrently; each one's failure stays inside its own slot.
	selected := o.selectSubsystems(opts.Services)
	outcomes := make([]Outcome, len(selected))
	var wg sync.WaitGroup
	for i, sub := range selected {
		wg.Add(1)
		go func(slot int, sub Subsystem) {
			defer wg.Done()
			outcomes[slot] = runIsolated(ctx, sub)
		}(i, sub)
	}
	wg.Wait()

	// Aggregate.
	for i, sub := range selected {
		outcome := outcomes[i]
		rep.Results[sub.Name] = outcome
		rep.TotalTriggered += outcome.Triggered
		rep.TotalErrors = append(rep.TotalErrors, outcome.Errors...)
	}
	rep.DurationMs = o.nowFn().Sub(started).Milliseconds()

	if rep.TotalTriggered > 0 {
		if err := o.notify.SendText(renderSummary(rep)); err != nil {
			rep.TotalErrors = append(rep.TotalErrors, fmt.Sprintf("notify: %v", err))
		}
	}
	o.record(ctx, rep)
	logger.Infof("automation pass done: triggered=%d errors=%d duration=%dms",
		rep.TotalTriggered, len(rep.TotalErrors), rep.DurationMs)
	return rep
}

// runIsolated invokes one subsystem, converting a panic into a labeled
// error entry so the remaining subsystems still report.
func runIsolated(ctx context.Context, sub Subsystem) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Errors: []string{fmt.Sprintf("%s error: %v", titleFor(sub.Name), r)}}
		}
	}()
	out = sub.Run(ctx)
	labeled := make([]string, 0, len(out.Errors))
	for _, msg := range out.Errors {
		labeled = append(labeled, fmt.Sprintf("%s error: %s", titleFor(sub.Name), msg))
	}
	out.Errors = labeled
	return out
}

func (o *Orchestrator) selectSubsystems(services []string) []Subsystem {
	if len(services) == 0 {
		return o.subsystems
	}
	wanted := make(map[string]bool, len(services))
	for _, name := range services {
		wanted[strings.ToLower(strings.TrimSpace(name))] = true
	}
	out := make([]Subsystem, 0, len(o.subsystems))
	for _, sub := range o.subsystems {
		if wanted[sub.Name] {
			out = append(out, sub)
		}
	}
	return out
}

func (o *Orchestrator) record(ctx context.Context, rep Report) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordRun(ctx, rep); err != nil {
		logger.Warnf("run log write failed: %v", err)
	}
}

func titleFor(name string) string {
	switch name {
	case ServiceRules:
		return "Rules"
	case ServiceTrailing:
		return "Trailing"
	case ServiceScaled:
		return "Scaled"
	case ServiceAlerts:
		return "Alerts"
	default:
		return name
	}
}

func renderSummary(rep Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*vigil* pass: %d triggered in %dms\n", rep.TotalTriggered, rep.DurationMs)
	names := make([]string, 0, len(rep.Results))
	for name := range rep.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		outcome := rep.Results[name]
		if outcome.Triggered == 0 && len(outcome.Errors) == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s: %d triggered", titleFor(name), outcome.Triggered)
		if len(outcome.Errors) > 0 {
			fmt.Fprintf(&b, ", %d errors", len(outcome.Errors))
		}
		b.WriteString("\n")
		for _, action := range outcome.Actions {
			fmt.Fprintf(&b, "  • %s\n", action)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
