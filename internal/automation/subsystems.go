package automation

import (
	"context"
	"fmt"

	"vigil/internal/alerts"
	"vigil/internal/rules"
	"vigil/internal/scaled"
	"vigil/internal/trailing"
)

// The adapters below translate each engine's pass result into the
// orchestrator's uniform Outcome, rendering triggers as the short
// human lines carried into notifications and the run log.

func RulesSubsystem(eng *rules.Engine) Subsystem {
	return Subsystem{
		Name: ServiceRules,
		Run: func(ctx context.Context) Outcome {
			res := eng.Evaluate(ctx)
			out := Outcome{Evaluated: res.Evaluated, Triggered: len(res.Triggered), Errors: res.Errors}
			for _, trig := range res.Triggered {
				line := fmt.Sprintf("%s %s triggered at %.4f (qty %.4f)",
					trig.Rule.Symbol, trig.Rule.Kind, trig.Price, trig.Rule.Quantity)
				if trig.Sibling != "" {
					line += fmt.Sprintf(", cancelled OCO sibling %s", trig.Sibling)
				}
				out.Actions = append(out.Actions, line)
			}
			return out
		},
	}
}

func TrailingSubsystem(eng *trailing.Engine) Subsystem {
	return Subsystem{
		Name: ServiceTrailing,
		Run: func(ctx context.Context) Outcome {
			res := eng.Evaluate(ctx)
			out := Outcome{Evaluated: res.Evaluated, Triggered: len(res.Triggered), Errors: res.Errors}
			for _, trig := range res.Triggered {
				out.Actions = append(out.Actions, fmt.Sprintf(
					"%s trailing stop hit at %.4f (stop %.4f)",
					trig.Stop.Symbol, trig.Price, trig.Stop.StopPrice))
			}
			return out
		},
	}
}

func ScaledSubsystem(eng *scaled.Engine) Subsystem {
	return Subsystem{
		Name: ServiceScaled,
		Run: func(ctx context.Context) Outcome {
			res := eng.Evaluate(ctx)
			out := Outcome{Evaluated: res.Evaluated, Triggered: len(res.Triggered), Errors: res.Errors}
			for _, trig := range res.Triggered {
				switch trig.Kind {
				case scaled.FireTrailing:
					out.Actions = append(out.Actions, fmt.Sprintf(
						"%s trailing take-profit leg fired at %.4f for %.2f%%",
						trig.Plan.Symbol, trig.Price, trig.Quantity))
				default:
					out.Actions = append(out.Actions, fmt.Sprintf(
						"%s exit target fired at %.4f for %.2f%%",
						trig.Plan.Symbol, trig.Price, trig.Quantity))
				}
			}
			return out
		},
	}
}

func AlertsSubsystem(eng *alerts.Engine) Subsystem {
	return Subsystem{
		Name: ServiceAlerts,
		Run: func(ctx context.Context) Outcome {
			res := eng.Evaluate(ctx)
			out := Outcome{Evaluated: res.Evaluated, Triggered: len(res.Triggered), Errors: res.Errors}
			for _, notice := range res.Triggered {
				sym := notice.Alert.Symbol
				if sym == "" {
					sym = "portfolio"
				}
				out.Actions = append(out.Actions, fmt.Sprintf(
					"%s alert %s fired (value %.4f)", sym, notice.Alert.Kind, notice.Value))
			}
			return out
		},
	}
}
