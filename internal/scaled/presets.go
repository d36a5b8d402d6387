package scaled

// Preset is a named, canonical scaled-exit shape. Presets carry no
// engine state; resolving one is a pure function of its definition.
type Preset struct {
	Name        string       `yaml:"name" mapstructure:"name"`
	Description string       `yaml:"description" mapstructure:"description"`
	Targets     []TargetSpec `yaml:"targets" mapstructure:"targets"`
	TrailingTP  *TrailingLeg `yaml:"trailing_take_profit" mapstructure:"trailing_take_profit"`
}

// builtinPresets are always available; a preset file may override them
// by name or add new ones.
func builtinPresets() map[string]Preset {
	return map[string]Preset{
		"conservative": {
			Name:        "conservative",
			Description: "take profit early and often, keep a thin runner",
			Targets: []TargetSpec{
				{PricePercent: 2, QuantityPercent: 40},
				{PricePercent: 4, QuantityPercent: 30},
				{PricePercent: 6, QuantityPercent: 20},
			},
			TrailingTP: &TrailingLeg{ActivationPercent: 6, TrailPercent: 2},
		},
		"balanced": {
			Name:        "balanced",
			Description: "even thirds at widening targets",
			Targets: []TargetSpec{
				{PricePercent: 3, QuantityPercent: 33},
				{PricePercent: 6, QuantityPercent: 33},
				{PricePercent: 10, QuantityPercent: 34},
			},
		},
		"aggressive": {
			Name:        "aggressive",
			Description: "small early trim, let the bulk ride a wide trail",
			Targets: []TargetSpec{
				{PricePercent: 5, QuantityPercent: 25},
			},
			TrailingTP: &TrailingLeg{ActivationPercent: 10, TrailPercent: 4},
		},
	}
}
