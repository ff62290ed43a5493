package llm

// Baseline sampling parameters used when neither the call nor the
// service configuration sets a value.
const (
	baselineTemperature      = 0.7
	baselineTopP             = 0.9
	baselineFrequencyPenalty = 0.0
	baselinePresencePenalty  = 0.0
	baselineMaxTokens        = 1000

	maxTokensCap = 4096
)

// mergeParams resolves call > service > baseline and clamps every value
// into its valid range. The result always has every field set.
func mergeParams(call, service *ModelParams) ModelParams {
	temperature := pickFloat(baselineTemperature, service.temperature(), call.temperature())
	topP := pickFloat(baselineTopP, service.topP(), call.topP())
	freq := pickFloat(baselineFrequencyPenalty, service.frequencyPenalty(), call.frequencyPenalty())
	pres := pickFloat(baselinePresencePenalty, service.presencePenalty(), call.presencePenalty())
	maxTokens := pickInt(baselineMaxTokens, service.maxTokens(), call.maxTokens())

	temperature = clamp(temperature, 0, 2)
	topP = clamp(topP, 0, 1)
	freq = clamp(freq, -2, 2)
	pres = clamp(pres, -2, 2)
	maxTokens = clampInt(maxTokens, 1, maxTokensCap)

	return ModelParams{
		Temperature:      &temperature,
		TopP:             &topP,
		FrequencyPenalty: &freq,
		PresencePenalty:  &pres,
		MaxTokens:        &maxTokens,
	}
}

func (p *ModelParams) temperature() *float64 {
	if p == nil {
		return nil
	}
	return p.Temperature
}

func (p *ModelParams) topP() *float64 {
	if p == nil {
		return nil
	}
	return p.TopP
}

func (p *ModelParams) frequencyPenalty() *float64 {
	if p == nil {
		return nil
	}
	return p.FrequencyPenalty
}

func (p *ModelParams) presencePenalty() *float64 {
	if p == nil {
		return nil
	}
	return p.PresencePenalty
}

func (p *ModelParams) maxTokens() *int {
	if p == nil {
		return nil
	}
	return p.MaxTokens
}

// pickFloat returns the last non-nil override, or def.
func pickFloat(def float64, overrides ...*float64) float64 {
	v := def
	for _, o := range overrides {
		if o != nil {
			v = *o
		}
	}
	return v
}

func pickInt(def int, overrides ...*int) int {
	v := def
	for _, o := range overrides {
		if o != nil {
			v = *o
		}
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Float returns a pointer to v, for filling ModelParams.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for filling ModelParams and Config.MaxRetries.
func Int(v int) *int { return &v }
