package usage

// Pricing is the per-million-token price of a model.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

type estimate struct {
	tokensIn  int64
	tokensOut int64
	cost      float64
}

// Fixed per-call estimates used when a provider reports no token counts.
var fallbackEstimates = map[Phase]estimate{
	PhaseClassification: {tokensIn: 200, tokensOut: 50, cost: 0.0005},
	PhaseDrafting:       {tokensIn: 500, tokensOut: 300, cost: 0.002},
}

// Cost prices a call. Calls without token counts use the fixed phase estimate.
func (p Pricing) Cost(phase Phase, tokensIn, tokensOut int64) (int64, int64, float64) {
	if tokensIn <= 0 && tokensOut <= 0 {
		if est, ok := fallbackEstimates[phase]; ok {
			return est.tokensIn, est.tokensOut, est.cost
		}
		return 0, 0, 0
	}
	cost := float64(tokensIn)*p.InputPerMTok/1e6 + float64(tokensOut)*p.OutputPerMTok/1e6
	return tokensIn, tokensOut, cost
}
