package query

import (
	"math"
	"strings"

	"github.com/cmericli/claude-remote/internal/store"
)

// rates are USD per million tokens: input, output, cache read, cache write.
type rates struct {
	input       float64
	output      float64
	cacheRead   float64
	cacheCreate float64
}

var (
	opusRates    = rates{input: 15.0, output: 75.0, cacheRead: 1.50, cacheCreate: 18.75}
	sonnetRates  = rates{input: 3.0, output: 15.0, cacheRead: 0.30, cacheCreate: 3.75}
	defaultRates = rates{input: 0.80, output: 4.0, cacheRead: 0.08, cacheCreate: 1.0}
)

func ratesFor(model string) rates {
	model = strings.ToLower(model)
	switch {
	case strings.Contains(model, "opus"):
		return opusRates
	case strings.Contains(model, "sonnet"):
		return sonnetRates
	default:
		return defaultRates
	}
}

// EstimateCost approximates the USD cost of a token total under a model's
// published per-million rates, rounded to cents. Estimates only; billing
// rounds differently.
func EstimateCost(model string, tokens store.TokenTotals) float64 {
	r := ratesFor(model)
	const million = 1_000_000.0
	total := float64(tokens.Input)/million*r.input +
		float64(tokens.Output)/million*r.output +
		float64(tokens.CacheRead)/million*r.cacheRead +
		float64(tokens.CacheCreate)/million*r.cacheCreate
	return math.Round(total*100) / 100
}
