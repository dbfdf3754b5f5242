package models

import (
	"fmt"
	"strings"
)

// Cost is a fixed-point USD amount in microdollars (1e-6 USD). The ledger
// never uses binary floating point; per-token rates are expressed as
// microdollars per million tokens so cost arithmetic stays exact.
type Cost int64

// Microdollar scale constants.
const (
	// Microdollar is one millionth of a dollar.
	Microdollar Cost = 1
	// Cent is one hundredth of a dollar.
	Cent Cost = 10_000
	// Dollar is one USD.
	Dollar Cost = 1_000_000
)

// Dollars returns the cost as a float for display only.
func (c Cost) Dollars() float64 {
	return float64(c) / float64(Dollar)
}

// String formats the cost as dollars with four decimal places.
func (c Cost) String() string {
	neg := c < 0
	if neg {
		c = -c
	}
	whole := c / Dollar
	frac := (c % Dollar) / 100 // four decimal places
	s := fmt.Sprintf("$%d.%04d", whole, frac)
	if neg {
		s = "-" + s
	}
	return s
}

// ModelFamily buckets models for per-family cost reporting.
type ModelFamily string

const (
	// FamilyOpus is the large model family.
	FamilyOpus ModelFamily = "opus"
	// FamilySonnet is the mid model family.
	FamilySonnet ModelFamily = "sonnet"
	// FamilyHaiku is the small model family.
	FamilyHaiku ModelFamily = "haiku"
	// FamilyOther catches unrecognised model ids.
	FamilyOther ModelFamily = "other"
)

// FamilyOf classifies a model id into a family by substring match.
func FamilyOf(model string) ModelFamily {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "opus"):
		return FamilyOpus
	case strings.Contains(m, "sonnet"):
		return FamilySonnet
	case strings.Contains(m, "haiku"):
		return FamilyHaiku
	default:
		return FamilyOther
	}
}

// ModelRates holds per-million-token rates in microdollars.
type ModelRates struct {
	// InputPerMillion is the rate for fresh and cache-creation input tokens.
	InputPerMillion Cost
	// OutputPerMillion is the rate for output tokens.
	OutputPerMillion Cost
	// CacheReadPerMillion is the discounted rate for cache-read input tokens.
	CacheReadPerMillion Cost
}

// DefaultRates maps model families to current list pricing.
var DefaultRates = map[ModelFamily]ModelRates{
	FamilyOpus:   {InputPerMillion: 15 * Dollar, OutputPerMillion: 75 * Dollar, CacheReadPerMillion: 1_500_000},
	FamilySonnet: {InputPerMillion: 3 * Dollar, OutputPerMillion: 15 * Dollar, CacheReadPerMillion: 300_000},
	FamilyHaiku:  {InputPerMillion: 800_000, OutputPerMillion: 4 * Dollar, CacheReadPerMillion: 80_000},
	FamilyOther:  {InputPerMillion: 3 * Dollar, OutputPerMillion: 15 * Dollar, CacheReadPerMillion: 300_000},
}

// CostOf prices a usage record with the rates for its model family.
// Fresh and cache-creation input bill at the input rate; cache reads bill at
// the discounted cache-read rate.
func CostOf(u StreamUsage) Cost {
	rates := DefaultRates[FamilyOf(u.Model)]
	in := (u.InputTokens + u.CacheCreationTokens) * int64(rates.InputPerMillion)
	cached := u.CacheReadTokens * int64(rates.CacheReadPerMillion)
	out := u.OutputTokens * int64(rates.OutputPerMillion)
	return Cost((in + cached + out) / 1_000_000)
}
