package ledger

import (
	"github.com/forgeguard/forgeguard/pkg/models"
)

// Estimation parameters. Input figures are tokens; output for the coder
// scales with the planner's line estimate.
const (
	coderInputPerFile     = 2000
	coderOutputPerLine    = 1.2
	plannerInputPerChunk  = 800
	plannerOutputPerChunk = 400
	auditInputPerFile     = 1000
	auditOutputPerFile    = 500

	// safetyFactor pads the projection for retries and fixer rounds.
	safetyFactor = 1.3

	// defaultEstimatedLines stands in when the planner gave no estimate.
	defaultEstimatedLines = 80
)

// Estimate is a projected phase cost with its breakdown.
type Estimate struct {
	// Coder is the projected spend for file generation.
	Coder models.Cost `json:"coder"`
	// Planner is the projected spend for chunk planning overhead.
	Planner models.Cost `json:"planner"`
	// Audit is the projected spend for batch audits.
	Audit models.Cost `json:"audit"`
	// Total is the padded sum of the parts.
	Total models.Cost `json:"total"`
	// Cap is the build's spend cap.
	Cap models.Cost `json:"cap"`
	// Remaining is cap minus already-recorded spend, floored at zero.
	Remaining models.Cost `json:"remaining"`
}

// Estimate projects the cost of executing a phase plan. Coder work prices at
// opus rates; planning and audit overhead price at sonnet rates. The sum is
// padded by a 1.3 safety factor.
func (l *Ledger) Estimate(plan models.PhasePlan) Estimate {
	opus := models.DefaultRates[models.FamilyOpus]
	sonnet := models.DefaultRates[models.FamilySonnet]

	var coderIn, coderOut int64
	for _, entry := range plan.Manifest {
		lines := entry.EstimatedLines
		if lines <= 0 {
			lines = defaultEstimatedLines
		}
		coderIn += coderInputPerFile
		coderOut += int64(coderOutputPerLine * float64(lines))
	}

	files := int64(len(plan.Manifest))
	chunks := int64(len(plan.Chunks))

	est := Estimate{
		Coder:   price(coderIn, coderOut, opus),
		Planner: price(chunks*plannerInputPerChunk, chunks*plannerOutputPerChunk, sonnet),
		Audit:   price(files*auditInputPerFile, files*auditOutputPerFile, sonnet),
	}
	est.Total = models.Cost(float64(est.Coder+est.Planner+est.Audit) * safetyFactor)

	s := l.Summary()
	est.Cap = s.Cap
	if s.Cap > 0 && s.Cap > s.Total {
		est.Remaining = s.Cap - s.Total
	}
	return est
}

func price(in, out int64, rates models.ModelRates) models.Cost {
	return models.Cost((in*int64(rates.InputPerMillion) + out*int64(rates.OutputPerMillion)) / 1_000_000)
}
