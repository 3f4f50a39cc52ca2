package score

import (
	"fmt"
	"math"

	"github.com/ppiankov/coursework/internal/model"
)

// Aggregate confidence weights. These are heuristic values kept adjustable.
const (
	BaseConfidence  = 0.55
	DatedWeight     = 0.20
	ValidatedWeight = 0.15
	PlausibleBonus  = 0.05
	PlausibleMin    = 5
	PlausibleMax    = 100
)

// Scorer calculates the aggregate confidence of a parse and explains it
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Aggregate returns the advisory confidence for a final assignment set and
// the signals that produced it. The value never filters results.
func (s *Scorer) Aggregate(assignments []model.Assignment, stages model.StageReport) (float64, []model.Signal) {
	var signals []model.Signal

	total := BaseConfidence
	signals = append(signals, model.Signal{
		Type:        model.SignalBase,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("Base confidence: %.2f", BaseConfidence),
		Data:        map[string]interface{}{"score": BaseConfidence},
	})

	// 1. Date coverage (0-0.20)
	dated, datedSignal := s.dateCoverage(assignments)
	total += dated
	signals = append(signals, datedSignal)

	// 2. Validation share (0-0.15)
	validated, validatedSignal := s.validationShare(assignments)
	total += validated
	signals = append(signals, validatedSignal)

	// 3. Plausible count bonus
	if bonus, sig := s.plausibleCount(len(assignments)); sig.Type != "" {
		total += bonus
		signals = append(signals, sig)
	}

	// 4. Degraded stages (explanatory only)
	if sig := s.degraded(stages); sig.Type != "" {
		signals = append(signals, sig)
	}

	return clamp(total), signals
}

func (s *Scorer) dateCoverage(assignments []model.Assignment) (float64, model.Signal) {
	n := len(assignments)
	if n == 0 {
		return 0, model.Signal{
			Type:        model.SignalDateCoverage,
			Severity:    model.SeverityCritical,
			Description: "No assignments extracted",
			Data:        map[string]interface{}{"assignments": 0},
		}
	}

	datedCount := 0
	for _, a := range assignments {
		if !a.Date.IsZero() {
			datedCount++
		}
	}
	ratio := float64(datedCount) / float64(n)
	score := ratio * DatedWeight

	severity := model.SeverityInfo
	if ratio < 0.25 {
		severity = model.SeverityCritical
	} else if ratio < 0.6 {
		severity = model.SeverityWarning
	}

	return score, model.Signal{
		Type:        model.SignalDateCoverage,
		Severity:    severity,
		Description: fmt.Sprintf("Dated assignments: %d/%d (%.0f%%)", datedCount, n, ratio*100),
		Data: map[string]interface{}{
			"dated":   datedCount,
			"total":   n,
			"ratio":   ratio,
			"score":   score,
			"formula": "dated / total * 0.20",
		},
	}
}

func (s *Scorer) validationShare(assignments []model.Assignment) (float64, model.Signal) {
	n := len(assignments)
	if n == 0 {
		return 0, model.Signal{
			Type:        model.SignalValidation,
			Severity:    model.SeverityInfo,
			Description: "Nothing to validate",
			Data:        map[string]interface{}{"validated": 0},
		}
	}

	count := 0
	for _, a := range assignments {
		if a.Validated {
			count++
		}
	}
	ratio := float64(count) / float64(n)
	score := ratio * ValidatedWeight

	severity := model.SeverityInfo
	if count == 0 {
		severity = model.SeverityWarning
	}

	return score, model.Signal{
		Type:        model.SignalValidation,
		Severity:    severity,
		Description: fmt.Sprintf("Validated by language model: %d/%d", count, n),
		Data: map[string]interface{}{
			"validated": count,
			"total":     n,
			"ratio":     ratio,
			"score":     score,
			"formula":   "validated / total * 0.15",
		},
	}
}

func (s *Scorer) plausibleCount(n int) (float64, model.Signal) {
	if n < PlausibleMin || n > PlausibleMax {
		return 0, model.Signal{}
	}
	return PlausibleBonus, model.Signal{
		Type:        model.SignalPlausibleCount,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("Assignment count %d within %d-%d", n, PlausibleMin, PlausibleMax),
		Data: map[string]interface{}{
			"count": n,
			"score": PlausibleBonus,
		},
	}
}

func (s *Scorer) degraded(stages model.StageReport) model.Signal {
	var skipped, failed []string
	check := func(name string, st model.StageStatus) {
		switch st {
		case model.StatusSkipped:
			skipped = append(skipped, name)
		case model.StatusFailed, model.StatusPartial:
			failed = append(failed, name)
		}
	}
	check("aiRemainder", stages.AIRemainder)
	check("aiValidate", stages.AIValidate)

	if len(skipped) == 0 && len(failed) == 0 {
		return model.Signal{}
	}

	severity := model.SeverityInfo
	description := "Language-model stages skipped; pattern results only"
	if len(failed) > 0 {
		severity = model.SeverityWarning
		description = "Language-model stages failed or partial; results degraded"
	}
	return model.Signal{
		Type:        model.SignalDegraded,
		Severity:    severity,
		Description: description,
		Data: map[string]interface{}{
			"skipped": skipped,
			"failed":  failed,
		},
	}
}

func clamp(c float64) float64 {
	c = math.Round(c*1000) / 1000
	return model.ClampConfidence(c)
}
