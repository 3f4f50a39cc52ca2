// Package domain maps course subject areas to assignment vocabularies,
// type-detection patterns and effort estimates.
package domain

import (
	"regexp"
	"strings"

	"github.com/ppiankov/coursework/internal/model"
)

// DetectionThreshold is the minimum weighted keyword score a domain needs to be
// selected over Generic.
const DetectionThreshold = 5

// Config is the per-parse vocabulary bundle: domain defaults merged with overrides
type Config struct {
	Domain        Domain
	DomainName    string
	Keywords      []string
	HourEstimates map[model.AssignmentType]float64
	Patterns      []TypePattern
}

type keywordMatcher struct {
	re     *regexp.Regexp
	weight int
}

// detectors holds compiled keyword matchers per domain, built once and read-only.
var detectors = buildDetectors()

func buildDetectors() map[Domain][]keywordMatcher {
	out := make(map[Domain][]keywordMatcher, len(All))
	for _, d := range All {
		p := ProfileFor(d)
		matchers := make([]keywordMatcher, 0, len(p.Keywords))
		for _, kw := range p.Keywords {
			matchers = append(matchers, keywordMatcher{
				re:     regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(kw)) + `\b`),
				weight: len(strings.Fields(kw)),
			})
		}
		out[d] = matchers
	}
	return out
}

// Score returns the weighted keyword score of d for the given course name and text
func Score(d Domain, courseName, text string) int {
	haystack := strings.ToLower(courseName + "\n" + text)
	score := 0
	for _, m := range detectors[d] {
		score += len(m.re.FindAllStringIndex(haystack, -1)) * m.weight
	}
	return score
}

// DetectDomain picks the highest-scoring domain, or Generic when no domain
// clears DetectionThreshold.
func DetectDomain(courseName, text string) Domain {
	best := Generic
	bestScore := 0
	for _, d := range All {
		if d == Generic {
			continue
		}
		if s := Score(d, courseName, text); s > bestScore {
			best, bestScore = d, s
		}
	}
	if bestScore <= DetectionThreshold {
		return Generic
	}
	return best
}

// BuildConfig assembles the vocabulary for one parse. Domain defaults are
// applied first and overrides always win. The only error is a malformed
// override (bad pattern, unknown domain, non-positive hours).
func BuildConfig(courseName, text string, ov *Overrides) (Config, error) {
	compiled, err := ov.compile()
	if err != nil {
		return Config{}, err
	}

	d := DetectDomain(courseName, text)
	if compiled.domainSet {
		d = compiled.domain
	}
	p := ProfileFor(d)

	cfg := Config{
		Domain:        d,
		DomainName:    p.Name,
		HourEstimates: make(map[model.AssignmentType]float64, len(p.HourEstimates)),
	}

	cfg.Keywords = appendUnique(cfg.Keywords, defaultAssignmentKeywords...)
	cfg.Keywords = appendUnique(cfg.Keywords, p.AssignmentKeywords...)
	cfg.Keywords = appendUnique(cfg.Keywords, compiled.keywords...)

	for t, h := range p.HourEstimates {
		cfg.HourEstimates[t] = h
	}
	for t, h := range compiled.hours {
		cfg.HourEstimates[t] = h
	}

	cfg.Patterns = append(cfg.Patterns, compiled.patterns...)
	cfg.Patterns = append(cfg.Patterns, p.Patterns...)

	if compiled.name != "" {
		cfg.DomainName = compiled.name
	}
	return cfg, nil
}

// DetermineType classifies text with the domain patterns, then the default
// vocabulary, else TypeAssignment.
func (c Config) DetermineType(text string) model.AssignmentType {
	for _, p := range c.Patterns {
		if p.Pattern.MatchString(text) {
			return p.Type
		}
	}
	for _, p := range defaultPatterns {
		if p.Pattern.MatchString(text) {
			return p.Type
		}
	}
	return model.TypeAssignment
}

// EstimateHours looks up the domain table, then the default table, then a flat
// fallback. The result is always within model bounds.
func (c Config) EstimateHours(t model.AssignmentType) float64 {
	if h, ok := c.HourEstimates[t]; ok && h > 0 {
		return model.ClampHours(h)
	}
	if h, ok := defaultHours[t]; ok && h > 0 {
		return model.ClampHours(h)
	}
	return fallbackHours
}

// HasKeyword reports whether text contains any assignment keyword
func (c Config) HasKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range c.Keywords {
		if containsWord(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

func containsWord(lower, kw string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)
		if isBoundary(lower, start-1) && isBoundary(lower, end) {
			return true
		}
		idx = start + 1
	}
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		it = strings.ToLower(strings.TrimSpace(it))
		if it == "" {
			continue
		}
		dup := false
		for _, d := range dst {
			if d == it {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, it)
		}
	}
	return dst
}
