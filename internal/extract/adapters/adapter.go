package adapters

import (
	"strings"

	"github.com/ppiankov/coursework/internal/dedupe"
	"github.com/ppiankov/coursework/internal/extract"
	"github.com/ppiankov/coursework/internal/model"
)

// Kind is the document shape an extractor handles
type Kind int

const (
	KindSchedule Kind = iota
	KindModules
	KindTabular
	KindSyllabus
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindSchedule:
		return "schedule"
	case KindModules:
		return "modules"
	case KindTabular:
		return "tabular"
	case KindSyllabus:
		return "syllabus"
	case KindGeneric:
		return "generic"
	}
	return "generic"
}

// Extractor pulls candidate assignments from normalized text of one document shape
type Extractor interface {
	// Name returns the extractor name reported in parse metadata
	Name() string

	// Kind returns the document shape
	Kind() Kind

	// Detect reports whether text looks like this shape
	Detect(text string) bool

	// Extract scans normalized text. It never fails: an unmatched document
	// yields an empty Output.
	Extract(text, course string) extract.Output
}

// Registry selects extractors. It is built per parse because extractors
// carry that parse's domain configuration and date resolver.
type Registry struct {
	extractors []Extractor
	generic    Extractor
}

// NewRegistry creates a registry with every built-in extractor
func NewRegistry(env extract.Env) *Registry {
	registry := &Registry{
		extractors: make([]Extractor, 0),
	}

	// Specific shapes first, most structured to least
	registry.Register(NewModulesExtractor(env))
	registry.Register(NewTabularExtractor(env))
	registry.Register(NewScheduleExtractor(env))
	registry.Register(NewSyllabusExtractor(env))

	// Generic extractor is the fallback
	registry.generic = NewGenericExtractor(env)

	return registry
}

// Register registers a new extractor
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Get returns the registered extractor of kind k
func (r *Registry) Get(k Kind) Extractor {
	for _, e := range r.extractors {
		if e.Kind() == k {
			return e
		}
	}
	return r.generic
}

// ForDocument picks the extractor for a declared document type. Mixed
// documents get every extractor that detects its shape, an absent type is
// auto-detected and unrecognised types get the generic extractor.
func (r *Registry) ForDocument(docType model.DocumentType, text string) Extractor {
	switch docType {
	case model.DocCanvasModules:
		return r.Get(KindModules)
	case model.DocCanvasAssignments:
		return r.Get(KindTabular)
	case model.DocSyllabus:
		return r.Get(KindSyllabus)
	case model.DocSchedule:
		return r.Get(KindSchedule)
	case model.DocUnknown:
		return r.Detect(text)
	case model.DocMixed:
		var parts []Extractor
		for _, e := range r.extractors {
			if e.Detect(text) {
				parts = append(parts, e)
			}
		}
		if len(parts) == 0 {
			return r.generic
		}
		if len(parts) == 1 {
			return parts[0]
		}
		return &compositeExtractor{parts: parts}
	}
	return r.generic
}

// Detect returns the first specific extractor recognising text, or generic
func (r *Registry) Detect(text string) Extractor {
	for _, e := range r.extractors {
		if e.Detect(text) {
			return e
		}
	}
	return r.generic
}

// compositeExtractor runs several extractors over a mixed document
type compositeExtractor struct {
	parts []Extractor
}

func (c *compositeExtractor) Name() string {
	names := make([]string, len(c.parts))
	for i, p := range c.parts {
		names[i] = p.Name()
	}
	return "mixed(" + strings.Join(names, "+") + ")"
}

func (c *compositeExtractor) Kind() Kind { return KindGeneric }

func (c *compositeExtractor) Detect(text string) bool {
	for _, p := range c.parts {
		if p.Detect(text) {
			return true
		}
	}
	return false
}

func (c *compositeExtractor) Extract(text, course string) extract.Output {
	var out extract.Output
	for _, p := range c.parts {
		out = extract.Merge(out, p.Extract(text, course))
	}
	return finish(out)
}

// base carries what every extractor shares
type base struct {
	env extract.Env
}

func (b base) source(k Kind) string {
	return "regex-" + k.String()
}

// complete runs the recovery sweep over the whole text and collapses
// duplicates within the extractor's own output.
func (b base) complete(k Kind, text, course string, out extract.Output) extract.Output {
	found := append(append([]model.Assignment(nil), out.Assignments...), out.Events...)
	out.Assignments = append(out.Assignments, extract.Recover(text, found, b.env, course, k.String())...)
	return finish(out)
}

func finish(out extract.Output) extract.Output {
	out.Assignments = dedupe.Dedupe(out.Assignments)
	out.Events = dedupe.Dedupe(out.Events)
	return out
}

// candidate builds and wraps a single-line match
func (b base) candidate(k Kind, rule extract.Rule, line string, fallback model.Date, week, module int, course string) extract.Output {
	a := extract.Build(extract.Candidate{
		Line:     line,
		Fallback: fallback,
		Week:     week,
		Module:   module,
	}, rule, b.env, course, b.source(k))
	if rule.Kind == extract.KindEvent {
		a.Source = "regex-event"
	}
	return extract.Emit(a, rule.Kind)
}

func countMatches(lines []extract.Line, match func(string) bool) int {
	n := 0
	for _, l := range lines {
		if l.Text != "" && match(l.Text) {
			n++
		}
	}
	return n
}
