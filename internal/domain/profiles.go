package domain

import (
	"regexp"

	"github.com/ppiankov/coursework/internal/model"
)

// Domain is a subject-area profile driving type detection and effort estimates
type Domain int

const (
	Generic Domain = iota
	Nursing
	Engineering
	ComputerScience
	Business
	Humanities
)

// All lists every domain; detection ties resolve in this order.
var All = []Domain{Generic, Nursing, Engineering, ComputerScience, Business, Humanities}

// String returns the domain key
func (d Domain) String() string {
	switch d {
	case Generic:
		return "generic"
	case Nursing:
		return "nursing"
	case Engineering:
		return "engineering"
	case ComputerScience:
		return "computer-science"
	case Business:
		return "business"
	case Humanities:
		return "humanities"
	}
	return "generic"
}

// ParseDomain maps a domain key back to its Domain
func ParseDomain(key string) (Domain, bool) {
	for _, d := range All {
		if d.String() == key {
			return d, true
		}
	}
	return Generic, false
}

// TypePattern maps a matcher to an assignment type
type TypePattern struct {
	Type    model.AssignmentType
	Pattern *regexp.Regexp
}

// Profile is the immutable vocabulary bundle of one domain
type Profile struct {
	Domain             Domain
	Name               string
	Keywords           []string // detection vocabulary
	AssignmentKeywords []string // extra words marking a line as coursework
	HourEstimates      map[model.AssignmentType]float64
	Patterns           []TypePattern // tried in order
}

func tp(t model.AssignmentType, expr string) TypePattern {
	return TypePattern{Type: t, Pattern: regexp.MustCompile(`(?i)` + expr)}
}

// defaultPatterns is the fallback type vocabulary; specific kinds come first.
var defaultPatterns = []TypePattern{
	tp(model.TypeExam, `\b(exam|midterm|final exam|tests?)\b`),
	tp(model.TypeQuiz, `\bquiz(zes)?\b`),
	tp(model.TypeCaseStudy, `\bcase stud(y|ies)\b`),
	tp(model.TypeSimulation, `\bsimulation\b`),
	tp(model.TypeClinical, `\bclinicals?\b`),
	tp(model.TypeLab, `\blab(oratory)?s?\b`),
	tp(model.TypePresentation, `\bpresent(ation)?s?\b`),
	tp(model.TypeProject, `\bprojects?\b`),
	tp(model.TypePaper, `\b(paper|essay|reflection|journal|report)s?\b`),
	tp(model.TypeDiscussion, `\b(discussion|forum|discussion board|reply|replies)\b`),
	tp(model.TypeVideo, `\b(video|watch|recording)s?\b`),
	tp(model.TypeReading, `\b(read|reading|chapters?|ch\.|textbook|pages?|pp\.)\b`),
	tp(model.TypeHomework, `\b(homework|hw|problem set|worksheet)\b`),
	tp(model.TypePreparation, `\b(prep|prepare|preparation|pre-?class|pre-?lab)\b`),
}

var defaultHours = map[model.AssignmentType]float64{
	model.TypeAssignment:   2,
	model.TypeQuiz:         1,
	model.TypeExam:         3,
	model.TypeReading:      1.5,
	model.TypeVideo:        0.75,
	model.TypeDiscussion:   1,
	model.TypeClinical:     6,
	model.TypeLab:          3,
	model.TypeProject:      5,
	model.TypePaper:        4,
	model.TypePresentation: 3,
	model.TypeSimulation:   2,
	model.TypePreparation:  1,
	model.TypeCaseStudy:    2.5,
	model.TypeHomework:     2.5,
	model.TypeOther:        1,
}

// fallbackHours applies when neither the domain nor the default table knows a type.
const fallbackHours = 2.0

var defaultAssignmentKeywords = []string{
	"assignment", "homework", "quiz", "exam", "test", "midterm", "final exam",
	"reading", "read", "discussion", "paper", "essay", "project", "lab",
	"presentation", "submit", "worksheet", "reflection", "journal", "video",
	"case study", "problem set",
}

var (
	nursingProfile = Profile{
		Domain: Nursing,
		Name:   "Nursing",
		Keywords: []string{
			"nursing", "nurse", "patient", "clinical", "nclex", "hesi", "ati",
			"care plan", "medication", "pharmacology", "health assessment",
			"pathophysiology", "skills lab", "simulation",
		},
		AssignmentKeywords: []string{"care plan", "hesi", "ati", "clinical", "simulation", "vsim", "skills check-off", "drug card", "concept map"},
		HourEstimates: map[model.AssignmentType]float64{
			model.TypeQuiz:        1.5,
			model.TypeExam:        3,
			model.TypeClinical:    8,
			model.TypeSimulation:  3,
			model.TypeReading:     2,
			model.TypePaper:       4,
			model.TypeDiscussion:  1,
			model.TypePreparation: 1.5,
			model.TypeCaseStudy:   2.5,
			model.TypeVideo:       0.75,
			model.TypeLab:         3,
		},
		Patterns: []TypePattern{
			tp(model.TypeExam, `\b(hesi|ati|nclex|proctored)\b`),
			tp(model.TypeSimulation, `\b(sim lab|vsim|simulation)\b`),
			tp(model.TypeClinical, `\b(clinicals?|practicum|rotation)\b`),
			tp(model.TypePaper, `\b(care plan|concept map|drug cards?)\b`),
			tp(model.TypeLab, `\b(skills lab|skills check-?off)\b`),
		},
	}

	engineeringProfile = Profile{
		Domain: Engineering,
		Name:   "Engineering",
		Keywords: []string{
			"engineering", "circuit", "circuits", "thermodynamics", "statics",
			"dynamics", "cad", "design review", "mechanics", "fluid", "matlab",
		},
		AssignmentKeywords: []string{"problem set", "pset", "lab report", "design review", "prototype"},
		HourEstimates: map[model.AssignmentType]float64{
			model.TypeHomework: 3,
			model.TypeLab:      4,
			model.TypeProject:  6,
			model.TypeExam:     3,
			model.TypeQuiz:     1,
			model.TypeReading:  1.5,
			model.TypePaper:    4,
		},
		Patterns: []TypePattern{
			tp(model.TypeLab, `\blab report\b`),
			tp(model.TypeProject, `\b(design project|capstone|prototype|design review)\b`),
			tp(model.TypeHomework, `\b(problem set|pset)\b`),
		},
	}

	computerScienceProfile = Profile{
		Domain: ComputerScience,
		Name:   "Computer Science",
		Keywords: []string{
			"computer science", "programming", "algorithm", "algorithms",
			"data structures", "software", "python", "java", "compiler", "github",
		},
		AssignmentKeywords: []string{"programming assignment", "milestone", "coding"},
		HourEstimates: map[model.AssignmentType]float64{
			model.TypeProject:  6,
			model.TypeHomework: 3,
			model.TypeLab:      2,
			model.TypeExam:     3,
			model.TypeQuiz:     1,
			model.TypeReading:  1.5,
		},
		Patterns: []TypePattern{
			tp(model.TypeProject, `\b(programming assignment|pa\d+|coding project|milestone)\b`),
			tp(model.TypeLab, `\bcoding lab\b`),
			tp(model.TypeHomework, `\b(problem set|written assignment)\b`),
		},
	}

	businessProfile = Profile{
		Domain: Business,
		Name:   "Business",
		Keywords: []string{
			"business", "marketing", "accounting", "finance", "management",
			"economics", "strategy", "stakeholder",
		},
		AssignmentKeywords: []string{"case analysis", "memo", "pitch"},
		HourEstimates: map[model.AssignmentType]float64{
			model.TypeCaseStudy:    3,
			model.TypePresentation: 4,
			model.TypePaper:        4,
			model.TypeExam:         3,
			model.TypeQuiz:         1,
			model.TypeDiscussion:   1,
		},
		Patterns: []TypePattern{
			tp(model.TypeCaseStudy, `\bcase (study|analysis)\b`),
			tp(model.TypePresentation, `\b(pitch|presentation)\b`),
			tp(model.TypePaper, `\b(memo|brief)\b`),
		},
	}

	humanitiesProfile = Profile{
		Domain: Humanities,
		Name:   "Humanities",
		Keywords: []string{
			"history", "literature", "philosophy", "poetry", "novel",
			"rhetoric", "composition", "humanities",
		},
		AssignmentKeywords: []string{"response paper", "close reading", "draft", "annotated bibliography"},
		HourEstimates: map[model.AssignmentType]float64{
			model.TypePaper:        5,
			model.TypeReading:      2.5,
			model.TypeDiscussion:   1,
			model.TypeExam:         3,
			model.TypeQuiz:         1,
			model.TypePresentation: 3,
		},
		Patterns: []TypePattern{
			tp(model.TypePaper, `\b(essay|response paper|close reading|thesis|draft|annotated bibliography)\b`),
			tp(model.TypeReading, `\b(novel|poems?)\b`),
		},
	}

	genericProfile = Profile{
		Domain:        Generic,
		Name:          "General",
		HourEstimates: map[model.AssignmentType]float64{},
	}
)

// ProfileFor returns the vocabulary bundle of d
func ProfileFor(d Domain) Profile {
	switch d {
	case Generic:
		return genericProfile
	case Nursing:
		return nursingProfile
	case Engineering:
		return engineeringProfile
	case ComputerScience:
		return computerScienceProfile
	case Business:
		return businessProfile
	case Humanities:
		return humanitiesProfile
	}
	return genericProfile
}

// DefaultHours returns a copy of the domain-independent hour table
func DefaultHours() map[model.AssignmentType]float64 {
	out := make(map[model.AssignmentType]float64, len(defaultHours))
	for k, v := range defaultHours {
		out[k] = v
	}
	return out
}
