package domain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/coursework/internal/model"
)

const nursingSyllabus = `NURS 210 Fundamentals of Nursing
Clinical rotation begins week 2. Bring your nursing care plan to every clinical shift.
HESI exam at the end of the term. Patient safety and medication administration.`

func TestDetectDomain_Nursing(t *testing.T) {
	assert.Equal(t, Nursing, DetectDomain("NURS 210 Fundamentals of Nursing", nursingSyllabus))
}

func TestDetectDomain_BelowThresholdFallsBackToGeneric(t *testing.T) {
	// one keyword hit is well under the threshold
	assert.Equal(t, Generic, DetectDomain("Intro course", "Read about the patient."))
	assert.Equal(t, Generic, DetectDomain("", ""))
}

func TestScore_WeightsMultiWordKeywords(t *testing.T) {
	// "care plan" counts twice per occurrence, "nursing" once
	assert.Equal(t, 2, Score(Nursing, "", "care plan"))
	assert.Equal(t, 3, Score(Nursing, "nursing", "care plan"))
}

func TestScore_RespectsWordBoundaries(t *testing.T) {
	// "ati" inside "education" must not count
	assert.Equal(t, 0, Score(Nursing, "", "education information"))
}

func TestDetectDomain_Deterministic(t *testing.T) {
	first := DetectDomain("CS 101", "programming algorithms python java software github compiler")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DetectDomain("CS 101", "programming algorithms python java software github compiler"))
	}
	assert.Equal(t, ComputerScience, first)
}

func TestBuildConfig_OverridesWin(t *testing.T) {
	ov := &Overrides{
		Domain:        "engineering",
		HourEstimates: map[string]float64{"quiz": 0.5},
		Patterns:      map[string]string{"lab": `\bworkshop\b`},
		Keywords:      []string{"Workshop"},
	}
	cfg, err := BuildConfig("NURS 210", nursingSyllabus, ov)
	require.NoError(t, err)

	assert.Equal(t, Engineering, cfg.Domain)
	assert.Equal(t, 0.5, cfg.EstimateHours(model.TypeQuiz))
	assert.Equal(t, model.TypeLab, cfg.DetermineType("Workshop 2: gears"))
	assert.Contains(t, cfg.Keywords, "workshop")
}

func TestBuildConfig_RejectsMalformedOverrides(t *testing.T) {
	_, err := BuildConfig("", "", &Overrides{Patterns: map[string]string{"quiz": "(unclosed"}})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrInvalidInput))

	_, err = BuildConfig("", "", &Overrides{Domain: "astrology"})
	require.Error(t, err)

	_, err = BuildConfig("", "", &Overrides{HourEstimates: map[string]float64{"exam": -1}})
	require.Error(t, err)
}

func TestBuildConfig_PureFunction(t *testing.T) {
	a, err := BuildConfig("NURS 210", nursingSyllabus, nil)
	require.NoError(t, err)
	b, err := BuildConfig("NURS 210", nursingSyllabus, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Domain, b.Domain)
	assert.Equal(t, a.Keywords, b.Keywords)
	assert.Equal(t, a.HourEstimates, b.HourEstimates)

	// mutating one config's table must not leak into the profile
	a.HourEstimates[model.TypeQuiz] = 99
	c, err := BuildConfig("NURS 210", nursingSyllabus, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.5, c.EstimateHours(model.TypeQuiz))
}

func TestDetermineType(t *testing.T) {
	nursing, err := BuildConfig("", "", &Overrides{Domain: "nursing"})
	require.NoError(t, err)
	generic, err := BuildConfig("", "", nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  Config
		text string
		want model.AssignmentType
	}{
		{"domain pattern first", nursing, "HESI Fundamentals practice", model.TypeExam},
		{"care plan", nursing, "Complete Care Plan for Module 2", model.TypePaper},
		{"default quiz", generic, "Quiz 3: Chapter 5 Review", model.TypeQuiz},
		{"default reading", generic, "Read chapter 4", model.TypeReading},
		{"final project is not an exam", generic, "Final project proposal", model.TypeProject},
		{"fallback", generic, "Submit signed form", model.TypeAssignment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DetermineType(tt.text))
		})
	}
}

func TestEstimateHours(t *testing.T) {
	nursing, err := BuildConfig("", "", &Overrides{Domain: "nursing"})
	require.NoError(t, err)
	generic, err := BuildConfig("", "", nil)
	require.NoError(t, err)

	assert.Equal(t, 1.5, nursing.EstimateHours(model.TypeQuiz))
	assert.Equal(t, 8.0, nursing.EstimateHours(model.TypeClinical))
	assert.Equal(t, 1.0, generic.EstimateHours(model.TypeQuiz))
	assert.Equal(t, fallbackHours, generic.EstimateHours(model.AssignmentType("portfolio")))

	for _, d := range All {
		cfg, err := BuildConfig("", "", &Overrides{Domain: d.String()})
		require.NoError(t, err)
		for typ := range defaultHours {
			h := cfg.EstimateHours(typ)
			assert.Greater(t, h, 0.0)
			assert.LessOrEqual(t, h, model.MaxHours)
		}
	}
}

func TestParseDomain_RoundTrip(t *testing.T) {
	for _, d := range All {
		got, ok := ParseDomain(d.String())
		require.True(t, ok)
		assert.Equal(t, d, got)
		assert.NotEmpty(t, ProfileFor(d).Name)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	content := `domain: humanities
domain_name: Medieval Studies
keywords: [manuscript]
hour_estimates:
  paper: 6
patterns:
  reading: '\bmanuscript\b'
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ov, err := LoadOverrides(path)
	require.NoError(t, err)
	cfg, err := BuildConfig("", "", ov)
	require.NoError(t, err)

	assert.Equal(t, Humanities, cfg.Domain)
	assert.Equal(t, "Medieval Studies", cfg.DomainName)
	assert.Equal(t, 6.0, cfg.EstimateHours(model.TypePaper))
	assert.Equal(t, model.TypeReading, cfg.DetermineType("Transcribe the manuscript"))
}

func TestHasKeyword(t *testing.T) {
	cfg, err := BuildConfig("", "", nil)
	require.NoError(t, err)

	kw, ok := cfg.HasKeyword("Submit the worksheet")
	assert.True(t, ok)
	assert.Equal(t, "submit", kw)

	_, ok = cfg.HasKeyword("Thread the needle")
	assert.False(t, ok, "read inside thread is not a keyword hit")
}
