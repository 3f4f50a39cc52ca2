package model

// Signal represents a diagnostic signal with transparent scoring data
type Signal struct {
	Type        SignalType             `json:"type"`           // Signal classification
	Severity    SignalSeverity         `json:"severity"`       // info, warning, critical
	Description string                 `json:"description"`    // Human-readable description
	Data        map[string]interface{} `json:"data,omitempty"` // Transparent scoring data (formulas, inputs)
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalBase           SignalType = "base"            // Starting confidence
	SignalDateCoverage   SignalType = "date_coverage"   // Share of assignments with resolved dates
	SignalValidation     SignalType = "validation"      // Share confirmed by the language-model stage
	SignalPlausibleCount SignalType = "plausible_count" // Result size within the expected range
	SignalDegraded       SignalType = "degraded"        // AI stages skipped or failed
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
