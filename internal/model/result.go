package model

import (
	"strings"
	"time"
)

// DocumentType is the declared shape of an input document
type DocumentType string

const (
	DocCanvasModules     DocumentType = "canvas-modules"
	DocCanvasAssignments DocumentType = "canvas-assignments"
	DocSyllabus          DocumentType = "syllabus"
	DocSchedule          DocumentType = "schedule"
	DocMixed             DocumentType = "mixed"
	DocUnknown           DocumentType = ""
)

// DocumentTypes lists the declared document types in display order
var DocumentTypes = []DocumentType{DocCanvasModules, DocCanvasAssignments, DocSyllabus, DocSchedule, DocMixed}

// ParseDocumentType maps a user-supplied name onto a DocumentType.
// Unrecognized names map to DocUnknown, which selects the generic extractor.
func ParseDocumentType(s string) DocumentType {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range DocumentTypes {
		if string(t) == s {
			return t
		}
	}
	return DocUnknown
}

// StageStatus records how a pipeline stage ended
type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusCompleted StageStatus = "completed"
	StatusSkipped   StageStatus = "skipped"
	StatusNoneFound StageStatus = "none-found"
	StatusFailed    StageStatus = "failed"
	StatusPartial   StageStatus = "partial"
)

// StageReport is the per-stage completion record attached to a result
type StageReport struct {
	Regex       StageStatus `json:"regex"`
	AIRemainder StageStatus `json:"aiRemainder"`
	AIValidate  StageStatus `json:"aiValidate"`
	Merging     StageStatus `json:"merging"`

	AIRemainderReason string `json:"aiRemainderReason,omitempty"`
	AIValidateReason  string `json:"aiValidateReason,omitempty"`
}

// StageCounts are the per-stage record counts
type StageCounts struct {
	Regex        int `json:"regex"`
	AIRemainder  int `json:"aiRemainder"`
	AIValidated  int `json:"aiValidated"`
	AIDiscovered int `json:"aiDiscovered"`
	Invalidated  int `json:"invalidated"`
	Duplicates   int `json:"duplicates"`
	Final        int `json:"final"`
	Events       int `json:"events"`
}

// Metadata explains how a ParseResult was produced
type Metadata struct {
	ParseID          string       `json:"parseId"`
	DocumentType     DocumentType `json:"documentType"`
	Extractor        string       `json:"extractor"`
	Domain           string       `json:"domain"`
	DomainName       string       `json:"domainName"`
	Course           string       `json:"course"`
	AIEnabled        bool         `json:"aiEnabled"`
	Stages           StageReport  `json:"stages"`
	Counts           StageCounts  `json:"counts"`
	RemainderLength  int          `json:"remainderLength"`
	ValidationFailed bool         `json:"validationFailed"`
	Confidence       float64      `json:"confidence"`
	Signals          []Signal     `json:"signals,omitempty"`
	Warnings         []string     `json:"warnings,omitempty"`
	Summary          string       `json:"summary"`
	ParsedAt         time.Time    `json:"parsedAt"`
	DurationMS       int64        `json:"durationMs"`
}

// ParseResult is the output of one pipeline run
type ParseResult struct {
	Assignments []Assignment `json:"assignments"`
	Modules     []Module     `json:"modules"`
	Events      []Assignment `json:"events"`
	Metadata    Metadata     `json:"metadata"`
}

// DatedCount returns how many assignments carry a resolved date
func (r *ParseResult) DatedCount() int {
	n := 0
	for _, a := range r.Assignments {
		if !a.Date.IsZero() {
			n++
		}
	}
	return n
}
