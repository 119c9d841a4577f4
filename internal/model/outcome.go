package model

import "time"

// OutcomeStatus is the terminal state of one document parse.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
)

// Outcome is the single structured result handed back to the business layer.
// Failures are expressed as RequiresManualReview plus reasons, never as errors.
type Outcome struct {
	RunID                string              `json:"run_id,omitempty"`
	Status               OutcomeStatus       `json:"status"`
	ExtractedData        Fields              `json:"extracted_data"`
	ConfidenceScores     map[string]float64  `json:"confidence_scores"`
	Confidence           *DocumentConfidence `json:"confidence,omitempty"`
	ProviderUsed         string              `json:"provider_used"`
	ProcessingTime       time.Duration       `json:"processing_time"`
	ValidationErrors     []string            `json:"validation_errors"`
	RequiresManualReview bool                `json:"requires_manual_review"`
	ReviewReasons        []string            `json:"review_reasons,omitempty"`
	Error                string              `json:"error,omitempty"`
	Phases               []PhaseResult       `json:"phases,omitempty"`
	Usage                TokenUsage          `json:"usage"`
	Metadata             OutcomeMetadata     `json:"metadata"`
}

// OutcomeMetadata records how the outcome was produced.
type OutcomeMetadata struct {
	DocumentRef             string   `json:"document_ref"`
	PrimaryProvider         string   `json:"primary_provider,omitempty"`
	SecondaryProvider       string   `json:"secondary_provider,omitempty"`
	Escalated               bool     `json:"escalated"`
	EscalationReasons       []string `json:"escalation_reasons,omitempty"`
	MergeWarnings           []string `json:"merge_warnings,omitempty"`
	FieldCount              int      `json:"field_count"`
	CriticalFieldsExtracted int      `json:"critical_fields_extracted"`
	FailedAt                string   `json:"failed_at,omitempty"`
}

// Success reports whether the document can be auto-processed.
func (o *Outcome) Success() bool {
	return o.Status == OutcomeSuccess && !o.RequiresManualReview
}
