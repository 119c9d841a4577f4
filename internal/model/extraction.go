package model

import "time"

// Document is the preprocessed form of an uploaded freight order, ready to
// be sent to an extraction provider.
type Document struct {
	Ref      string           `json:"ref"`
	Text     string           `json:"text"`
	Pages    []PageImage      `json:"pages,omitempty"`
	Metadata DocumentMetadata `json:"metadata"`
}

// PageImage is one rendered page or attached image.
type PageImage struct {
	Page      int    `json:"page"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"-"`
}

// DocumentMetadata describes the source file.
type DocumentMetadata struct {
	FileName  string `json:"file_name"`
	MediaType string `json:"media_type"`
	SizeBytes int64  `json:"size_bytes"`
	PageCount int    `json:"page_count"`
}

// Hints carries optional request context forwarded to providers.
type Hints struct {
	RequestID    string `json:"request_id,omitempty"`
	SenderDomain string `json:"sender_domain,omitempty"`
}

// ExtractionResult is the output of one successful provider call.
type ExtractionResult struct {
	Fields     Fields             `json:"fields"`
	Confidence map[string]float64 `json:"confidence"`
	Provider   string             `json:"provider"`
	Duration   time.Duration      `json:"duration"`
	Usage      TokenUsage         `json:"usage"`
}

// FieldConfidence returns the provider-reported confidence for name, 0 if absent.
func (r *ExtractionResult) FieldConfidence(name string) float64 {
	if r == nil || r.Confidence == nil {
		return 0
	}
	return r.Confidence[name]
}

// AverageConfidence is the mean provider-reported confidence over all fields.
func (r *ExtractionResult) AverageConfidence() float64 {
	if r == nil || len(r.Confidence) == 0 {
		return 0
	}
	var sum float64
	for _, c := range r.Confidence {
		sum += c
	}
	return sum / float64(len(r.Confidence))
}
