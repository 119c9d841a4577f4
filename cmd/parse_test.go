package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/orderparse/internal/model"
)

func sampleOutcome() *model.Outcome {
	return &model.Outcome{
		RunID:        "run-1",
		Status:       model.OutcomeSuccess,
		ProviderUsed: "openai",
		ExtractedData: model.Fields{
			model.FieldClientCompanyName:  model.String("ACME SRL"),
			model.FieldClientOfferedPrice: model.Number(1500),
		},
		ConfidenceScores: map[string]float64{model.FieldClientCompanyName: 0.95},
		ValidationErrors: []string{},
		Metadata:         model.OutcomeMetadata{DocumentRef: "order.pdf", FieldCount: 2},
	}
}

func TestWriteOutcome_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutcome(&buf, sampleOutcome(), "json"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got["run_id"])
	data := got["extracted_data"].(map[string]any)
	assert.Equal(t, "ACME SRL", data[model.FieldClientCompanyName])
}

func TestWriteOutcome_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutcome(&buf, sampleOutcome(), "yaml"))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "success", got["status"])
	data := got["extracted_data"].(map[string]any)
	assert.Equal(t, "ACME SRL", data[model.FieldClientCompanyName])
	assert.Contains(t, buf.String(), "provider_used: openai")
}
