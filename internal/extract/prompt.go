package extract

import (
	"strings"

	"github.com/sells-group/orderparse/internal/model"
)

const basePrompt = `You are an expert logistics document parser for Romanian freight forwarders.

TASK: Extract structured data from transport order documents with high accuracy.

CRITICAL REQUIREMENTS:
1. Extract client company name and VAT number with perfect accuracy
2. Identify pickup and delivery addresses (full address or at minimum postcode and city)
3. Extract the offered price with currency (assume EUR if not specified)
4. Extract cargo details if available (weight, pallets, LDM, special requirements)
5. Identify pickup and delivery date ranges if specified
6. Flag any ambiguous or missing critical information

OUTPUT FORMAT: Valid JSON with the following structure:
{
  "client_company_name": "string (required)",
  "client_vat_number": "string (required, format: RO/CUI number)",
  "client_contact_email": "string (optional)",
  "client_offered_price": number (required, in EUR),
  "pickup_address": "string (required)",
  "pickup_postcode": "string (optional)",
  "pickup_city": "string (required)",
  "pickup_country": "string (default: RO)",
  "delivery_address": "string (required)",
  "delivery_postcode": "string (optional)",
  "delivery_city": "string (required)",
  "delivery_country": "string (required)",
  "cargo_weight_kg": number (optional),
  "cargo_pallets": number (optional),
  "cargo_ldm": number (optional),
  "special_requirements": "string (optional)",
  "pickup_date_start": "string YYYY-MM-DD (optional)",
  "pickup_date_end": "string YYYY-MM-DD (optional)",
  "delivery_date_start": "string YYYY-MM-DD (optional)",
  "delivery_date_end": "string YYYY-MM-DD (optional)",
  "client_reference_number": "string (optional)",
  "field_confidence": {"field_name": number between 0 and 1 (optional)},
  "confidence_flags": {
    "missing_critical_fields": ["field_name"],
    "ambiguous_fields": ["field_name"],
    "extraction_notes": "string"
  }
}

IMPORTANT:
- Always return valid JSON
- Use null for fields that are not in the document
- Mark confidence_flags for any uncertain extractions
- For Romanian VAT numbers, accept both RO and CUI prefixes
- Convert all prices to EUR (common rates: 1 USD = 0.92 EUR, 1 GBP = 1.15 EUR)
- For addresses, prioritize full street addresses but accept "City, Postcode" minimum`

// JSONOnly is appended for backends without a native JSON response mode.
const JSONOnly = "Return the extracted data as valid JSON only, with no additional text or markdown formatting."

// BasePrompt returns the document-independent part of the system prompt.
func BasePrompt() string { return basePrompt }

// ContextPrompt returns the per-request guidance derived from hints, or ""
// when there is none.
func ContextPrompt(h model.Hints) string {
	domain := strings.TrimSpace(h.SenderDomain)
	if domain == "" {
		return ""
	}
	return "CONTEXT: This document is from " + domain + " - adjust expectations for their typical format."
}

// SystemPrompt returns the full system prompt for one request.
func SystemPrompt(h model.Hints) string {
	if c := ContextPrompt(h); c != "" {
		return basePrompt + "\n\n" + c
	}
	return basePrompt
}

// UserText renders the document text block, or "" for image-only documents.
func UserText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return "Document text content:\n" + text
}
