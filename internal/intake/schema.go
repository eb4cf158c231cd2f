package intake

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// draftSchema constrains the completion output before any field is trusted.
// Numbers are validated as numbers here; coercion to money happens later.
const draftSchema = `{
  "type": "object",
  "properties": {
    "invoice_number": {"type": "string"},
    "date": {"type": "string"},
    "due_date": {"type": "string"},
    "customer": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "email": {"type": "string"},
        "phone": {"type": "string"},
        "address": {"type": "string"}
      },
      "required": ["name"]
    },
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "product_name": {"type": "string", "minLength": 1},
          "quantity": {"type": "number", "minimum": 0},
          "unit_price": {"type": "number", "minimum": 0},
          "line_total": {"type": "number", "minimum": 0}
        },
        "required": ["product_name"]
      }
    },
    "subtotal": {"type": "number", "minimum": 0},
    "tax": {"type": "number", "minimum": 0},
    "total": {"type": "number", "minimum": 0},
    "terms": {"type": "string"},
    "thank_you_message": {"type": "string"}
  },
  "required": ["customer", "items"]
}`

var compiledDraftSchema = jsonschema.MustCompileString("invoice-draft.json", draftSchema)

// parseDraft decodes and validates the raw completion output. Any failure
// here means the caller must construct the deterministic fallback.
func parseDraft(raw string) (draftPayload, error) {
	clean := stripCodeFences(raw)
	var generic any
	if err := json.Unmarshal([]byte(clean), &generic); err != nil {
		return draftPayload{}, fmt.Errorf("draft json parse: %w", err)
	}
	if err := compiledDraftSchema.Validate(generic); err != nil {
		return draftPayload{}, fmt.Errorf("draft schema: %w", err)
	}
	var payload draftPayload
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return draftPayload{}, fmt.Errorf("draft decode: %w", err)
	}
	return payload, nil
}
