package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/meridianfs/onboard/internal/setup"
	"github.com/meridianfs/onboard/pkg/schema"
)

// setupInputSchemaJSON is the JSON Schema for setup Input validation.
// Embedded as a constant to avoid filesystem dependencies.
const setupInputSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://meridianfs.dev/schemas/setup-input.json",
  "type": "object",
  "required": ["account_type"],
  "properties": {
    "account_type": {
      "type": "string",
      "enum": ["INDIVIDUAL", "JOINT", "TRADITIONAL_IRA", "ROTH_IRA", "SEP_IRA",
               "CORPORATE", "LLC", "PARTNERSHIP", "TRUST"]
    },
    "jurisdiction": {
      "type": "string",
      "pattern": "^[A-Z]{2}$"
    },
    "configuration": { "$ref": "#/$defs/configuration" },
    "funding": { "$ref": "#/$defs/funding" },
    "preferences": { "$ref": "#/$defs/preferences" }
  },
  "additionalProperties": false,
  "$defs": {
    "configuration": {
      "type": "object",
      "properties": {
        "account_type": { "type": "string" },
        "tax_status": {
          "type": "string",
          "enum": ["TAXABLE", "TAX_DEFERRED", "TAX_FREE"]
        },
        "trading_permissions": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        },
        "restrictions": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        },
        "beneficiaries": {
          "type": "array",
          "items": { "$ref": "#/$defs/beneficiary" }
        },
        "authorized_users": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        },
        "trustees": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        }
      },
      "additionalProperties": false
    },
    "beneficiary": {
      "type": "object",
      "required": ["name", "percentage"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "relationship": { "type": "string" },
        "percentage": {
          "type": "number",
          "exclusiveMinimum": 0,
          "maximum": 100
        }
      },
      "additionalProperties": false
    },
    "funding": {
      "type": "object",
      "properties": {
        "minimum_initial_deposit": {
          "type": "number",
          "minimum": 0
        },
        "currency_code": {
          "type": "string",
          "pattern": "^[A-Z]{3}$"
        },
        "funding_sources": {
          "type": "array",
          "items": { "$ref": "#/$defs/funding_source" }
        },
        "auto_invest_enabled": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "funding_source": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["ACH", "WIRE", "CHECK", "TRANSFER"]
        },
        "account_number": { "type": "string" },
        "routing_number": { "type": "string", "pattern": "^[0-9]{9}$" },
        "verified": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "preferences": {
      "type": "object",
      "properties": {
        "risk_tolerance": {
          "type": "string",
          "enum": ["CONSERVATIVE", "MODERATE", "AGGRESSIVE"]
        },
        "investment_horizon_years": {
          "type": "integer",
          "minimum": 0,
          "maximum": 100
        },
        "asset_class_preferences": {
          "type": "array",
          "items": { "$ref": "#/$defs/asset_class_preference" }
        },
        "auto_rebalance": { "type": "boolean" },
        "dividend_reinvestment": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "asset_class_preference": {
      "type": "object",
      "required": ["asset_class", "allocation"],
      "properties": {
        "asset_class": { "type": "string", "minLength": 1 },
        "allocation": {
          "type": "number",
          "exclusiveMinimum": 0,
          "maximum": 100
        }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator implements the Validator interface using JSON Schema
// Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	inputSchema *jsonschema.Schema

	// mu guards the cache for dynamic schema compilation.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a validator with the setup input schema
// pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(setupInputSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal setup input schema: %w", err)
	}
	if err := c.AddResource("https://meridianfs.dev/schemas/setup-input.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add setup input schema resource: %w", err)
	}
	compiled, err := c.Compile("https://meridianfs.dev/schemas/setup-input.json")
	if err != nil {
		return nil, fmt.Errorf("compile setup input schema: %w", err)
	}

	return &JSONSchemaValidator{
		inputSchema: compiled,
		cache:       make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateSetupInput validates a setup input document: structure against the
// JSON Schema, then the cross-field semantic rules.
func (v *JSONSchemaValidator) ValidateSetupInput(in *setup.Input) error {
	if in == nil {
		return schema.NewError(schema.ErrCodeValidation, "setup input is nil")
	}

	doc, err := toJSONValue(in)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize setup input").WithCause(err)
	}
	if err := v.inputSchema.Validate(doc); err != nil {
		return toOnboardError(err)
	}

	return validateSemantic(in)
}

// ValidateDocument validates an arbitrary document against a JSON Schema
// provided as raw bytes. The schema is compiled and cached for subsequent
// calls with the same schema.
func (v *JSONSchemaValidator) ValidateDocument(doc map[string]any, docSchema []byte) error {
	if doc == nil {
		return schema.NewError(schema.ErrCodeValidation, "document is nil")
	}
	if len(docSchema) == 0 {
		return nil // no schema means no validation needed
	}

	compiled, err := v.getOrCompile(docSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid document schema").WithCause(err)
	}

	value, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize document").WithCause(err)
	}
	if err := compiled.Validate(value); err != nil {
		return toOnboardError(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each dynamic schema gets a unique URL to avoid collisions.
	url := fmt.Sprintf("onboard://document-schema/%d", len(v.cache))
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toOnboardError converts a jsonschema.ValidationError into an OnboardError
// with per-location violation messages.
func toOnboardError(err error) *schema.OnboardError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

var _ Validator = (*JSONSchemaValidator)(nil)
