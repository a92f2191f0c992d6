// Package validation checks account setup documents at the API edge, before
// a setup request is created. Structure is enforced with JSON Schema Draft
// 2020-12; the cross-field rules a schema cannot express run as semantic
// checks on top.
package validation

import "github.com/meridianfs/onboard/internal/setup"

// Validator checks setup input documents for correctness before a setup
// request is built from them.
type Validator interface {
	ValidateSetupInput(in *setup.Input) error
	ValidateDocument(doc map[string]any, docSchema []byte) error
}
